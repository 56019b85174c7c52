// Package vectorstore holds the vector database adapters. Every adapter is
// configured with one collection and ranks results so that a higher score
// is a closer match.
package vectorstore

import (
	"fmt"
	"strings"

	"github.com/gamma-omg/rag-spo/domain"
)

type Distance string

const (
	Cosine Distance = "cosine"
	Euclid Distance = "euclid"
	Dot    Distance = "dot"
)

func ParseDistance(s string) (Distance, error) {
	switch Distance(strings.ToLower(s)) {
	case "", Cosine:
		return Cosine, nil
	case Euclid, "l2":
		return Euclid, nil
	case Dot, "ip":
		return Dot, nil
	}

	return "", fmt.Errorf("%w: unknown distance metric %q", domain.ErrInvalidConfiguration, s)
}

// Collection names the collection an adapter works with and the vector
// shape it is created with.
type Collection struct {
	Name       string
	VectorSize int
	Distance   Distance
}

func upstreamErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, op, err)
}
