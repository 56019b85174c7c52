// Package chunker splits text into overlapping fixed-size character windows.
//
// Windows are measured in characters (runes), not tokens or sentences, so a
// chunk may end in the middle of a word.
package chunker

import (
	"fmt"
	"strings"

	"github.com/gamma-omg/rag-spo/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Validate reports whether size and overlap describe a window that advances.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", domain.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)", domain.ErrInvalidConfiguration, overlap, size)
	}

	return nil
}

// Split cuts text into windows of size characters, each starting
// size-overlap characters after the previous one. Windows that are blank
// after trimming are dropped. The window that reaches the end of the text is
// the last one.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	l := len(runes)
	if l == 0 {
		return []string{}, nil
	}

	step := size - overlap
	res := make([]string, 0, l/step+1)

	for start := 0; ; start += step {
		end := min(start+size, l)
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			res = append(res, chunk)
		}

		if start+size >= l {
			break
		}
	}

	return res, nil
}

// SplitWithMetadata splits text and tags every window with the document it
// came from and its zero-based position.
func SplitWithMetadata(text, documentID, documentName string, size, overlap int) ([]domain.Chunk, error) {
	texts, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, domain.Chunk{
			Text:         t,
			DocumentID:   documentID,
			DocumentName: documentName,
			ChunkIndex:   i,
		})
	}

	return chunks, nil
}
