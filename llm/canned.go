package llm

import (
	"context"
	"fmt"

	"github.com/gamma-omg/rag-spo/domain"
)

// Canned is the demo generator. It never calls a model.
type Canned struct{}

func (Canned) Generate(ctx context.Context, prompt string) (string, error) {
	return "[DEMO MODE] Answer generation is disabled.", nil
}

// CannedAnswer describes what the search found, naming the best match.
func (Canned) CannedAnswer(query string, sources []domain.Source) string {
	if len(sources) == 0 {
		return fmt.Sprintf("[DEMO MODE] No documents matched %q.", query)
	}

	return fmt.Sprintf("[DEMO MODE] Found %d relevant documents for %q.\n\n"+
		"Most relevant document: '%s'\n\n"+
		"To get real answers:\n"+
		"1. Set DEMO_MODE=false\n"+
		"2. Configure llm.provider and its API key\n"+
		"3. Configure the embedding provider",
		len(sources), query, sources[0].FileTitle)
}
