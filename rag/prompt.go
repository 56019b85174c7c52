package rag

import (
	"fmt"
	"strings"

	"github.com/gamma-omg/rag-spo/domain"
)

const promptTemplate = `You are an assistant that answers questions using SharePoint documents.

Answer the user's question accurately and in detail using the documents below.
Do not guess anything that is not in the documents. Answer only from the documents.

<documents>
%s
</documents>

<question>
%s
</question>

<guidelines>
1. Base the answer on the content of the documents
2. Be as specific as possible
3. If the documents do not contain enough information, say so
4. Answer in %s
</guidelines>

Answer:`

// buildContext labels every chunk with its 1-based position and title.
func buildContext(sources []domain.Source, chunks []string) string {
	blocks := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("[Document %d: %s]\n%s", i+1, sources[i].FileTitle, chunk))
	}
	return strings.Join(blocks, "\n\n")
}

func buildPrompt(query, context, language string) string {
	return fmt.Sprintf(promptTemplate, context, query, language)
}
