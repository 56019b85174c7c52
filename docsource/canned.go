package docsource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gamma-omg/rag-spo/domain"
)

type cannedDoc struct {
	meta    domain.Document
	content string
}

var cannedDocs = []cannedDoc{
	{
		meta: domain.Document{
			ID:           "doc_demo_1",
			Name:         "project_plan.docx",
			WebURL:       "https://demo.sharepoint.com/sites/demo/project_plan.docx",
			DownloadURL:  "https://demo.sharepoint.com/download/doc_demo_1",
			ModifiedDate: "2025-01-15T09:30:00Z",
			Author:       "Chulsoo Kim",
			Size:         45678,
		},
		content: `
Project Plan

1. Overview
This project builds a retrieval-augmented generation (RAG) system on top of SharePoint Online documents.

2. Schedule
- January 2025: requirements analysis and design
- February 2025: development and testing
- March 2025: rollout and operations

3. Key features
- Automatic document indexing
- Natural language search
- AI generated answers

4. Expected benefits
Employees find the information they need faster, improving productivity by an estimated 30%.
`,
	},
	{
		meta: domain.Document{
			ID:           "doc_demo_2",
			Name:         "technical_design.pdf",
			WebURL:       "https://demo.sharepoint.com/sites/demo/technical_design.pdf",
			DownloadURL:  "https://demo.sharepoint.com/download/doc_demo_2",
			ModifiedDate: "2025-01-20T14:15:00Z",
			Author:       "Younghee Lee",
			Size:         123456,
		},
		content: `
Technical Design

System architecture

1. Backend
- HTTP API service
- Vector database
- Microsoft Graph integration

2. Data pipeline
Document collection -> preprocessing -> chunking -> embedding -> vector store

3. Search flow
User query -> query embedding -> vector similarity search -> LLM answer

4. Security
- OAuth 2.0 authentication
- Role based access control (RBAC)
- Data encryption
`,
	},
	{
		meta: domain.Document{
			ID:           "doc_demo_3",
			Name:         "meeting_notes_2025.txt",
			WebURL:       "https://demo.sharepoint.com/sites/demo/meeting_notes_2025.txt",
			DownloadURL:  "https://demo.sharepoint.com/download/doc_demo_3",
			ModifiedDate: "2025-01-15T16:00:00Z",
			Author:       "Minsoo Park",
			Size:         8901,
		},
		content: `
Meeting Notes 2025-01-15

Attendees: Chulsoo Kim, Younghee Lee, Minsoo Park

Agenda:
1. RAG system status
   - Backend scaffolding done
   - Vector database configured
   - Graph API integration in progress

2. Goals for next week
   - Choose and implement the embedding model
   - Build the SharePoint crawler
   - Collect initial test data

3. Issues
   - Azure AD app registration permissions -> use the Developer Program
   - Token expiry -> cache tokens and refresh automatically

Next meeting: 2025-01-22
`,
	},
}

// Canned serves a fixed set of demo documents. It never fails and makes no
// network calls.
type Canned struct{}

func (Canned) ListDocuments(ctx context.Context, siteID string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(cannedDocs))
	for _, d := range cannedDocs {
		docs = append(docs, domain.Document{
			ID:     d.meta.ID,
			Name:   d.meta.Name,
			WebURL: d.meta.WebURL,
			Size:   d.meta.Size,
		})
	}
	return docs, nil
}

func (Canned) GetContent(ctx context.Context, siteID, documentID string) (string, error) {
	if d, ok := findCanned(documentID); ok {
		return d.content, nil
	}
	return fmt.Sprintf("[DEMO] sample content for %s", documentID), nil
}

func (Canned) GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error) {
	if d, ok := findCanned(documentID); ok {
		return d.meta, nil
	}

	return domain.Document{
		ID:           documentID,
		Name:         fmt.Sprintf("demo_%s.docx", documentID),
		WebURL:       "https://demo.sharepoint.com/sites/demo/" + documentID,
		DownloadURL:  "https://demo.sharepoint.com/download/" + documentID,
		ModifiedDate: "2025-11-30T00:00:00Z",
		Author:       "Demo User",
	}, nil
}

func (Canned) Download(ctx context.Context, documentID string) (io.ReadCloser, string, string, error) {
	body := fmt.Sprintf("[DEMO MODE]\n\nThis is a demo download of document '%s'.\n\n"+
		"To download real files:\n1. Set DEMO_MODE=false\n2. Configure the SharePoint connection\n", documentID)

	return io.NopCloser(strings.NewReader(body)), "text/plain; charset=utf-8", fmt.Sprintf("demo_%s.txt", documentID), nil
}

func findCanned(id string) (cannedDoc, bool) {
	for _, d := range cannedDocs {
		if d.meta.ID == id {
			return d, true
		}
	}
	return cannedDoc{}, false
}
