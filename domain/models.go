package domain

// Document is a file in the document store. It is fetched fresh for every
// indexing call and never cached locally.
type Document struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	WebURL       string `json:"web_url"`
	DownloadURL  string `json:"download_url,omitempty"`
	ModifiedDate string `json:"modified_date,omitempty"`
	Author       string `json:"author,omitempty"`
	Size         int64  `json:"size"`
}

// Chunk is a window of document text. (DocumentID, ChunkIndex) is unique.
type Chunk struct {
	Text         string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
}

// SourceMeta is the document store metadata copied onto every point.
type SourceMeta struct {
	WebURL       string `json:"web_url"`
	DownloadURL  string `json:"download_url"`
	ModifiedDate string `json:"modified_date"`
	Author       string `json:"author"`
}

type Payload struct {
	DocumentID   string     `json:"document_id"`
	DocumentName string     `json:"document_name"`
	ChunkIndex   int        `json:"chunk_index"`
	Text         string     `json:"text"`
	Source       SourceMeta `json:"source"`
}

// Point is a vector with its payload as handed to the vector store.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is a ranked hit returned by the vector store. Higher scores
// rank first.
type SearchResult struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

type Source struct {
	FileTitle    string  `json:"file_title"`
	SectionTitle string  `json:"section_title"`
	ChunkIndex   int     `json:"chunk_index"`
	DownloadURL  string  `json:"download_url"`
	DocumentID   string  `json:"document_id"`
	Score        float64 `json:"score"`
}

type SearchResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Query   string   `json:"query"`
}

type IndexResult struct {
	DocumentID    string `json:"document_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

type IndexAllResult struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
}

// Site is a SharePoint site visible to the application credentials.
type Site struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	WebURL      string `json:"web_url"`
}
