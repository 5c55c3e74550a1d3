package models

// Document is a single ingested source file after text extraction.
type Document struct {
	ID       string
	Path     string
	Title    string
	Type     string // resume, project, document
	Content  string
	Metadata map[string]interface{}
}

// Chunk is one bounded, overlapping slice of a document's normalized text.
// IDs are deterministic: "<doc id>_<seq>".
type Chunk struct {
	ID    string
	DocID string
	Seq   int
	Text  string
	Start int
	End   int
}

// EmbeddingRecord is what the index manager persists per chunk. Metadata is
// denormalized (file path, type) so queries can filter without a join.
type EmbeddingRecord struct {
	ChunkID  string
	DocID    string
	FilePath string
	FileType string
	Content  string
	Vector   []float32
	Metadata map[string]interface{}
}

// SearchResult is a ranked hit from the retrieval path. Score is the blended
// similarity in [0,1]; Dense and Sparse keep the unblended components.
type SearchResult struct {
	ChunkID  string
	DocID    string
	FilePath string
	Content  string
	Score    float64
	Dense    float64
	Sparse   float64
}

// Filter narrows a vector store query. Zero-valued fields are ignored.
type Filter struct {
	Subject  string // matched against content and file path
	FileType string
	DocID    string
}

// BatchFailure reports one input of an embedding batch that could not be
// embedded after retries.
type BatchFailure struct {
	Index int
	Err   error
}

// BatchResult carries the outcome of a batched embedding call. Vectors is
// positional with the input texts; failed positions hold a nil vector.
type BatchResult struct {
	Vectors [][]float32
	Failed  []BatchFailure
}

// Answer is the composed response plus the references derived from the
// retrieved chunks' metadata.
type Answer struct {
	Text       string
	References []string
}
