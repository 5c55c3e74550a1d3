package types

import (
	"context"

	"github.com/xhad/docdex/internal/models"
)

// Core interfaces wired together by the pipeline and the query path. Each
// backend collaborator (OCR, embedding, vector store, language model) sits
// behind one of these so it can be swapped or faked in tests.

// Extractor turns a source file into raw text. Implementations may call out
// to an OCR service and are allowed to fail or rate-limit.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Embedder produces fixed-dimension dense vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (models.BatchResult, error)
	Dimension() int
}

// VectorStore owns the embedding record lifecycle.
type VectorStore interface {
	Upsert(ctx context.Context, rec models.EmbeddingRecord) error
	Query(ctx context.Context, vector []float32, threshold float64, limit int, filter *models.Filter) ([]models.SearchResult, error)
	DeleteByDocument(ctx context.Context, docID string) error

	// Processing markers back the force/resume semantics: absent force,
	// chunks already marked are skipped on re-ingest.
	MarkProcessed(ctx context.Context, docID string, chunkIDs []string) error
	ProcessedChunks(ctx context.Context, docID string) (map[string]bool, error)
	ClearProcessed(ctx context.Context, docID string) error
}

// RecordStore persists person/project records alongside their embeddings.
type RecordStore interface {
	UpsertRecord(ctx context.Context, rec models.Record) error
	RecordsByKind(ctx context.Context, kind models.RecordKind) ([]models.Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

// Classifier decides whether a query asks about a specific person.
type Classifier interface {
	Classify(query string) models.Query
}

// Retriever runs the hybrid dense+sparse search.
type Retriever interface {
	Retrieve(ctx context.Context, query models.Query) ([]models.SearchResult, error)
}
