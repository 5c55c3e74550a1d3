package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/docdex/internal/models"
)

type StoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// Store is the index manager: sole owner of embedding record lifecycle and
// of the processing markers that make re-ingestion resumable.
type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config StoreConfig) (*Store, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			file_path TEXT,
			file_type TEXT,
			content TEXT,
			metadata JSONB,
			embedding vector(%d),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.config.TableName, s.config.VectorDim)
	if _, err := s.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}

	createIndexes := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
			ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
		CREATE INDEX IF NOT EXISTS %[1]s_doc_id_idx ON %[1]s (doc_id)`,
		s.config.TableName)
	if _, err := s.pool.Exec(ctx, createIndexes); err != nil {
		return fmt.Errorf("failed to create chunk indexes: %w", err)
	}

	createMarkers := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s_processed (
			chunk_id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[1]s_processed_doc_idx ON %[1]s_processed (doc_id)`,
		s.config.TableName)
	if _, err := s.pool.Exec(ctx, createMarkers); err != nil {
		return fmt.Errorf("failed to create marker table: %w", err)
	}

	createRecords := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_records (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			title TEXT NOT NULL,
			payload JSONB,
			embedding vector(%d),
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.config.TableName, s.config.VectorDim)
	if _, err := s.pool.Exec(ctx, createRecords); err != nil {
		return fmt.Errorf("failed to create record table: %w", err)
	}

	return nil
}

// Upsert writes one embedding record, keyed by chunk id. Re-processing the
// same chunk overwrites the prior row and refreshes its recency.
func (s *Store) Upsert(ctx context.Context, rec models.EmbeddingRecord) error {
	if len(rec.Vector) != s.config.VectorDim {
		return fmt.Errorf("embedding for chunk %s has dimension %d, store expects %d",
			rec.ChunkID, len(rec.Vector), s.config.VectorDim)
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for chunk %s: %w", rec.ChunkID, err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, file_path, file_type, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			file_path = EXCLUDED.file_path,
			file_type = EXCLUDED.file_type,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()`,
		s.config.TableName)

	_, err = s.pool.Exec(ctx, stmt,
		rec.ChunkID, rec.DocID, rec.FilePath, rec.FileType, rec.Content,
		meta, pgvector.NewVector(rec.Vector))
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", rec.ChunkID, err)
	}
	return nil
}

// Query returns chunks above the similarity threshold ordered by descending
// similarity; ties go to the most recently written row.
func (s *Store) Query(ctx context.Context, vector []float32, threshold float64, limit int, filter *models.Filter) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	where, args := buildFilter(filter, 4)
	query := fmt.Sprintf(`
		SELECT id, doc_id, file_path, content, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2%s
		ORDER BY embedding <=> $1 ASC, updated_at DESC
		LIMIT $3`,
		s.config.TableName, where)

	queryArgs := append([]interface{}{pgvector.NewVector(vector), threshold, limit}, args...)
	rows, err := s.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var res models.SearchResult
		if err := rows.Scan(&res.ChunkID, &res.DocID, &res.FilePath, &res.Content, &res.Dense); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		res.Score = res.Dense
		results = append(results, res)
	}
	return results, rows.Err()
}

// buildFilter renders the optional filter predicates, numbering placeholders
// from the given position.
func buildFilter(filter *models.Filter, nextArg int) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	var args []interface{}
	if filter.Subject != "" {
		clauses = append(clauses, fmt.Sprintf("(content ILIKE $%d OR file_path ILIKE $%d)", nextArg, nextArg))
		args = append(args, "%"+filter.Subject+"%")
		nextArg++
	}
	if filter.FileType != "" {
		clauses = append(clauses, fmt.Sprintf("file_type = $%d", nextArg))
		args = append(args, filter.FileType)
		nextArg++
	}
	if filter.DocID != "" {
		clauses = append(clauses, fmt.Sprintf("doc_id = $%d", nextArg))
		args = append(args, filter.DocID)
		nextArg++
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// DeleteByDocument removes a document's chunks and processing markers.
func (s *Store) DeleteByDocument(ctx context.Context, docID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", s.config.TableName)
	if _, err := s.pool.Exec(ctx, stmt, docID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", docID, err)
	}
	return s.ClearProcessed(ctx, docID)
}

// MarkProcessed records that the given chunks finished the ingest pipeline.
func (s *Store) MarkProcessed(ctx context.Context, docID string, chunkIDs []string) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s_processed (chunk_id, doc_id) VALUES ($1, $2)
		ON CONFLICT (chunk_id) DO NOTHING`, s.config.TableName)
	for _, chunkID := range chunkIDs {
		if _, err := s.pool.Exec(ctx, stmt, chunkID, docID); err != nil {
			return fmt.Errorf("failed to mark chunk %s processed: %w", chunkID, err)
		}
	}
	return nil
}

// ProcessedChunks returns the set of chunk ids already marked for a document.
func (s *Store) ProcessedChunks(ctx context.Context, docID string) (map[string]bool, error) {
	stmt := fmt.Sprintf("SELECT chunk_id FROM %s_processed WHERE doc_id = $1", s.config.TableName)
	rows, err := s.pool.Query(ctx, stmt, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to read markers for %s: %w", docID, err)
	}
	defer rows.Close()

	processed := make(map[string]bool)
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, err
		}
		processed[chunkID] = true
	}
	return processed, rows.Err()
}

// ClearProcessed drops a document's markers so force re-processing starts
// from scratch.
func (s *Store) ClearProcessed(ctx context.Context, docID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s_processed WHERE doc_id = $1", s.config.TableName)
	if _, err := s.pool.Exec(ctx, stmt, docID); err != nil {
		return fmt.Errorf("failed to clear markers for %s: %w", docID, err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
