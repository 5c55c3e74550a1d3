package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/docdex/internal/models"
)

// UpsertRecord writes a person/project record and its embedding, keyed by
// record id. The duplicate merger calls this to persist merged payloads.
func (s *Store) UpsertRecord(ctx context.Context, rec models.Record) error {
	if rec.ID == uuid.Nil {
		return fmt.Errorf("record %q has no id", rec.Title)
	}
	if len(rec.Embedding) != s.config.VectorDim {
		return fmt.Errorf("record %q embedding has dimension %d, store expects %d",
			rec.Title, len(rec.Embedding), s.config.VectorDim)
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for record %q: %w", rec.Title, err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s_records (id, kind, key, title, payload, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			key = EXCLUDED.key,
			title = EXCLUDED.title,
			payload = EXCLUDED.payload,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`,
		s.config.TableName)

	_, err = s.pool.Exec(ctx, stmt,
		rec.ID, string(rec.Kind), rec.Key, rec.Title, payload,
		pgvector.NewVector(rec.Embedding), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert record %q: %w", rec.Title, err)
	}
	return nil
}

// RecordsByKind loads every stored record of one kind.
func (s *Store) RecordsByKind(ctx context.Context, kind models.RecordKind) ([]models.Record, error) {
	stmt := fmt.Sprintf(`
		SELECT id, kind, key, title, payload, updated_at
		FROM %s_records WHERE kind = $1
		ORDER BY updated_at DESC`, s.config.TableName)

	rows, err := s.pool.Query(ctx, stmt, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var kindStr string
		var payload []byte
		if err := rows.Scan(&rec.ID, &kindStr, &rec.Key, &rec.Title, &payload, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		rec.Kind = models.RecordKind(kindStr)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("corrupt payload for record %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteRecord removes a superseded record after a merge.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s_records WHERE id = $1", s.config.TableName)
	if _, err := s.pool.Exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}
