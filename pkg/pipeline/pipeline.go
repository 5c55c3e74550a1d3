package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/internal/types"
	"github.com/xhad/docdex/pkg/chunker"
)

type PipelineConfig struct {
	Workers int  // concurrent documents
	Force   bool // clear processing markers and re-index everything
}

// Pipeline walks a directory of PDF files and drives each one through
// extraction, chunking, embedding and indexing. Documents are processed
// concurrently; chunks within a document are embedded as one batch.
type Pipeline struct {
	config    PipelineConfig
	extractor types.Extractor
	embedder  types.Embedder
	store     types.VectorStore
	chunker   chunker.Chunker

	// OnProgress, when set, is called after each document finishes.
	OnProgress func(done, total int)
}

// Summary is the end-of-run report. Errors holds one entry per failed
// document or chunk; a run with a non-empty Errors can still have indexed
// most of the corpus.
type Summary struct {
	Documents     int
	Succeeded     int
	Failed        int
	Skipped       int
	ChunksIndexed int
	Errors        []error
}

func NewWithConfig(config PipelineConfig, extractor types.Extractor, embedder types.Embedder, store types.VectorStore, ch chunker.Chunker) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = 4
	}

	return &Pipeline{
		config:    config,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		chunker:   ch,
	}
}

// DocumentID derives a stable id from the file path, so re-processing the
// same file updates its chunks in place.
func DocumentID(path string) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(path)).String()
}

// Run processes every PDF under dir. It only returns an error when the run
// itself cannot proceed (unreadable directory, cancelled context); per-
// document failures are collected in the Summary instead.
func (p *Pipeline) Run(ctx context.Context, dir string) (Summary, error) {
	paths, err := collectPDFs(dir)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Documents: len(paths)}
	if len(paths) == 0 {
		return summary, nil
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		done  int
		queue = make(chan string)
	)

	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				res := p.processDocument(ctx, path)

				mu.Lock()
				switch {
				case res.skipped:
					summary.Skipped++
				case res.err != nil && res.indexed == 0:
					summary.Failed++
				default:
					summary.Succeeded++
				}
				summary.ChunksIndexed += res.indexed
				if res.err != nil {
					summary.Errors = append(summary.Errors, res.err)
				}
				done++
				if p.OnProgress != nil {
					p.OnProgress(done, len(paths))
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		select {
		case queue <- path:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return summary, ctx.Err()
		}
	}
	close(queue)
	wg.Wait()

	return summary, nil
}

type docResult struct {
	indexed int
	skipped bool
	err     error
}

func (p *Pipeline) processDocument(ctx context.Context, path string) docResult {
	docID := DocumentID(path)

	if p.config.Force {
		if err := p.store.ClearProcessed(ctx, docID); err != nil {
			return docResult{err: fmt.Errorf("%s: clearing markers: %w", path, err)}
		}
	}

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return docResult{err: fmt.Errorf("%s: %w", path, err)}
	}

	chunks := p.chunker.Chunk(docID, text)
	if len(chunks) == 0 {
		return docResult{skipped: true}
	}

	if !p.config.Force {
		processed, err := p.store.ProcessedChunks(ctx, docID)
		if err != nil {
			return docResult{err: fmt.Errorf("%s: reading markers: %w", path, err)}
		}
		chunks = pending(chunks, processed)
		if len(chunks) == 0 {
			return docResult{skipped: true}
		}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	batch, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return docResult{err: fmt.Errorf("%s: %w", path, err)}
	}

	failed := make(map[int]error, len(batch.Failed))
	for _, f := range batch.Failed {
		failed[f.Index] = f.Err
	}

	res := docResult{}
	docType := inferType(path)
	var indexedIDs []string
	for i, ch := range chunks {
		if ferr, ok := failed[i]; ok {
			res.err = joinErr(res.err, fmt.Errorf("%s: chunk %d: %w", path, ch.Seq, ferr))
			continue
		}

		rec := models.EmbeddingRecord{
			ChunkID:  ch.ID,
			DocID:    docID,
			FilePath: path,
			FileType: docType,
			Content:  ch.Text,
			Vector:   batch.Vectors[i],
			Metadata: map[string]interface{}{
				"title": titleFromPath(path),
				"seq":   ch.Seq,
			},
		}
		if err := p.store.Upsert(ctx, rec); err != nil {
			res.err = joinErr(res.err, fmt.Errorf("%s: chunk %d: %w", path, ch.Seq, err))
			continue
		}
		indexedIDs = append(indexedIDs, ch.ID)
	}

	if len(indexedIDs) > 0 {
		if err := p.store.MarkProcessed(ctx, docID, indexedIDs); err != nil {
			res.err = joinErr(res.err, fmt.Errorf("%s: marking processed: %w", path, err))
		}
	}
	res.indexed = len(indexedIDs)
	return res
}

func pending(chunks []models.Chunk, processed map[string]bool) []models.Chunk {
	if len(processed) == 0 {
		return chunks
	}
	out := chunks[:0:0]
	for _, ch := range chunks {
		if !processed[ch.ID] {
			out = append(out, ch)
		}
	}
	return out
}

func collectPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-'
	}), " ")
}

// inferType guesses the document category from the filename. It only feeds
// the file_type metadata column; retrieval works the same either way.
func inferType(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "resume") || strings.Contains(name, "cv"):
		return "resume"
	case strings.Contains(name, "project"):
		return "project"
	default:
		return "document"
	}
}

func joinErr(a, b error) error {
	if a == nil {
		return b
	}
	return fmt.Errorf("%w; %w", a, b)
}
