package chunker

import (
	"fmt"
	"strings"

	"github.com/xhad/docdex/internal/models"
)

type ChunkerConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	BackoffWindow int // how far a cut may retract to land on whitespace
}

// Chunker splits normalized document text into overlapping fixed-size
// segments. Chunking is pure: identical input always yields identical
// chunks, so chunk ids are stable across re-processing.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.BackoffWindow <= 0 {
		config.BackoffWindow = 32
	}

	return Chunker{config: config}
}

// Normalize collapses all runs of whitespace to single spaces. Chunk offsets
// refer to the normalized text.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits text into chunks of at most ChunkSize characters, each chunk
// starting ChunkOverlap characters before the end of the previous one. Cuts
// that would land mid-word retract to the nearest preceding whitespace within
// BackoffWindow; when no boundary is close enough the cut stays exact.
// Whitespace-only input yields no chunks.
func (c Chunker) Chunk(docID, text string) []models.Chunk {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}

	size := c.config.ChunkSize
	overlap := c.config.ChunkOverlap

	var chunks []models.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + size
		if end >= len(norm) {
			end = len(norm)
		} else {
			end = c.retract(norm, start, end)
		}

		chunks = append(chunks, models.Chunk{
			ID:    fmt.Sprintf("%s_%d", docID, seq),
			DocID: docID,
			Seq:   seq,
			Text:  norm[start:end],
			Start: start,
			End:   end,
		})

		if end == len(norm) {
			break
		}
		start = end - overlap
	}

	return chunks
}

// retract moves a cut off the middle of a word. The cut must still advance
// past the overlap region, otherwise chunking would stall.
func (c Chunker) retract(norm string, start, end int) int {
	if norm[end] == ' ' || norm[end-1] == ' ' {
		return end
	}

	window := c.config.BackoffWindow
	low := end - window
	if low < start {
		low = start
	}
	cut := strings.LastIndexByte(norm[low:end], ' ')
	if cut < 0 {
		return end // no boundary in the window: exact character cut
	}

	boundary := low + cut + 1
	if boundary <= start+c.config.ChunkOverlap {
		return end
	}
	return boundary
}
