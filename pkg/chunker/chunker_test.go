package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docdex/pkg/chunker"
)

func TestChunk_EmptyAndWhitespaceInput(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10})

	assert.Empty(t, c.Chunk("doc1", ""))
	assert.Empty(t, c.Chunk("doc1", "   \n\t  "))
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50})

	chunks := c.Chunk("doc1", "A short document.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc1_0", chunks[0].ID)
	assert.Equal(t, "A short document.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestChunk_ReconstructsNormalizedText(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 80, ChunkOverlap: 20})

	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	norm := chunker.Normalize(text)

	chunks := c.Chunk("doc1", text)
	require.Greater(t, len(chunks), 1)

	var rebuilt strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			rebuilt.WriteString(ch.Text)
			continue
		}
		rebuilt.WriteString(ch.Text[20:])
	}
	assert.Equal(t, norm, rebuilt.String())
}

func TestChunk_RespectsSizeAndOverlap(t *testing.T) {
	size, overlap := 120, 30
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: size, ChunkOverlap: overlap})

	text := strings.Repeat("water treatment plant capacity expansion phase two ", 40)
	chunks := c.Chunk("doc1", text)
	require.Greater(t, len(chunks), 2)

	for i, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), size, "chunk %d too long", i)
		if i > 0 {
			prev := chunks[i-1]
			assert.Equal(t, prev.End-overlap, ch.Start)
			shared := prev.Text[len(prev.Text)-overlap:]
			assert.True(t, strings.HasPrefix(ch.Text, shared),
				"chunk %d does not share %d chars with its predecessor", i, overlap)
		}
	}
}

func TestChunk_PrefersWordBoundaries(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 50, ChunkOverlap: 10, BackoffWindow: 20})

	text := strings.Repeat("hydrology report appendix ", 20)
	norm := chunker.Normalize(text)
	chunks := c.Chunk("doc1", text)
	require.Greater(t, len(chunks), 1)

	// every non-final chunk should end at a whitespace boundary: either the
	// chunk ends with a space or the next character of the text is one
	for _, ch := range chunks[:len(chunks)-1] {
		endsOnSpace := ch.Text[len(ch.Text)-1] == ' '
		nextIsSpace := ch.End < len(norm) && norm[ch.End] == ' '
		assert.True(t, endsOnSpace || nextIsSpace,
			"chunk ending %q splits a word", ch.Text[len(ch.Text)-10:])
	}
}

func TestChunk_NoBoundaryInWindowHardCut(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 5, BackoffWindow: 8})

	// an unbroken token longer than the chunk size forces exact cuts
	text := strings.Repeat("x", 200)
	chunks := c.Chunk("doc1", text)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 40)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 64, ChunkOverlap: 16})

	text := strings.Repeat("deterministic output for identical input ", 30)
	first := c.Chunk("doc1", text)
	second := c.Chunk("doc1", text)
	assert.Equal(t, first, second)
}

func TestNewWithConfig_ClampsInvalidOverlap(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 50, ChunkOverlap: 50})

	text := strings.Repeat("overlap must stay below chunk size ", 10)
	chunks := c.Chunk("doc1", text)
	// would never terminate if the overlap were left >= size
	assert.NotEmpty(t, chunks)
}
