package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/pkg/retry"
	"golang.org/x/time/rate"
)

// ErrDimension reports an embedding whose length does not match the
// configured dimensionality. This is a hard error for the affected unit and
// is never papered over by padding or truncation.
var ErrDimension = errors.New("embedding dimension mismatch")

// EmbeddingClient is the backend that turns texts into dense vectors.
// *ollama.LLM satisfies it; tests inject fakes.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	Model             string
	BaseURL           string // Ollama server URL
	Dimension         int
	MaxBatch          int     // texts per backend call
	RequestsPerSecond float64 // global cap across concurrent documents
	Policy            retry.Policy
}

// Embedder batches embedding calls against the backend, retrying transient
// failures and reporting per-text failures instead of failing whole batches.
type Embedder struct {
	config  EmbedderConfig
	client  EmbeddingClient
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return NewEmbedderWithClient(client, config), nil
}

// NewEmbedderWithClient wires an explicit backend client, keeping the
// throttling and retry behavior of the default constructor.
func NewEmbedderWithClient(client EmbeddingClient, config EmbedderConfig) *Embedder {
	if config.Dimension <= 0 {
		config.Dimension = 768
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = 16
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 4
	}
	if config.Policy.MaxAttempts == 0 {
		config.Policy = retry.DefaultPolicy()
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
}

func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

// Embed produces the vector for a single text, typically a query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(result.Failed) > 0 {
		return nil, result.Failed[0].Err
	}
	return result.Vectors[0], nil
}

// EmbedBatch embeds texts in sub-batches of MaxBatch. A sub-batch that still
// fails after retries is recorded in Failed; the rest of the batch proceeds.
// The returned error is non-nil only when the whole operation must stop
// (context cancellation).
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (models.BatchResult, error) {
	result := models.BatchResult{Vectors: make([][]float32, len(texts))}

	for start := 0; start < len(texts); start += e.config.MaxBatch {
		end := start + e.config.MaxBatch
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[start:end]

		var vectors [][]float32
		err := e.config.Policy.Do(ctx, func() error {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
			v, err := e.client.CreateEmbedding(ctx, sub)
			if err != nil {
				return classifyBackendErr(err)
			}
			vectors = v
			return nil
		})

		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			for i := range sub {
				result.Failed = append(result.Failed, models.BatchFailure{Index: start + i, Err: err})
			}
			continue
		}

		if len(vectors) != len(sub) {
			err := fmt.Errorf("backend returned %d embeddings for %d texts", len(vectors), len(sub))
			for i := range sub {
				result.Failed = append(result.Failed, models.BatchFailure{Index: start + i, Err: err})
			}
			continue
		}

		for i, vec := range vectors {
			if len(vec) != e.config.Dimension {
				result.Failed = append(result.Failed, models.BatchFailure{
					Index: start + i,
					Err:   fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), e.config.Dimension),
				})
				continue
			}
			result.Vectors[start+i] = vec
		}
	}

	return result, nil
}

// classifyBackendErr separates retryable backend failures (rate limits,
// network blips) from permanent ones (bad input, auth).
func classifyBackendErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.Transient(err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "too many requests", "connection refused", "connection reset", "unexpected eof", "timeout", "unavailable"} {
		if strings.Contains(msg, marker) {
			return retry.Transient(err)
		}
	}
	return err
}
