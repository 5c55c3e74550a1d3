package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var composerModes = map[string]bool{
	"summarize": true,
	"analyze":   true,
	"explain":   true,
	"detail":    true,
	"person":    true,
}

// Validate checks the merged config and reports every problem at once
// rather than failing on the first one.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Database.URL == "" {
		errs = append(errs, ValidationError{"database.url", "connection string is required (or set DATABASE_URL)"})
	}
	if c.Database.VectorDim <= 0 {
		errs = append(errs, ValidationError{"database.vector_dim", "must be positive"})
	}

	if err := checkURL(c.LLM.BaseURL); err != nil {
		errs = append(errs, ValidationError{"llm.base_url", err.Error()})
	}
	if err := checkURL(c.Extractor.BaseURL); err != nil {
		errs = append(errs, ValidationError{"extractor.base_url", err.Error()})
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"extractor.timeout_seconds", "must be positive"})
	}

	if c.Processor.ChunkSize <= 0 {
		errs = append(errs, ValidationError{"processor.chunk_size", "must be positive"})
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errs = append(errs, ValidationError{"processor.chunk_overlap", "must be in [0, chunk_size)"})
	}

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, ValidationError{"retrieval.top_k", "must be positive"})
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		errs = append(errs, ValidationError{"retrieval.alpha", "must be in [0, 1]"})
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold >= 1 {
		errs = append(errs, ValidationError{"retrieval.threshold", "must be in [0, 1)"})
	}

	if c.Pipeline.Workers <= 0 {
		errs = append(errs, ValidationError{"pipeline.workers", "must be positive"})
	}
	if c.Pipeline.EmbedBatch <= 0 {
		errs = append(errs, ValidationError{"pipeline.embed_batch", "must be positive"})
	}
	if c.Pipeline.RequestsPerSecond <= 0 {
		errs = append(errs, ValidationError{"pipeline.requests_per_second", "must be positive"})
	}

	if !composerModes[strings.ToLower(c.Composer.Mode)] {
		errs = append(errs, ValidationError{"composer.mode", "must be one of summarize, analyze, explain, detail, person"})
	}
	if c.Composer.ContextBudget <= 0 {
		errs = append(errs, ValidationError{"composer.context_budget", "must be positive"})
	}

	if c.Dedupe.Threshold <= 0 || c.Dedupe.Threshold > 1 {
		errs = append(errs, ValidationError{"dedupe.threshold", "must be in (0, 1]"})
	}

	return errs
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not a valid URL", raw)
	}
	return nil
}
