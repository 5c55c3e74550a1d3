package llm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/docdex/internal/models"
)

// Mode selects the composition prompt template.
type Mode string

const (
	ModeSummarize Mode = "summarize"
	ModeAnalyze   Mode = "analyze"
	ModeExplain   Mode = "explain"
	ModeDetail    Mode = "detail"
	ModePerson    Mode = "person"
)

// ErrNoContext is returned when composition is attempted with zero retrieved
// chunks. Callers must not confuse this with a backend failure.
var ErrNoContext = errors.New("no search results to compose from")

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSummarize, ModeAnalyze, ModeExplain, ModeDetail, ModePerson:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown composition mode %q", s)
}

type ComposerConfig struct {
	Model         string
	BaseURL       string // Ollama server URL
	MaxTokens     int
	Temperature   float64
	ContextBudget int // token budget for retrieved chunks in the prompt
}

// Composer builds a mode-specific prompt around retrieved chunks and invokes
// the language model once. References come from chunk metadata, never from
// parsing the generated text.
type Composer struct {
	config ComposerConfig
	llm    llms.Model

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewComposerWithConfig(config ComposerConfig) (*Composer, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize composition model: %w", err)
	}

	return NewComposerWithModel(model, config), nil
}

// NewComposerWithModel wires an explicit language model, for injection and
// tests.
func NewComposerWithModel(model llms.Model, config ComposerConfig) *Composer {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2000
	}
	if config.Temperature <= 0 || config.Temperature > 2 {
		config.Temperature = 0.2
	}
	if config.ContextBudget <= 0 {
		config.ContextBudget = 3000
	}

	return &Composer{config: config, llm: model}
}

// Compose answers the query from the retrieved results under the given mode.
func (c *Composer) Compose(ctx context.Context, query models.Query, results []models.SearchResult, mode Mode) (models.Answer, error) {
	if len(results) == 0 {
		return models.Answer{}, ErrNoContext
	}

	prompt := c.BuildPrompt(query, results, mode)
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(c.config.MaxTokens),
		llms.WithTemperature(c.config.Temperature))
	if err != nil {
		return models.Answer{}, fmt.Errorf("composition backend: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return models.Answer{}, fmt.Errorf("composition backend: empty response")
	}

	return models.Answer{
		Text:       resp.Choices[0].Content,
		References: References(results),
	}, nil
}

const systemTemplate = "You are an assistant answering questions about a firm's project documents and resumes. " +
	"Use only the provided context. If the context does not contain the answer, say so."

// BuildPrompt renders the mode template with the query and as many chunk
// texts as fit the context token budget.
func (c *Composer) BuildPrompt(query models.Query, results []models.SearchResult, mode Mode) string {
	context := c.packContext(results)

	switch mode {
	case ModePerson:
		subject := query.Subject
		if subject == "" {
			subject = "the person in question"
		}
		return fmt.Sprintf("Context:\n%s\n\nAnswer the question about %s: %s\n\n"+
			"Structure the answer in this exact order:\n"+
			"1. Profile summary\n2. Project list\n3. Roles held\n4. Areas of expertise",
			context, subject, query.Raw)
	case ModeAnalyze:
		return fmt.Sprintf("Context:\n%s\n\nAnalyze the material relevant to this question, noting patterns and contradictions: %s", context, query.Raw)
	case ModeExplain:
		return fmt.Sprintf("Context:\n%s\n\nExplain, for a non-specialist, the answer to: %s", context, query.Raw)
	case ModeDetail:
		return fmt.Sprintf("Context:\n%s\n\nAnswer in full detail, citing specific figures and dates from the context: %s", context, query.Raw)
	default: // ModeSummarize
		return fmt.Sprintf("Context:\n%s\n\nSummarize the answer to: %s", context, query.Raw)
	}
}

// packContext concatenates chunk texts in rank order until the token budget
// is spent. The top result is always included.
func (c *Composer) packContext(results []models.SearchResult) string {
	var out strings.Builder
	used := 0
	for i, res := range results {
		block := fmt.Sprintf("Source: %s\n%s\n\n", filepath.Base(res.FilePath), res.Content)
		cost := c.countTokens(block)
		if i > 0 && used+cost > c.config.ContextBudget {
			break
		}
		out.WriteString(block)
		used += cost
	}
	return strings.TrimSpace(out.String())
}

// countTokens uses the cl100k encoding when it can be loaded and falls back
// to a four-characters-per-token estimate when it cannot (offline runs).
func (c *Composer) countTokens(text string) int {
	c.encOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

// References lists the distinct source filenames of the results, in rank
// order. Citation correctness never depends on the generated text.
func References(results []models.SearchResult) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, res := range results {
		name := filepath.Base(res.FilePath)
		if name == "." || name == "/" || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}
	return refs
}
