package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/pkg/llm"
)

type fakeModel struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, msg := range messages {
		if msg.Role == llms.ChatMessageTypeHuman {
			for _, part := range msg.Parts {
				if text, ok := part.(llms.TextContent); ok {
					f.lastPrompt = text.Text
				}
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.reply, f.err
}

func sampleResults() []models.SearchResult {
	return []models.SearchResult{
		{ChunkID: "a_0", DocID: "a", FilePath: "/docs/austin_wtp.pdf", Content: "Plant expansion scope.", Score: 0.9},
		{ChunkID: "b_0", DocID: "b", FilePath: "/docs/jane_smith_resume.pdf", Content: "Jane Smith led design.", Score: 0.8},
		{ChunkID: "a_1", DocID: "a", FilePath: "/docs/austin_wtp.pdf", Content: "Phase two budget.", Score: 0.7},
	}
}

func TestCompose_ReturnsAnswerAndReferences(t *testing.T) {
	model := &fakeModel{reply: "The plant was expanded in phase two."}
	c := llm.NewComposerWithModel(model, llm.ComposerConfig{})

	query := models.Query{Raw: "what was the expansion scope"}
	answer, err := c.Compose(context.Background(), query, sampleResults(), llm.ModeSummarize)
	require.NoError(t, err)

	assert.Equal(t, "The plant was expanded in phase two.", answer.Text)
	// references are deduplicated and ordered by rank
	assert.Equal(t, []string{"austin_wtp.pdf", "jane_smith_resume.pdf"}, answer.References)
}

func TestCompose_NoResults(t *testing.T) {
	c := llm.NewComposerWithModel(&fakeModel{}, llm.ComposerConfig{})

	_, err := c.Compose(context.Background(), models.Query{Raw: "q"}, nil, llm.ModeSummarize)
	assert.ErrorIs(t, err, llm.ErrNoContext)
}

func TestCompose_BackendFailureSurfaced(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	c := llm.NewComposerWithModel(model, llm.ComposerConfig{})

	_, err := c.Compose(context.Background(), models.Query{Raw: "q"}, sampleResults(), llm.ModeSummarize)
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrNoContext)
	assert.Contains(t, err.Error(), "composition backend")
}

func TestCompose_PersonModePromptStructure(t *testing.T) {
	model := &fakeModel{reply: "profile"}
	c := llm.NewComposerWithModel(model, llm.ComposerConfig{})

	query := models.Query{
		Raw:     "Give me all projects that Jane Smith has worked on",
		Mode:    models.ModePerson,
		Subject: "Jane Smith",
	}
	_, err := c.Compose(context.Background(), query, sampleResults(), llm.ModePerson)
	require.NoError(t, err)

	prompt := model.lastPrompt
	assert.Contains(t, prompt, "Jane Smith")
	profile := "Profile summary"
	projects := "Project list"
	roles := "Roles held"
	expertise := "Areas of expertise"
	for _, section := range []string{profile, projects, roles, expertise} {
		assert.Contains(t, prompt, section)
	}
	// fixed section order
	assert.Less(t, indexOf(prompt, profile), indexOf(prompt, projects))
	assert.Less(t, indexOf(prompt, projects), indexOf(prompt, roles))
	assert.Less(t, indexOf(prompt, roles), indexOf(prompt, expertise))
}

func TestBuildPrompt_RespectsContextBudget(t *testing.T) {
	c := llm.NewComposerWithModel(&fakeModel{}, llm.ComposerConfig{ContextBudget: 10})

	results := sampleResults()
	prompt := c.BuildPrompt(models.Query{Raw: "q"}, results, llm.ModeSummarize)

	// the top result always fits; the later ones get dropped
	assert.Contains(t, prompt, "Plant expansion scope.")
	assert.NotContains(t, prompt, "Phase two budget.")
}

func TestReferences_Deduplicated(t *testing.T) {
	refs := llm.References(sampleResults())
	assert.Equal(t, []string{"austin_wtp.pdf", "jane_smith_resume.pdf"}, refs)

	assert.Empty(t, llm.References(nil))
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"summarize", "analyze", "explain", "detail", "person"} {
		mode, err := llm.ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(mode))
	}

	_, err := llm.ParseMode("poetic")
	assert.Error(t, err)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
