package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp      *genai.GenerateContentResponse
	err       error
	lastModel string
	lastCfg   *genai.GenerateContentConfig
	lastText  string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastCfg = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.lastText = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 8,
		},
	}
}

func TestGenAIComplete(t *testing.T) {
	g := &fakeGenerator{resp: textResponse("Thinking: north looks open.\nnorth")}
	c := newGenAICompleter("", g)

	resp, err := c.Complete(context.Background(), &Request{System: "play", Prompt: "Action:"})
	require.NoError(t, err)
	assert.Equal(t, "Thinking: north looks open.\nnorth", resp.Text)
	assert.Equal(t, DefaultGenAIModel, resp.ModelID)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 8, resp.Usage.OutputTokens)

	assert.Equal(t, DefaultGenAIModel, g.lastModel)
	assert.Equal(t, "Action:", g.lastText)
	require.NotNil(t, g.lastCfg)
	require.NotNil(t, g.lastCfg.SystemInstruction)
	assert.Equal(t, "play", g.lastCfg.SystemInstruction.Parts[0].Text)
}

func TestGenAIComplete_ModelOverride(t *testing.T) {
	g := &fakeGenerator{resp: textResponse("look")}
	c := newGenAICompleter("gemini-2.5-pro", g)

	resp, err := c.Complete(context.Background(), &Request{Prompt: "p", ModelID: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", g.lastModel)
	assert.Equal(t, "gemini-2.0-flash", resp.ModelID)
	assert.Nil(t, g.lastCfg)
}

func TestGenAIComplete_Errors(t *testing.T) {
	_, err := newGenAICompleter("", &fakeGenerator{err: errors.New("503")}).Complete(context.Background(), &Request{Prompt: "p"})
	require.ErrorContains(t, err, "503")

	_, err = newGenAICompleter("", &fakeGenerator{resp: textResponse("  ")}).Complete(context.Background(), &Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewGenAICompleter_RequiresKey(t *testing.T) {
	_, err := NewGenAICompleter(context.Background(), "", "")
	require.Error(t, err)
}

func TestMockCompleter(t *testing.T) {
	m := NewMockCompleter("mock-model", "first", "second")

	for _, want := range []string{"first", "second", "second"} {
		resp, err := m.Complete(context.Background(), &Request{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
		assert.Equal(t, "mock-model", resp.ModelID)
	}
	assert.Len(t, m.Calls(), 3)
}

func TestMockCompleter_Errors(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockCompleter("", "ok").FailWith(boom)

	_, err := m.Complete(context.Background(), &Request{Prompt: "p"})
	require.ErrorIs(t, err, boom)

	resp, err := m.Complete(context.Background(), &Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Complete(ctx, &Request{Prompt: "p"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	c, err := New(context.Background(), Config{Engine: EngineMock, Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &MockCompleter{}, c)

	_, err = New(context.Background(), Config{Engine: EngineGenAI})
	require.Error(t, err)

	_, err = New(context.Background(), Config{Engine: "openai"})
	require.ErrorContains(t, err, "unknown completion engine")
}
