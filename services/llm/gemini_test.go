package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	prompt string
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func respWith(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGemini_Generate(t *testing.T) {
	fake := &fakeModels{resp: respWith(
		&genai.Part{Text: "thinking...", Thought: true},
		&genai.Part{Text: "  A DPO is "},
		&genai.Part{Text: "a data protection officer.\n"},
	)}
	g := &Gemini{Models: fake, Model: "gemini-2.5-flash"}

	text, err := g.Generate(context.Background(), "PROMPT")
	require.NoError(t, err)

	assert.Equal(t, "A DPO is a data protection officer.", text)
	assert.Equal(t, "PROMPT", fake.prompt)
}

func TestGemini_TransportError(t *testing.T) {
	boom := errors.New("rpc error: unavailable")
	g := &Gemini{Models: &fakeModels{err: boom}, Model: "m"}

	_, err := g.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}

func TestGemini_MalformedResponse(t *testing.T) {
	tests := map[string]*genai.GenerateContentResponse{
		"nil response":  nil,
		"no candidates": {},
		"nil content":   {Candidates: []*genai.Candidate{{}}},
		"blank text":    respWith(&genai.Part{Text: "   "}),
		"blocked prompt": {
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		},
	}
	for name, resp := range tests {
		t.Run(name, func(t *testing.T) {
			g := &Gemini{Models: &fakeModels{resp: resp}, Model: "m"}
			_, err := g.Generate(context.Background(), "p")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}
