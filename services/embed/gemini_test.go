package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	model    string
	config   *genai.EmbedContentConfig
	contents []*genai.Content
	resp     *genai.EmbedContentResponse
	err      error
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGemini_Embed(t *testing.T) {
	fake := &fakeModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
	}}
	g := &Gemini{Models: fake, Model: "text-embedding-004", Dimensions: 3}

	vec, err := g.Embed(context.Background(), "what is a DPIA?")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-004", fake.model)
	assert.Equal(t, TaskRetrievalQuery, fake.config.TaskType)
	require.NotNil(t, fake.config.OutputDimensionality)
	assert.Equal(t, int32(3), *fake.config.OutputDimensionality)
	require.Len(t, fake.contents, 1)
	assert.Equal(t, "what is a DPIA?", fake.contents[0].Parts[0].Text)
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		fake *fakeModels
	}{
		{"empty text", "  ", &fakeModels{}},
		{"api error", "q", &fakeModels{err: errors.New("quota exceeded")}},
		{"no embeddings", "q", &fakeModels{resp: &genai.EmbedContentResponse{}}},
		{"empty vector", "q", &fakeModels{resp: &genai.EmbedContentResponse{
			Embeddings: []*genai.ContentEmbedding{{}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gemini{Models: tt.fake, Model: "m"}
			vec, err := g.Embed(context.Background(), tt.text)
			assert.Error(t, err)
			assert.Nil(t, vec)
		})
	}
}
