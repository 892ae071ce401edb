package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// TaskRetrievalQuery tunes the embedding for search queries.
const TaskRetrievalQuery = "RETRIEVAL_QUERY"

// ContentEmbedder is the part of the genai Models service used here.
type ContentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Gemini embeds questions with a hosted Gemini embedding model.
type Gemini struct {
	Models     ContentEmbedder
	Model      string
	Dimensions int
}

func NewGemini(ctx context.Context, apiKey, model string, dimensions int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create genai client: %w", err)
	}
	return &Gemini{Models: client.Models, Model: model, Dimensions: dimensions}, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cannot embed empty text")
	}

	cfg := &genai.EmbedContentConfig{TaskType: TaskRetrievalQuery}
	if g.Dimensions > 0 {
		dims := int32(g.Dimensions)
		cfg.OutputDimensionality = &dims
	}

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}
	resp, err := g.Models.EmbedContent(ctx, g.Model, contents, cfg)
	if err != nil {
		logrus.WithError(err).WithField("model", g.Model).Error("gemini embed call failed")
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: response carried no vector")
	}

	values := resp.Embeddings[0].Values
	logrus.WithField("embedding_length", len(values)).Debug("received embedding")
	return values, nil
}
