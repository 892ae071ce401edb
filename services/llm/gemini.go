package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ErrMalformedResponse is returned when the model answers without usable text.
var ErrMalformedResponse = errors.New("model returned no text")

// ContentGenerator is the part of the genai Models service used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini answers prompts with a hosted Gemini model.
type Gemini struct {
	Models ContentGenerator
	Model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create genai client: %w", err)
	}
	return &Gemini{Models: client.Models, Model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	log := logrus.WithField("model", g.Model)
	log.WithField("prompt_length", len(prompt)).Debug("sending prompt to gemini")

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	resp, err := g.Models.GenerateContent(ctx, g.Model, contents, nil)
	if err != nil {
		log.WithError(err).Warn("gemini generate call failed")
		return "", err
	}

	text := candidateText(resp)
	if text == "" {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", ErrMalformedResponse, resp.PromptFeedback.BlockReason)
		}
		return "", ErrMalformedResponse
	}
	return text, nil
}

// candidateText joins the non-thought text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}
