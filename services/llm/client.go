package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"privacyx/internal/config"
	"privacyx/internal/rag"
)

// NewClient builds the answer generator selected in config.
func NewClient(ctx context.Context, cfg config.GeneratorConfig) (rag.Generator, error) {
	logrus.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"model":    cfg.Model,
	}).Info("connecting to language model")

	var (
		gen rag.Generator
		err error
	)
	switch cfg.Provider {
	case "gemini":
		gen, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	case "ollama":
		gen, err = NewOllama(cfg.OllamaURL, cfg.Model, &http.Client{Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return gen, nil
}
