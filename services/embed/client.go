package embed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"privacyx/internal/config"
	"privacyx/internal/rag"
)

// NewClient builds the embedder selected in config.
func NewClient(ctx context.Context, cfg config.EmbedderConfig) (rag.Embedder, error) {
	log := logrus.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"model":    cfg.Model,
	})
	log.Info("connecting to embedding service")

	switch cfg.Provider {
	case "gemini":
		e, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.Dimensions)
		if err != nil {
			log.WithError(err).Error("failed to create gemini embedder")
			return nil, err
		}
		return e, nil
	case "ollama":
		e, err := NewOllama(cfg.OllamaURL, cfg.Model, &http.Client{Timeout: cfg.Timeout})
		if err != nil {
			log.WithError(err).Error("failed to create ollama embedder")
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}
