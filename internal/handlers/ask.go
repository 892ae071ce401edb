package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"privacyx/internal/auth"
	"privacyx/internal/rag"
)

// Asker runs one question through the retrieval pipeline.
type Asker interface {
	Ask(ctx context.Context, token, question string) (*rag.Answer, error)
}

type AskHandler struct {
	Pipeline Asker
	Render   *Renderer

	// Unauthorized renders requests without an active session.
	Unauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

// Ask authenticates inside the pipeline, so no session middleware is needed
// in front of it.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	question := r.PostFormValue("question")

	answer, err := h.Pipeline.Ask(r.Context(), auth.TokenFromRequest(r), question)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.Unauthorized(w, r, err)
		return
	case errors.Is(err, rag.ErrEmptyQuestion):
		var username string
		var stageErr *rag.StageError
		if errors.As(err, &stageErr) {
			username = stageErr.User
		}
		h.Render.Render(w, http.StatusBadRequest, "home", pageData{
			Title: "Home",
			User:  username,
			Error: "Please enter a question.",
		})
		return
	case errors.Is(err, rag.ErrEmbedding):
		h.Render.Render(w, http.StatusBadGateway, "error", pageData{
			Title: "Question could not be processed",
			Error: "The embedding service failed to process your question. Please try again later.",
		})
		return
	case errors.Is(err, rag.ErrIndexUnavailable):
		h.Render.Render(w, http.StatusServiceUnavailable, "error", pageData{
			Title: "Document search unavailable",
			Error: "The document index could not be reached. Please try again later.",
		})
		return
	default:
		log.WithError(err).Error("ask: unexpected pipeline error")
		h.Render.Render(w, http.StatusInternalServerError, "error", pageData{
			Title: "Something went wrong",
			Error: "An internal error occurred. Please try again.",
		})
		return
	}

	sources := make([]string, len(answer.Sources))
	for i, f := range answer.Sources {
		sources[i] = FormatSource(f)
	}

	log.WithFields(logrus.Fields{
		"username": answer.User,
		"sources":  len(sources),
		"degraded": answer.Failed(),
	}).Info("question answered")

	h.Render.Render(w, http.StatusOK, "home", pageData{
		Title:      "Home",
		User:       answer.User,
		Question:   answer.Question,
		Answered:   true,
		Failed:     answer.Failed(),
		AnswerHTML: h.Render.Markdown(answer.Text),
		Sources:    sources,
	})
}
