// Package rag answers questions against the indexed corpus: it embeds the
// question, retrieves the nearest fragments, builds a grounding prompt and asks
// the language model for an answer.
package rag

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrEmbedding        = errors.New("embedding failed")
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// Fragment is one nearest-neighbour hit. Text goes into the prompt, Source and
// Score are provenance shown to the user.
type Fragment struct {
	Text   string
	Source string
	Score  float64
}

// Answer is the outcome of one question. When generation failed Text holds
// "Error: <message>" and Err is set; Sources are kept either way.
type Answer struct {
	User     string
	Question string
	Text     string
	Sources  []Fragment
	Err      *GenerationError
}

// Failed reports whether the answer text is an error message.
func (a *Answer) Failed() bool {
	return a.Err != nil
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex returns at most k fragments nearest to vector.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int) ([]Fragment, error)
}

// Generator completes a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionGate resolves a session token to a username.
type SessionGate interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Stage is a state of a pipeline run.
type Stage int

const (
	StageUnauthenticated Stage = iota
	StageAuthenticated
	StageEmbedding
	StageRetrieving
	StagePrompting
	StageGenerating
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageAuthenticated:
		return "authenticated"
	case StageEmbedding:
		return "embedding"
	case StageRetrieving:
		return "retrieving"
	case StagePrompting:
		return "prompting"
	case StageGenerating:
		return "generating"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError is a fatal pipeline failure. It matches both its kind
// (ErrEmbedding, ErrIndexUnavailable) and the underlying cause with errors.Is.
type StageError struct {
	Stage Stage
	User  string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// GenerationError is a recovered failure of the answer generator.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
