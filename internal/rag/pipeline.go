package rag

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"privacyx/internal/telemetry"
)

// DefaultTopK is the number of fragments requested per question.
const DefaultTopK = 5

var tracer = otel.Tracer("privacyx/rag")

// Pipeline runs one question at a time through authenticate, embed, retrieve,
// prompt and generate. It holds no per-question state and is safe for
// concurrent use.
type Pipeline struct {
	Gate      SessionGate
	Embedder  Embedder
	Index     VectorIndex
	Generator Generator
	Prompt    PromptBuilder

	TopK            int
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration

	// OnStage, when set, is called on every state transition.
	OnStage func(Stage)
}

type run struct {
	p     *Pipeline
	stage Stage
	user  string
	log   *logrus.Entry
}

func (r *run) enter(s Stage) {
	r.stage = s
	r.log.WithField("stage", s.String()).Debug("pipeline stage")
	if r.p.OnStage != nil {
		r.p.OnStage(s)
	}
}

func (r *run) fail(span trace.Span, kind, err error) error {
	failed := r.stage
	r.enter(StageFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &StageError{Stage: failed, User: r.user, Kind: kind, Err: err}
}

// Ask answers question for the holder of token. Authentication, embedding and
// retrieval failures abort with an error; a generation failure still yields
// an Answer whose text starts with "Error: ".
func (p *Pipeline) Ask(ctx context.Context, token, question string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "rag.Ask")
	defer span.End()

	r := &run{p: p, stage: StageUnauthenticated, log: logrus.WithField("component", "pipeline")}
	if p.OnStage != nil {
		p.OnStage(StageUnauthenticated)
	}

	username, err := p.Gate.Authenticate(ctx, token)
	if err != nil {
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeUnauthenticated).Inc()
		return nil, r.fail(span, nil, err)
	}
	r.user = username
	r.log = r.log.WithField("username", username)
	span.SetAttributes(attribute.String("privacyx.user", username))
	r.enter(StageAuthenticated)

	answer, err := p.answer(ctx, r, span, username, question)
	if err != nil {
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeFailed).Inc()
		r.log.WithError(err).Error("question failed")
		return nil, err
	}
	if answer.Failed() {
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeDegraded).Inc()
	} else {
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeAnswered).Inc()
	}
	r.enter(StageCompleted)
	return answer, nil
}

func (p *Pipeline) answer(ctx context.Context, r *run, span trace.Span, username, question string) (*Answer, error) {
	r.enter(StageEmbedding)
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, r.fail(span, ErrEmbedding, ErrEmptyQuestion)
	}

	vector, err := p.embed(ctx, question)
	if err != nil {
		return nil, r.fail(span, ErrEmbedding, err)
	}

	r.enter(StageRetrieving)
	fragments, err := p.search(ctx, vector)
	if err != nil {
		return nil, r.fail(span, ErrIndexUnavailable, err)
	}
	r.log.WithField("fragments", len(fragments)).Debug("fragments retrieved")

	r.enter(StagePrompting)
	prompt := p.Prompt.Build(question, fragments)

	r.enter(StageGenerating)
	answer := &Answer{
		User:     username,
		Question: question,
		Sources:  fragments,
	}
	text, err := p.generate(ctx, prompt)
	if err != nil {
		r.log.WithError(err).Warn("generation failed, returning error answer")
		span.RecordError(err)
		answer.Err = &GenerationError{Err: err}
		answer.Text = "Error: " + err.Error()
		return answer, nil
	}
	answer.Text = strings.TrimSpace(text)
	return answer, nil
}

func (p *Pipeline) embed(ctx context.Context, question string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "rag.Embed")
	defer span.End()
	ctx, cancel := withTimeout(ctx, p.EmbedTimeout)
	defer cancel()
	defer observe(StageEmbedding, time.Now())

	vector, err := p.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}
	span.SetAttributes(attribute.Int("privacyx.vector_dims", len(vector)))
	return vector, nil
}

func (p *Pipeline) search(ctx context.Context, vector []float32) ([]Fragment, error) {
	k := p.topK()
	ctx, span := tracer.Start(ctx, "rag.Search", trace.WithAttributes(attribute.Int("privacyx.top_k", k)))
	defer span.End()
	ctx, cancel := withTimeout(ctx, p.SearchTimeout)
	defer cancel()
	defer observe(StageRetrieving, time.Now())

	fragments, err := p.Index.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	fragments = Rank(fragments, k)
	telemetry.FragmentsRetrieved.Observe(float64(len(fragments)))
	return fragments, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.Generate")
	defer span.End()
	ctx, cancel := withTimeout(ctx, p.GenerateTimeout)
	defer cancel()
	defer observe(StageGenerating, time.Now())

	return p.Generator.Generate(ctx, prompt)
}

func (p *Pipeline) topK() int {
	if p.TopK < 1 {
		return DefaultTopK
	}
	return p.TopK
}

// Rank orders fragments by descending score, keeping index order for ties,
// and keeps at most k of them. The input slice is not modified.
func Rank(fragments []Fragment, k int) []Fragment {
	ranked := make([]Fragment, len(fragments))
	copy(ranked, fragments)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(stage Stage, start time.Time) {
	telemetry.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
}
