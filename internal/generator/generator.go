// Package generator produces AI questions and hints for the dispatcher.
package generator

import (
	"context"
	"errors"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Trigger reasons passed to the generator. They select the prompt shape.
const (
	ReasonPause             = "pause"
	ReasonLongPause         = "long_pause"
	ReasonNoProgress        = "no_progress"
	ReasonExecutionFailures = "execution_failures"
	ReasonManualRequest     = "manual_request"
	ReasonChallenge         = "challenge"
)

// ErrMalformedResponse indicates the model returned empty or unparseable
// content. Callers treat it the same as any generator failure: no resource
// is consumed and no error reaches the candidate.
var ErrMalformedResponse = errors.New("generator: malformed or empty response")

// Request carries everything the generator needs to produce a question or
// hint for the current candidate state.
type Request struct {
	Code               string
	ProblemDescription string
	Language           string
	TriggerReason      string
	PauseDuration      time.Duration
	Metrics            domain.MetricsSnapshot
	PriorContext       string
}

// Result is the generated intervention content plus model metadata.
type Result struct {
	Content  string
	Metadata map[string]string
}

// Generator is the external question/hint producer. Implementations must
// honor ctx cancellation and deadlines; the dispatcher bounds every call.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Evaluation asks whether a candidate's answer to a question shows they are
// on the right track.
type Evaluation struct {
	Question string
	Response string
	Code     string
	Problem  string
}

// Verdict is the evaluator's judgment of a candidate response.
type Verdict struct {
	OnRightTrack bool
	Feedback     string
	Confidence   float64
}

// Evaluator judges candidate responses for reward computation. A failing
// evaluator is non-fatal; the dispatcher falls back to a neutral reward.
type Evaluator interface {
	Evaluate(ctx context.Context, ev Evaluation) (*Verdict, error)
}
