package generator

import (
	"errors"
	"fmt"
	"strings"

	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

const (
	DefaultTone      = "professional"
	DefaultMaxLength = 500
	MinMaxLength     = 100
	MaxMaxLength     = 3000
)

// ErrInvalidRequest wraps every GenerationRequest validation failure.
var ErrInvalidRequest = errors.New("invalid generation request")

// GenerationRequest describes the post a caller wants.
type GenerationRequest struct {
	Topic        string `json:"topic"`
	Tone         string `json:"tone,omitempty"`
	MaxLength    int    `json:"max_length,omitempty"`
	StyleGuideID string `json:"style_guide_id,omitempty"`
}

// Normalize fills defaults and validates. The receiver is left untouched.
func (r GenerationRequest) Normalize() (GenerationRequest, error) {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Tone = strings.TrimSpace(r.Tone)
	r.StyleGuideID = strings.TrimSpace(r.StyleGuideID)
	if r.Topic == "" {
		return r, fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if r.Tone == "" {
		r.Tone = DefaultTone
	}
	if r.MaxLength == 0 {
		r.MaxLength = DefaultMaxLength
	}
	if r.MaxLength < MinMaxLength || r.MaxLength > MaxMaxLength {
		return r, fmt.Errorf("%w: max_length %d outside [%d, %d]", ErrInvalidRequest, r.MaxLength, MinMaxLength, MaxMaxLength)
	}
	return r, nil
}

// Input is everything one workflow run needs. Guideline is nil when the
// request has no style guideline.
type Input struct {
	Request    GenerationRequest
	Background string
	Guideline  *styleguide.Guideline
}

func (in Input) guidelineText() string {
	if in.Guideline == nil {
		return ""
	}
	return in.Guideline.Text
}

// Outline is the plan every draft of a run follows.
type Outline struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// Draft is one written attempt. Rewrites never modify an earlier Draft.
type Draft struct {
	Attempt  int      `json:"attempt"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	Rewrite  bool     `json:"rewrite"`
	Feedback string   `json:"feedback,omitempty"`
}

// ReviewResult is the parsed critique of one draft.
type ReviewResult struct {
	Score              float64 `json:"score"`
	GuidelineAdherence float64 `json:"guideline_adherence"`
	Quality            float64 `json:"quality"`
	ToneLength         float64 `json:"tone_length"`
	Approved           bool    `json:"approved"`
	Feedback           string  `json:"feedback,omitempty"`
	// Parsed is false when the evaluation fell back to the neutral result.
	Parsed bool `json:"parsed"`
}

// Phase is a state of the refinement loop.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseWriting   Phase = "writing"
	PhaseReviewing Phase = "reviewing"
	PhaseRewriting Phase = "rewriting"
	PhaseAccepted  Phase = "accepted"
	PhaseExhausted Phase = "exhausted"
)

// Terminal reports whether the loop stops in p.
func (p Phase) Terminal() bool {
	return p == PhaseAccepted || p == PhaseExhausted
}

// Verdict labels how a finished run ended.
type Verdict string

const (
	VerdictApproved             Verdict = "approved"
	VerdictApprovedReservations Verdict = "approved_with_reservations"
)

// AttemptKind distinguishes the first draft, automatic rewrites and
// caller-requested revisions.
type AttemptKind string

const (
	KindInitialWrite   AttemptKind = "initial_write"
	KindRewrite        AttemptKind = "rewrite"
	KindManualRevision AttemptKind = "manual_revision"
)

// Attempt pairs a draft with its review.
type Attempt struct {
	Iteration int          `json:"iteration"`
	Kind      AttemptKind  `json:"kind"`
	Draft     Draft        `json:"draft"`
	Review    ReviewResult `json:"review"`
}

// AttemptSummary is the audit row for one attempt.
type AttemptSummary struct {
	Iteration int         `json:"iteration"`
	Action    AttemptKind `json:"action"`
	Score     float64     `json:"score"`
	Approved  bool        `json:"approved"`
}

// WorkflowState is owned by the Agent for the duration of one run.
type WorkflowState struct {
	Topic         string    `json:"topic"`
	Tone          string    `json:"tone"`
	HasStyleGuide bool      `json:"has_style_guide"`
	PassThreshold float64   `json:"pass_threshold"`
	MaxRewrites   int       `json:"max_rewrites"`
	Phase         Phase     `json:"phase"`
	Outline       Outline   `json:"outline"`
	Attempts      []Attempt `json:"attempts"`
	Revisions     []Attempt `json:"revisions,omitempty"`
	Final         Draft     `json:"final"`
}

// Iterations counts automatic write attempts; revisions are not included.
func (s WorkflowState) Iterations() int { return len(s.Attempts) }

func (s WorkflowState) lastAttempt() (Attempt, bool) {
	if n := len(s.Revisions); n > 0 {
		return s.Revisions[n-1], true
	}
	if n := len(s.Attempts); n > 0 {
		return s.Attempts[n-1], true
	}
	return Attempt{}, false
}

// FinalScore is the score of the most recent review.
func (s WorkflowState) FinalScore() float64 {
	a, _ := s.lastAttempt()
	return a.Review.Score
}

// Approved reports whether the most recent review approved.
func (s WorkflowState) Approved() bool {
	a, _ := s.lastAttempt()
	return a.Review.Approved
}

// Verdict is only meaningful once the run reached a terminal phase.
func (s WorkflowState) Verdict() Verdict {
	if s.Approved() {
		return VerdictApproved
	}
	return VerdictApprovedReservations
}

// Content returns the final post text.
func (s WorkflowState) Content() string { return s.Final.Content }

// Summary lists every attempt, revisions last.
func (s WorkflowState) Summary() []AttemptSummary {
	out := make([]AttemptSummary, 0, len(s.Attempts)+len(s.Revisions))
	for _, list := range [][]Attempt{s.Attempts, s.Revisions} {
		for _, a := range list {
			out = append(out, AttemptSummary{
				Iteration: a.Iteration,
				Action:    a.Kind,
				Score:     a.Review.Score,
				Approved:  a.Review.Approved,
			})
		}
	}
	return out
}

// Result is what a finished run hands to callers.
type Result struct {
	State   WorkflowState `json:"state"`
	Trace   trace.Run     `json:"trace"`
	Summary trace.Summary `json:"summary"`
}
