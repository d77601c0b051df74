package generator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// ErrInvalidConfig is returned by NewAgent before any inference happens.
var ErrInvalidConfig = errors.New("invalid agent config")

// Config controls the quality gate of the refinement loop.
type Config struct {
	PassThreshold float64 `json:"pass_threshold" yaml:"pass_threshold"`
	MaxRewrites   int     `json:"max_rewrites" yaml:"max_rewrites"`
}

func DefaultConfig() Config {
	return Config{PassThreshold: 8.0, MaxRewrites: 2}
}

func (c Config) Validate() error {
	if c.PassThreshold < minScore || c.PassThreshold > maxScore {
		return fmt.Errorf("%w: pass_threshold %.2f outside [0, 10]", ErrInvalidConfig, c.PassThreshold)
	}
	if c.MaxRewrites < 0 {
		return fmt.Errorf("%w: max_rewrites %d is negative", ErrInvalidConfig, c.MaxRewrites)
	}
	return nil
}

// Agent 负责编排 大纲 → 写作 → 评审 → 改写 的循环。
type Agent struct {
	cfg      Config
	planner  *Planner
	writer   *Writer
	reviewer *Reviewer
	logger   *logging.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger used by the agent and its stages.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func NewAgent(llm LLMClient, cfg Config, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: llm client is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Agent{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	a.planner = NewPlanner(llm, a.logger)
	a.writer = NewWriter(llm, a.logger)
	a.reviewer = NewReviewer(llm, cfg.PassThreshold, a.logger)
	a.logger = a.logger.Named(TraceOrchestrator)
	return a, nil
}

// Config returns the agent's quality gate.
func (a *Agent) Config() Config { return a.cfg }

// Run executes one full workflow. A nil rec gets a fresh recorder. Stage
// errors abort the run and are returned unchanged.
func (a *Agent) Run(ctx context.Context, in Input, rec *trace.Recorder) (*Result, error) {
	req, err := in.Request.Normalize()
	if err != nil {
		return nil, err
	}
	in.Request = req
	if rec == nil {
		rec = trace.NewRecorder()
	}

	rec.StartRun(map[string]any{
		"topic":          req.Topic,
		"tone":           req.Tone,
		"max_length":     req.MaxLength,
		"style_guide_id": req.StyleGuideID,
		"pass_threshold": a.cfg.PassThreshold,
		"max_rewrites":   a.cfg.MaxRewrites,
	})
	record(rec, a.logger, trace.Step{
		Stage:   TraceOrchestrator,
		Action:  trace.ActionInfo,
		Content: fmt.Sprintf("Starting content generation workflow for: %s", req.Topic),
		Status:  trace.StatusThinking,
	})

	state := WorkflowState{
		Topic:         req.Topic,
		Tone:          req.Tone,
		HasStyleGuide: in.Guideline != nil,
		PassThreshold: a.cfg.PassThreshold,
		MaxRewrites:   a.cfg.MaxRewrites,
		Phase:         PhasePlanning,
	}
	var (
		pending  Draft
		rewrite  bool
		feedback string
	)

	for !state.Phase.Terminal() {
		a.logger.Debugf("phase=%s attempts=%d", state.Phase, len(state.Attempts))
		switch state.Phase {
		case PhasePlanning:
			outline, err := a.planner.Outline(ctx, rec, OutlineInput{
				Topic:      req.Topic,
				Background: in.Background,
				Guideline:  in.guidelineText(),
				Tone:       req.Tone,
				MaxLength:  req.MaxLength,
			})
			if err != nil {
				return nil, a.abort(rec, err)
			}
			state.Outline = outline
			state.Phase = PhaseWriting

		case PhaseWriting:
			d, err := a.writer.Write(ctx, rec, WriteInput{
				Topic:     req.Topic,
				Outline:   state.Outline,
				Guideline: in.guidelineText(),
				Tone:      req.Tone,
				MaxLength: req.MaxLength,
				Attempt:   len(state.Attempts) + 1,
				Rewrite:   rewrite,
				Feedback:  feedback,
			})
			if err != nil {
				return nil, a.abort(rec, err)
			}
			pending = d
			state.Final = d
			state.Phase = PhaseReviewing

		case PhaseReviewing:
			review, err := a.reviewer.Review(ctx, rec, ReviewInput{
				Content:   pending.Content,
				Topic:     req.Topic,
				Guideline: in.guidelineText(),
				Tone:      req.Tone,
			})
			if err != nil {
				return nil, a.abort(rec, err)
			}
			kind := KindInitialWrite
			if pending.Rewrite {
				kind = KindRewrite
			}
			state.Attempts = append(state.Attempts, Attempt{
				Iteration: pending.Attempt,
				Kind:      kind,
				Draft:     pending,
				Review:    review,
			})
			switch {
			case review.Approved:
				state.Phase = PhaseAccepted
			case len(state.Attempts) > a.cfg.MaxRewrites:
				state.Phase = PhaseExhausted
			default:
				state.Phase = PhaseRewriting
			}

		case PhaseRewriting:
			last := state.Attempts[len(state.Attempts)-1]
			a.logger.Infof("attempt %d scored %.1f < %.1f, rewriting", last.Iteration, last.Review.Score, a.cfg.PassThreshold)
			rewrite = true
			feedback = last.Review.Feedback
			state.Phase = PhaseWriting
		}
	}

	a.finish(rec, &state)
	return &Result{State: state, Trace: rec.Snapshot(), Summary: rec.Summary()}, nil
}

// Revise rewrites the final draft of state once, using comment as reviewer
// feedback, and reviews the result. state is not modified; the returned
// result holds an updated copy with the new attempt appended to Revisions.
func (a *Agent) Revise(ctx context.Context, in Input, state WorkflowState, comment string, rec *trace.Recorder) (*Result, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, fmt.Errorf("%w: revision comment is required", ErrInvalidRequest)
	}
	if state.Final.Content == "" {
		return nil, fmt.Errorf("%w: nothing to revise", ErrInvalidRequest)
	}
	req, err := in.Request.Normalize()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = trace.NewRecorder()
	}

	state.Attempts = slices.Clone(state.Attempts)
	state.Revisions = slices.Clone(state.Revisions)
	attempt := len(state.Attempts) + len(state.Revisions) + 1

	rec.StartRun(map[string]any{
		"topic":          req.Topic,
		"revision":       len(state.Revisions) + 1,
		"comment":        comment,
		"pass_threshold": a.cfg.PassThreshold,
	})
	record(rec, a.logger, trace.Step{
		Stage:   TraceOrchestrator,
		Action:  trace.ActionInfo,
		Content: fmt.Sprintf("Revising post for: %s", req.Topic),
		Status:  trace.StatusThinking,
	})

	d, err := a.writer.Write(ctx, rec, WriteInput{
		Topic:     req.Topic,
		Outline:   state.Outline,
		Guideline: in.guidelineText(),
		Tone:      req.Tone,
		MaxLength: req.MaxLength,
		Attempt:   attempt,
		Rewrite:   true,
		Feedback:  comment,
	})
	if err != nil {
		return nil, a.abort(rec, err)
	}
	review, err := a.reviewer.Review(ctx, rec, ReviewInput{
		Content:   d.Content,
		Topic:     req.Topic,
		Guideline: in.guidelineText(),
		Tone:      req.Tone,
	})
	if err != nil {
		return nil, a.abort(rec, err)
	}

	state.Revisions = append(state.Revisions, Attempt{
		Iteration: attempt,
		Kind:      KindManualRevision,
		Draft:     d,
		Review:    review,
	})
	state.Final = d
	state.Phase = PhaseExhausted
	if review.Approved {
		state.Phase = PhaseAccepted
	}

	a.finish(rec, &state)
	return &Result{State: state, Trace: rec.Snapshot(), Summary: rec.Summary()}, nil
}

func (a *Agent) finish(rec *trace.Recorder, state *WorkflowState) {
	if state.Approved() {
		record(rec, a.logger, trace.Step{
			Stage:   TraceOrchestrator,
			Action:  trace.ActionInfo,
			Content: fmt.Sprintf("Workflow completed: post approved with score %.1f", state.FinalScore()),
			Status:  trace.StatusSuccess,
		})
	} else {
		record(rec, a.logger, trace.Step{
			Stage:   TraceOrchestrator,
			Action:  trace.ActionInfo,
			Content: fmt.Sprintf("Workflow completed: rewrite budget used, best score %.1f", state.FinalScore()),
			Status:  trace.StatusWarning,
		})
	}
	rec.EndRun(map[string]any{
		"iterations":  state.Iterations(),
		"revisions":   len(state.Revisions),
		"final_score": state.FinalScore(),
		"approved":    state.Approved(),
		"verdict":     string(state.Verdict()),
	})
	a.logger.Infof("run finished: phase=%s score=%.1f iterations=%d", state.Phase, state.FinalScore(), state.Iterations())
}

// abort closes the trace and hands err back untouched.
func (a *Agent) abort(rec *trace.Recorder, err error) error {
	record(rec, a.logger, trace.Step{
		Stage:   TraceOrchestrator,
		Action:  trace.ActionInfo,
		Content: fmt.Sprintf("Workflow aborted: %v", err),
		Status:  trace.StatusFailure,
	})
	rec.EndRun(map[string]any{"error": err.Error()})
	a.logger.Errorf("run aborted: %v", err)
	return err
}
