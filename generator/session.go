package generator

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketing_post_refiner/trace"
)

// ErrSessionBusy is returned when a session already has a run in flight.
var ErrSessionBusy = errors.New("session is busy with another run")

// Turn records one round of a session.
type Turn struct {
	Comment   string    `json:"comment,omitempty"`
	Summary   string    `json:"summary"`
	Score     float64   `json:"score"`
	Approved  bool      `json:"approved"`
	Tokens    int       `json:"tokens"`
	TraceID   string    `json:"trace_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session 持有一次主题的多轮生成/修订上下文。
// The lock is not held during inference; busy guards against overlapping runs.
type Session struct {
	ID    string
	Input Input

	mu      sync.Mutex
	busy    bool
	result  *Result
	history []Turn
	agent   *Agent
}

// NewSession 创建 session，尚未生成稿件。
func NewSession(id string, in Input, agent *Agent) *Session {
	return &Session{ID: id, Input: in, agent: agent}
}

// Propose runs the full workflow. rec may be nil.
func (s *Session) Propose(ctx context.Context, rec *trace.Recorder) (*Result, error) {
	if _, err := s.acquire(false); err != nil {
		return nil, err
	}
	res, err := s.agent.Run(ctx, s.Input, rec)
	return s.release(res, err, "", "initial run")
}

// Revise 基于用户评论修订稿件。Result and History stay readable meanwhile.
func (s *Session) Revise(ctx context.Context, comment string, rec *trace.Recorder) (*Result, error) {
	prev, err := s.acquire(true)
	if err != nil {
		return nil, err
	}
	res, err := s.agent.Revise(ctx, s.Input, prev.State, comment, rec)
	return s.release(res, err, comment, "revision")
}

// acquire marks the session busy and returns the current result.
func (s *Session) acquire(needResult bool) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrSessionBusy
	}
	if needResult && s.result == nil {
		return nil, errors.New("session has no draft yet")
	}
	s.busy = true
	return s.result, nil
}

func (s *Session) release(res *Result, err error, comment, summary string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return nil, err
	}
	s.result = res
	s.appendTurn(comment, summary, res)
	return res, nil
}

// Busy reports whether a Propose or Revise is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Result returns the latest result, or nil before Propose succeeds.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// History returns a copy of the session's turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) appendTurn(comment, summary string, res *Result) {
	s.history = append(s.history, Turn{
		Comment:   comment,
		Summary:   summary,
		Score:     res.State.FinalScore(),
		Approved:  res.State.Approved(),
		Tokens:    res.Summary.TotalTokens,
		TraceID:   res.Trace.ID,
		CreatedAt: time.Now(),
	})
}

// RestoreSession rebuilds a session around a stored result so it can be
// revised again, e.g. after a restart.
func RestoreSession(id string, in Input, res *Result, agent *Agent) *Session {
	s := NewSession(id, in, agent)
	s.result = res
	return s
}
