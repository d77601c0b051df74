package trace

import (
	"fmt"
	"time"
)

// Action is the category of work a step represents.
type Action string

const (
	ActionPlan    Action = "plan"
	ActionWrite   Action = "write"
	ActionRewrite Action = "rewrite"
	ActionReview  Action = "review"
	ActionInfo    Action = "info"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionPlan, ActionWrite, ActionRewrite, ActionReview, ActionInfo:
		return true
	}
	return false
}

// ParseAction converts a stored label back into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("trace: unknown action %q", s)
	}
	return a, nil
}

// Status is the outcome tag of a step.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusThinking Status = "thinking"
	StatusWarning  Status = "warning"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusThinking, StatusWarning:
		return true
	}
	return false
}

// ParseStatus converts a stored label back into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("trace: unknown status %q", s)
	}
	return st, nil
}

// Step is one stage transition within a run.
type Step struct {
	Seq         int            `json:"seq"`
	Stage       string         `json:"stage"`
	Action      Action         `json:"action"`
	Content     string         `json:"content"`
	Status      Status         `json:"status"`
	Duration    time.Duration  `json:"duration"`
	Tokens      int            `json:"tokens"`
	Annotations map[string]any `json:"annotations,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Run is the ordered record of one workflow invocation.
type Run struct {
	ID        string         `json:"id"`
	Steps     []Step         `json:"steps"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Duration is zero until the run has been ended.
func (r Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Summary aggregates a run for reporting.
type Summary struct {
	TotalSteps    int            `json:"total_steps"`
	StepsByStage  map[string]int `json:"steps_by_stage"`
	SuccessRate   float64        `json:"success_rate"`
	TotalTokens   int            `json:"total_tokens"`
	EstimatedCost float64        `json:"estimated_cost"`
	Duration      time.Duration  `json:"duration"`
}

// CostModel estimates spend from the number of steps rather than measured
// usage, so runs against the mock backend still get a figure.
type CostModel struct {
	TokensPerStep int     `json:"tokens_per_step"`
	CostPer1K     float64 `json:"cost_per_1k"`
}

// DefaultCostModel matches a small chat model price point.
func DefaultCostModel() CostModel {
	return CostModel{TokensPerStep: 500, CostPer1K: 0.002}
}

// Summarize computes the summary of a finished or in-flight run.
func Summarize(run Run, cost CostModel) Summary {
	s := Summary{
		TotalSteps:   len(run.Steps),
		StepsByStage: make(map[string]int),
		Duration:     run.Duration(),
	}
	success := 0
	for _, st := range run.Steps {
		s.StepsByStage[st.Stage]++
		s.TotalTokens += st.Tokens
		if st.Status == StatusSuccess {
			success++
		}
	}
	if s.TotalSteps > 0 {
		s.SuccessRate = float64(success) / float64(s.TotalSteps) * 100
	}
	totalTokens := s.TotalSteps * cost.TokensPerStep
	s.EstimatedCost = float64(totalTokens) / 1000 * cost.CostPer1K
	return s
}
