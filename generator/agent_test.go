package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

// scriptedLLM answers each stage from a fixed script and records every call.
type scriptedLLM struct {
	reviews []string
	failOn  string
	failErr error

	mu       sync.Mutex
	calls    map[string]int
	requests []Request
}

func newScriptedLLM(reviews ...string) *scriptedLLM {
	return &scriptedLLM{reviews: reviews, calls: make(map[string]int)}
}

func (s *scriptedLLM) Generate(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := req.Metadata[MetaStage]
	s.calls[stage]++
	s.requests = append(s.requests, req)
	if stage == s.failOn {
		return Response{}, s.failErr
	}
	usage := Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}
	switch stage {
	case StageOutline:
		return Response{Content: "- hook\n- two points\n- ask a question\n#GoLang #Teams", Usage: usage}, nil
	case StageDraft:
		return Response{Content: fmt.Sprintf("draft %d #GoLang", s.calls[StageDraft]), Usage: usage}, nil
	case StageReview:
		i := s.calls[StageReview] - 1
		if i >= len(s.reviews) {
			i = len(s.reviews) - 1
		}
		return Response{Content: s.reviews[i], Usage: usage}, nil
	}
	return Response{}, fmt.Errorf("unexpected stage %q", stage)
}

func (s *scriptedLLM) count(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

func (s *scriptedLLM) draftRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Metadata[MetaStage] == StageDraft {
			out = append(out, r)
		}
	}
	return out
}

func review(score float64, feedback string) string {
	return fmt.Sprintf(`{"score": %.1f, "brand_adherence": 8, "quality": 8, "tone_length": 8, "feedback": %q, "approved": false}`, score, feedback)
}

func newTestAgent(t *testing.T, llm LLMClient, threshold float64, maxRewrites int) *Agent {
	t.Helper()
	a, err := NewAgent(llm, Config{PassThreshold: threshold, MaxRewrites: maxRewrites})
	require.NoError(t, err)
	return a
}

func testInput(topic string) Input {
	return Input{Request: GenerationRequest{Topic: topic}}
}

func TestRunApprovesFirstDraft(t *testing.T) {
	llm := newScriptedLLM(review(9.0, "looks great"))
	a := newTestAgent(t, llm, 8.0, 2)

	res, err := a.Run(context.Background(), testInput("AI in marketing"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.State.Iterations())
	assert.True(t, res.State.Approved())
	assert.Equal(t, PhaseAccepted, res.State.Phase)
	assert.Equal(t, VerdictApproved, res.State.Verdict())
	assert.Equal(t, 9.0, res.State.FinalScore())
	assert.Empty(t, res.State.Attempts[0].Review.Feedback)
	assert.Equal(t, KindInitialWrite, res.State.Attempts[0].Kind)
	assert.Equal(t, 1, llm.count(StageOutline))
	assert.Equal(t, 1, llm.count(StageDraft))
	assert.Equal(t, 1, llm.count(StageReview))
}

func TestRunExhaustsBudget(t *testing.T) {
	llm := newScriptedLLM(review(6.0, "weak hook"), review(7.0, "still flat"))
	a := newTestAgent(t, llm, 9.0, 1)

	res, err := a.Run(context.Background(), testInput("remote work"), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.State.Iterations())
	assert.False(t, res.State.Approved())
	assert.Equal(t, PhaseExhausted, res.State.Phase)
	assert.Equal(t, VerdictApprovedReservations, res.State.Verdict())
	assert.Equal(t, "draft 2 #GoLang", res.State.Content())
	assert.Equal(t, 7.0, res.State.FinalScore())
	assert.Equal(t, KindRewrite, res.State.Attempts[1].Kind)
}

func TestRunZeroThresholdApprovesAnyScore(t *testing.T) {
	llm := newScriptedLLM(review(1.0, "poor"))
	a := newTestAgent(t, llm, 0.0, 3)

	res, err := a.Run(context.Background(), testInput("cloud costs"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.Iterations())
	assert.True(t, res.State.Approved())
}

func TestRunMalformedReviewNeverApproves(t *testing.T) {
	llm := newScriptedLLM("not json at all")
	a := newTestAgent(t, llm, 0.0, 1)

	res, err := a.Run(context.Background(), testInput("cloud costs"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.Iterations())
	assert.False(t, res.State.Approved())
	for _, at := range res.State.Attempts {
		assert.Equal(t, 7.0, at.Review.Score)
		assert.Equal(t, FallbackFeedback, at.Review.Feedback)
	}
}

func TestRunDraftCountBounds(t *testing.T) {
	for _, maxRewrites := range []int{0, 1, 2, 4} {
		t.Run(fmt.Sprintf("max_rewrites=%d", maxRewrites), func(t *testing.T) {
			llm := newScriptedLLM(review(3.0, "rework it"))
			a := newTestAgent(t, llm, 8.0, maxRewrites)

			res, err := a.Run(context.Background(), testInput("edge computing"), nil)
			require.NoError(t, err)
			assert.Equal(t, maxRewrites+1, llm.count(StageDraft))
			assert.Equal(t, llm.count(StageDraft), llm.count(StageReview))
			assert.Equal(t, 1, llm.count(StageOutline))
			assert.Equal(t, maxRewrites+1, res.State.Iterations())
			last := res.State.Attempts[len(res.State.Attempts)-1]
			assert.Equal(t, last.Review.Score, res.State.FinalScore())
		})
	}
}

func TestRunCarriesFeedbackVerbatim(t *testing.T) {
	feedback := "Open with a statistic like {42%} and name the audience."
	llm := newScriptedLLM(review(5.0, feedback), review(9.5, ""))
	a := newTestAgent(t, llm, 8.0, 2)

	res, err := a.Run(context.Background(), testInput("hiring"), nil)
	require.NoError(t, err)

	drafts := llm.draftRequests()
	require.Len(t, drafts, 2)
	assert.NotContains(t, drafts[0].Prompt, feedback)
	assert.Contains(t, drafts[1].Prompt, feedback)
	assert.Equal(t, "true", drafts[1].Metadata[MetaRewrite])
	assert.Equal(t, feedback, res.State.Attempts[1].Draft.Feedback)
	assert.Equal(t, "- hook\n- two points\n- ask a question\n#GoLang #Teams", res.State.Outline.Text)
	assert.Equal(t, []string{"#GoLang", "#Teams"}, res.State.Outline.Tags)
}

func TestRunPropagatesBackendError(t *testing.T) {
	errBackend := errors.New("backend unavailable")
	for _, stage := range []string{StageOutline, StageDraft, StageReview} {
		t.Run(stage, func(t *testing.T) {
			llm := newScriptedLLM(review(9.0, ""))
			llm.failOn = stage
			llm.failErr = errBackend
			a := newTestAgent(t, llm, 8.0, 2)
			rec := trace.NewRecorder()

			res, err := a.Run(context.Background(), testInput("fintech"), rec)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, errBackend)
			assert.Equal(t, 1, llm.count(stage))

			run := rec.Snapshot()
			require.NotEmpty(t, run.Steps)
			assert.Equal(t, trace.StatusFailure, run.Steps[len(run.Steps)-1].Status)
			assert.False(t, run.EndedAt.IsZero())
		})
	}
}

func TestRunCancelledContext(t *testing.T) {
	a := newTestAgent(t, NewMockLLM(), 8.0, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Run(ctx, testInput("fintech"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAgentRejectsInvalidConfig(t *testing.T) {
	llm := newScriptedLLM(review(9.0, ""))
	tests := []struct {
		name string
		llm  LLMClient
		cfg  Config
	}{
		{"threshold too high", llm, Config{PassThreshold: 10.5, MaxRewrites: 1}},
		{"negative threshold", llm, Config{PassThreshold: -1, MaxRewrites: 1}},
		{"negative budget", llm, Config{PassThreshold: 8, MaxRewrites: -1}},
		{"nil client", nil, DefaultConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgent(tt.llm, tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
	assert.Empty(t, llm.requests)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	llm := newScriptedLLM(review(9.0, ""))
	a := newTestAgent(t, llm, 8.0, 2)

	for _, req := range []GenerationRequest{
		{Topic: "   "},
		{Topic: "ok", MaxLength: 50},
		{Topic: "ok", MaxLength: 5000},
	} {
		_, err := a.Run(context.Background(), Input{Request: req}, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, llm.requests)
}

func TestRunTrace(t *testing.T) {
	llm := newScriptedLLM(review(6.0, "tighten"), review(8.5, ""))
	a := newTestAgent(t, llm, 8.0, 2)
	rec := trace.NewRecorder()

	res, err := a.Run(context.Background(), testInput("data privacy"), rec)
	require.NoError(t, err)

	steps := res.Trace.Steps
	require.NotEmpty(t, steps)
	assert.Equal(t, TraceOrchestrator, steps[0].Stage)
	assert.Equal(t, trace.StatusThinking, steps[0].Status)
	last := steps[len(steps)-1]
	assert.Equal(t, trace.ActionInfo, last.Action)
	assert.Equal(t, trace.StatusSuccess, last.Status)

	var rewrites, warnings int
	for _, s := range steps {
		if s.Action == trace.ActionRewrite && s.Status == trace.StatusSuccess {
			rewrites++
		}
		if s.Stage == TraceReviewer && s.Status == trace.StatusWarning {
			warnings++
			assert.Equal(t, 6.0, s.Annotations["score"])
		}
	}
	assert.Equal(t, 1, rewrites)
	assert.Equal(t, 1, warnings)

	assert.Equal(t, 2, res.Trace.Metadata["iterations"])
	assert.Equal(t, true, res.Trace.Metadata["approved"])
	assert.Equal(t, "approved", res.Trace.Metadata["verdict"])
	assert.Equal(t, len(steps), res.Summary.TotalSteps)
	assert.Equal(t, 50, res.Summary.TotalTokens)
}

func TestRunUsesGuideline(t *testing.T) {
	llm := newScriptedLLM(review(9.0, ""))
	a := newTestAgent(t, llm, 8.0, 0)
	in := testInput("sustainability")
	in.Guideline = &styleguide.Guideline{ID: "acme", Text: "Always say 'we build together'."}

	res, err := a.Run(context.Background(), in, nil)
	require.NoError(t, err)
	assert.True(t, res.State.HasStyleGuide)
	for _, r := range llm.requests {
		assert.Contains(t, r.Prompt, "we build together")
	}
}

func TestRevise(t *testing.T) {
	llm := newScriptedLLM(review(6.0, "weak"), review(7.0, "flat"), review(9.0, ""))
	a := newTestAgent(t, llm, 9.0, 1)
	in := testInput("open source")

	first, err := a.Run(context.Background(), in, nil)
	require.NoError(t, err)
	require.False(t, first.State.Approved())

	revised, err := a.Revise(context.Background(), in, first.State, "Mention the community.", nil)
	require.NoError(t, err)

	assert.Len(t, revised.State.Attempts, 2)
	require.Len(t, revised.State.Revisions, 1)
	assert.Equal(t, KindManualRevision, revised.State.Revisions[0].Kind)
	assert.Equal(t, 3, revised.State.Revisions[0].Iteration)
	assert.True(t, revised.State.Approved())
	assert.Equal(t, 9.0, revised.State.FinalScore())
	assert.Equal(t, "draft 3 #GoLang", revised.State.Content())
	assert.Len(t, revised.State.Summary(), 3)

	assert.Empty(t, first.State.Revisions)
	assert.Equal(t, "draft 2 #GoLang", first.State.Content())

	drafts := llm.draftRequests()
	assert.True(t, strings.Contains(drafts[2].Prompt, "Mention the community."))
}

func TestReviseRequiresComment(t *testing.T) {
	a := newTestAgent(t, NewMockLLM(), 8.0, 1)
	res, err := a.Run(context.Background(), testInput("open source"), nil)
	require.NoError(t, err)

	_, err = a.Revise(context.Background(), testInput("open source"), res.State, "  ", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = a.Revise(context.Background(), testInput("open source"), WorkflowState{}, "shorter", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSessionProposeAndRevise(t *testing.T) {
	a := newTestAgent(t, NewMockLLM(6.0, 7.0, 9.0), 8.0, 1)
	s := NewSession("s1", testInput("product launches"), a)

	_, err := s.Revise(context.Background(), "too early", nil)
	assert.Error(t, err)

	res, err := s.Propose(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.State.Approved())

	res, err = s.Revise(context.Background(), "Lead with the customer.", nil)
	require.NoError(t, err)
	assert.True(t, res.State.Approved())
	assert.Same(t, res, s.Result())

	hist := s.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "", hist[0].Comment)
	assert.Equal(t, "Lead with the customer.", hist[1].Comment)
	assert.True(t, hist[1].Approved)
	assert.NotEqual(t, hist[0].TraceID, hist[1].TraceID)
}
