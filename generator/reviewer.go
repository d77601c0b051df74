package generator

import (
	"context"
	"fmt"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// Reviewer scores a draft against a fixed pass threshold.
type Reviewer struct {
	llm       LLMClient
	threshold float64
	logger    *logging.Logger
}

func NewReviewer(llm LLMClient, threshold float64, logger *logging.Logger) *Reviewer {
	return &Reviewer{llm: llm, threshold: threshold, logger: logger.Named(TraceReviewer)}
}

// Threshold returns the minimum approving score.
func (r *Reviewer) Threshold() float64 { return r.threshold }

// Review makes one backend call. An undecodable answer is not an error; only
// backend failures are returned.
func (r *Reviewer) Review(ctx context.Context, rec *trace.Recorder, in ReviewInput) (ReviewResult, error) {
	record(rec, r.logger, trace.Step{
		Stage:   TraceReviewer,
		Action:  trace.ActionReview,
		Content: "Evaluating post quality and guideline adherence",
		Status:  trace.StatusThinking,
	})

	resp, elapsed, err := complete(ctx, r.llm, BuildReviewPrompt(in, r.threshold), reviewTemperature, reviewMaxTokens, map[string]string{
		MetaStage: StageReview,
		MetaTopic: in.Topic,
	})
	if err != nil {
		record(rec, r.logger, trace.Step{
			Stage:    TraceReviewer,
			Action:   trace.ActionReview,
			Content:  fmt.Sprintf("Review failed: %v", err),
			Status:   trace.StatusFailure,
			Duration: elapsed,
		})
		return ReviewResult{}, err
	}

	res := judge(ParseEvaluation(resp.Content), r.threshold)
	if !res.Parsed {
		r.logger.Warnf("could not decode evaluation, using neutral score %.1f", res.Score)
	}

	status := trace.StatusWarning
	if res.Approved {
		status = trace.StatusSuccess
	}
	record(rec, r.logger, trace.Step{
		Stage:    TraceReviewer,
		Action:   trace.ActionReview,
		Content:  fmt.Sprintf("Score: %.1f/10 (threshold %.1f)", res.Score, r.threshold),
		Status:   status,
		Duration: elapsed,
		Tokens:   resp.Usage.TotalTokens,
		Annotations: map[string]any{
			"score":     res.Score,
			"threshold": r.threshold,
			"approved":  res.Approved,
			"parsed":    res.Parsed,
		},
	})
	return res, nil
}
