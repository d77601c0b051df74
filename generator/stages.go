package generator

import (
	"context"
	"time"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// Request metadata keys understood by backends such as MockLLM.
const (
	MetaStage   = "stage"
	MetaTopic   = "topic"
	MetaRewrite = "rewrite"
)

// Values of MetaStage.
const (
	StageOutline = "outline"
	StageDraft   = "draft"
	StageReview  = "review"
)

// Stage names recorded in trace steps.
const (
	TracePlanner      = "planner"
	TraceWriter       = "writer"
	TraceReviewer     = "reviewer"
	TraceOrchestrator = "orchestrator"
)

// Sampling parameters per stage.
const (
	outlineTemperature = 0.7
	outlineMaxTokens   = 400
	draftTemperature   = 0.7
	draftMaxTokens     = 800
	reviewTemperature  = 0.3
	reviewMaxTokens    = 600
)

// record logs step into rec. A nil recorder disables tracing.
func record(rec *trace.Recorder, logger *logging.Logger, step trace.Step) {
	if rec == nil {
		return
	}
	if err := rec.LogStep(step); err != nil {
		logger.Warnf("drop trace step: %v", err)
	}
}

// complete runs one prompt against llm and times it.
func complete(ctx context.Context, llm LLMClient, p Prompt, temperature float64, maxTokens int, meta map[string]string) (Response, time.Duration, error) {
	start := time.Now()
	resp, err := llm.Generate(ctx, Request{
		System:      p.System,
		Prompt:      p.User,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Metadata:    meta,
	})
	return resp, time.Since(start), err
}
