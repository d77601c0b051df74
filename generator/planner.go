package generator

import (
	"context"
	"fmt"
	"unicode/utf8"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// Planner produces the outline every draft of a run follows.
type Planner struct {
	llm    LLMClient
	logger *logging.Logger
}

func NewPlanner(llm LLMClient, logger *logging.Logger) *Planner {
	return &Planner{llm: llm, logger: logger.Named(TracePlanner)}
}

// Outline makes exactly one backend call. Backend errors are returned as is.
func (p *Planner) Outline(ctx context.Context, rec *trace.Recorder, in OutlineInput) (Outline, error) {
	record(rec, p.logger, trace.Step{
		Stage:   TracePlanner,
		Action:  trace.ActionPlan,
		Content: fmt.Sprintf("Creating outline for topic: %s", in.Topic),
		Status:  trace.StatusThinking,
	})

	resp, elapsed, err := complete(ctx, p.llm, BuildOutlinePrompt(in), outlineTemperature, outlineMaxTokens, map[string]string{
		MetaStage: StageOutline,
		MetaTopic: in.Topic,
	})
	if err == nil {
		resp.Content, err = cleanContent(resp.Content)
	}
	if err != nil {
		record(rec, p.logger, trace.Step{
			Stage:    TracePlanner,
			Action:   trace.ActionPlan,
			Content:  fmt.Sprintf("Outline failed: %v", err),
			Status:   trace.StatusFailure,
			Duration: elapsed,
		})
		return Outline{}, err
	}

	out := Outline{Text: resp.Content, Tags: extractTags(resp.Content)}
	length := utf8.RuneCountInString(out.Text)
	record(rec, p.logger, trace.Step{
		Stage:       TracePlanner,
		Action:      trace.ActionPlan,
		Content:     fmt.Sprintf("Outline created (%d chars)", length),
		Status:      trace.StatusSuccess,
		Duration:    elapsed,
		Tokens:      resp.Usage.TotalTokens,
		Annotations: map[string]any{"outline_length": length, "tags": len(out.Tags)},
	})
	p.logger.Debugf("outline ready: %d chars, %d tokens", length, resp.Usage.TotalTokens)
	return out, nil
}
