package generator

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// Writer turns an outline into a post, or rewrites one from feedback.
type Writer struct {
	llm    LLMClient
	logger *logging.Logger
}

func NewWriter(llm LLMClient, logger *logging.Logger) *Writer {
	return &Writer{llm: llm, logger: logger.Named(TraceWriter)}
}

// Write makes exactly one backend call and always returns a new Draft.
func (w *Writer) Write(ctx context.Context, rec *trace.Recorder, in WriteInput) (Draft, error) {
	action := trace.ActionWrite
	label := "Writing initial draft"
	if in.Rewrite {
		action = trace.ActionRewrite
		label = fmt.Sprintf("Rewriting post (attempt %d) based on feedback", in.Attempt)
	}
	record(rec, w.logger, trace.Step{
		Stage:   TraceWriter,
		Action:  action,
		Content: label,
		Status:  trace.StatusThinking,
	})

	resp, elapsed, err := complete(ctx, w.llm, BuildDraftPrompt(in), draftTemperature, draftMaxTokens, map[string]string{
		MetaStage:   StageDraft,
		MetaTopic:   in.Topic,
		MetaRewrite: strconv.FormatBool(in.Rewrite),
	})
	if err == nil {
		resp.Content, err = cleanContent(resp.Content)
	}
	if err != nil {
		record(rec, w.logger, trace.Step{
			Stage:    TraceWriter,
			Action:   action,
			Content:  fmt.Sprintf("Draft %d failed: %v", in.Attempt, err),
			Status:   trace.StatusFailure,
			Duration: elapsed,
		})
		return Draft{}, err
	}

	d := Draft{
		Attempt: in.Attempt,
		Content: resp.Content,
		Tags:    extractTags(resp.Content),
		Rewrite: in.Rewrite,
	}
	if in.Rewrite {
		d.Feedback = in.Feedback
	}
	length := utf8.RuneCountInString(d.Content)
	record(rec, w.logger, trace.Step{
		Stage:       TraceWriter,
		Action:      action,
		Content:     fmt.Sprintf("Draft %d written (%d chars)", d.Attempt, length),
		Status:      trace.StatusSuccess,
		Duration:    elapsed,
		Tokens:      resp.Usage.TotalTokens,
		Annotations: map[string]any{"length": length, "attempt": d.Attempt},
	})
	if length > in.MaxLength {
		w.logger.Warnf("draft %d is %d chars, over the %d limit", d.Attempt, length, in.MaxLength)
	}
	return d, nil
}
