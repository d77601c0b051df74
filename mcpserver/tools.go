package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/research"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

// generate_post types

type generatePostInput struct {
	Topic        string `json:"topic" jsonschema:"What the post is about"`
	Tone         string `json:"tone,omitempty" jsonschema:"Writing tone (default: professional)"`
	MaxLength    int    `json:"max_length,omitempty" jsonschema:"Maximum length in characters, 100-3000 (default: 500)"`
	StyleGuideID string `json:"style_guide_id,omitempty" jsonschema:"Brand style guideline id, see list_style_guides"`
}

type runOutput struct {
	ID         string                     `json:"id"`
	Topic      string                     `json:"topic"`
	Content    string                     `json:"content"`
	FinalScore float64                    `json:"final_score"`
	Approved   bool                       `json:"approved"`
	Verdict    string                     `json:"verdict"`
	Iterations int                        `json:"iterations"`
	Attempts   []generator.AttemptSummary `json:"attempts"`
	Summary    trace.Summary              `json:"summary"`
	Saved      bool                       `json:"saved"`
}

func newRunOutput(id string, req generator.GenerationRequest, res *generator.Result) runOutput {
	st := res.State
	return runOutput{
		ID:         id,
		Topic:      req.Topic,
		Content:    st.Content(),
		FinalScore: st.FinalScore(),
		Approved:   st.Approved(),
		Verdict:    string(st.Verdict()),
		Iterations: st.Iterations(),
		Attempts:   st.Summary(),
		Summary:    res.Summary,
	}
}

func (t *Tools) generatePost(ctx context.Context, req *mcpsdk.CallToolRequest, input generatePostInput) (*mcpsdk.CallToolResult, runOutput, error) {
	genReq, err := generator.GenerationRequest{
		Topic:        input.Topic,
		Tone:         input.Tone,
		MaxLength:    input.MaxLength,
		StyleGuideID: input.StyleGuideID,
	}.Normalize()
	if err != nil {
		return nil, runOutput{}, err
	}
	guide, err := styleguide.Resolve(t.Guides, genReq.StyleGuideID)
	if err != nil {
		return nil, runOutput{}, err
	}
	if guide != nil {
		genReq.StyleGuideID = guide.ID
	}
	background, err := research.Background(ctx, t.Searcher, genReq.Topic)
	if err != nil {
		t.Logger.Warnf("research failed, continuing without: %v", err)
	}

	rec := trace.NewRecorder(trace.WithCostModel(t.CostModel))
	res, err := t.Agent.Run(ctx, generator.Input{Request: genReq, Background: background, Guideline: guide}, rec)
	if err != nil {
		return nil, runOutput{}, fmt.Errorf("generate post: %w", err)
	}

	record := store.NewRecord(genReq, res)
	out := newRunOutput(record.ID, genReq, res)
	if t.History != nil {
		if err := t.History.Save(ctx, record); err != nil {
			t.Logger.Errorf("save run %s: %v", record.ID, err)
		} else {
			out.Saved = true
		}
	}
	return nil, out, nil
}

// list_style_guides types

type listStyleGuidesInput struct{}

type listStyleGuidesOutput struct {
	StyleGuides []string `json:"style_guides"`
}

func (t *Tools) listStyleGuides(ctx context.Context, req *mcpsdk.CallToolRequest, input listStyleGuidesInput) (*mcpsdk.CallToolResult, listStyleGuidesOutput, error) {
	out := listStyleGuidesOutput{StyleGuides: []string{}}
	if t.Guides == nil {
		return nil, out, nil
	}
	ids, err := t.Guides.List()
	if err != nil {
		return nil, listStyleGuidesOutput{}, err
	}
	out.StyleGuides = append(out.StyleGuides, ids...)
	return nil, out, nil
}

// get_run types

type getRunInput struct {
	ID string `json:"id" jsonschema:"Run id returned by generate_post or list_runs"`
}

type getRunOutput struct {
	Run       runOutput `json:"run"`
	Outline   string    `json:"outline"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tools) getRun(ctx context.Context, req *mcpsdk.CallToolRequest, input getRunInput) (*mcpsdk.CallToolResult, getRunOutput, error) {
	if t.History == nil {
		return nil, getRunOutput{}, errors.New("run history is not configured")
	}
	if input.ID == "" {
		return nil, getRunOutput{}, errors.New("id is required")
	}
	rec, err := t.History.Get(ctx, input.ID)
	if err != nil {
		return nil, getRunOutput{}, err
	}
	out := getRunOutput{
		Run:       newRunOutput(rec.ID, rec.Request, rec.Result),
		Outline:   rec.Result.State.Outline.Text,
		Steps:     len(rec.Result.Trace.Steps),
		CreatedAt: rec.CreatedAt,
	}
	out.Run.Saved = true
	return nil, out, nil
}

// list_runs types

type listRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs (default: 20)"`
}

type listRunsOutput struct {
	Runs []store.Summary `json:"runs"`
}

func (t *Tools) listRuns(ctx context.Context, req *mcpsdk.CallToolRequest, input listRunsInput) (*mcpsdk.CallToolResult, listRunsOutput, error) {
	out := listRunsOutput{Runs: []store.Summary{}}
	if t.History == nil {
		return nil, out, nil
	}
	runs, err := t.History.List(ctx, input.Limit)
	if err != nil {
		return nil, listRunsOutput{}, err
	}
	out.Runs = append(out.Runs, runs...)
	return nil, out, nil
}
