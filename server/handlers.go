package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/report"
	"marketing_post_refiner/research"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

const defaultListLimit = 20

type reviseReq struct {
	Comment string `json:"comment"`
}

type runResp struct {
	ID         string                     `json:"id"`
	Content    string                     `json:"content"`
	FinalScore float64                    `json:"final_score"`
	Approved   bool                       `json:"approved"`
	Verdict    generator.Verdict          `json:"verdict"`
	Iterations int                        `json:"iterations"`
	Attempts   []generator.AttemptSummary `json:"attempts"`
	State      generator.WorkflowState    `json:"state"`
	Trace      trace.Run                  `json:"trace"`
	Summary    trace.Summary              `json:"summary"`
	History    []generator.Turn           `json:"history,omitempty"`
}

func newRunResp(id string, res *generator.Result, history []generator.Turn) runResp {
	st := res.State
	return runResp{
		ID:         id,
		Content:    st.Content(),
		FinalScore: st.FinalScore(),
		Approved:   st.Approved(),
		Verdict:    st.Verdict(),
		Iterations: st.Iterations(),
		Attempts:   st.Summary(),
		State:      st,
		Trace:      res.Trace,
		Summary:    res.Summary,
		History:    history,
	}
}

type metricsResp struct {
	Status           string         `json:"status"`
	TotalRuns        int            `json:"total_runs"`
	TotalTokens      int            `json:"total_tokens"`
	RunsByStyleGuide map[string]int `json:"runs_by_style_guide"`
	StyleGuides      int            `json:"available_style_guides"`
	Error            string         `json:"error,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.genAgent.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"pass_threshold": cfg.PassThreshold,
		"max_rewrites":   cfg.MaxRewrites,
		"history":        s.opts.History != nil,
	})
}

func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	var req generator.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := req.Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	in, err := s.buildInput(ctx, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	req = in.Request
	id := uuid.New().String()
	sess := generator.NewSession(id, in, s.genAgent)
	res, err := sess.Propose(ctx, s.newRecorder(id))
	if err != nil {
		s.hub.publish(streamEvent{Type: eventFailed, RunID: id, Error: err.Error()})
		writeError(w, statusFor(err), err)
		return
	}
	s.sessions.set(id, sess)
	s.finish(ctx, id, req, res)
	writeJSON(w, http.StatusOK, newRunResp(id, res, sess.History()))
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if s.opts.History != nil {
		list, err := s.opts.History.List(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if list == nil {
			list = []store.Summary{}
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	list := make([]store.Summary, 0)
	for _, sess := range s.sessions.all() {
		res := sess.Result()
		if res == nil {
			continue
		}
		list = append(list, summaryOf(sess.ID, sess.Input.Request, res))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sess, ok := s.sessions.get(id); ok {
		if res := sess.Result(); res != nil {
			writeJSON(w, http.StatusOK, newRunResp(id, res, sess.History()))
			return
		}
	}
	rec, err := s.lookup(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResp(id, rec.Result, nil))
}

func (s *Server) handleRunRevise(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req reviseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	sess, ok := s.sessions.get(id)
	if !ok {
		rec, err := s.lookup(ctx, id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		in, err := s.buildInput(ctx, rec.Request)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		sess = generator.RestoreSession(id, in, rec.Result, s.genAgent)
		s.sessions.set(id, sess)
		s.sessions.markSaved(id)
	}

	res, err := sess.Revise(ctx, req.Comment, s.newRecorder(id))
	if err != nil {
		s.hub.publish(streamEvent{Type: eventFailed, RunID: id, Error: err.Error()})
		writeError(w, statusFor(err), err)
		return
	}
	s.finish(ctx, id, sess.Input.Request, res)
	writeJSON(w, http.StatusOK, newRunResp(id, res, sess.History()))
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reports == nil {
		writeError(w, http.StatusNotFound, errors.New("reports are disabled"))
		return
	}
	id := r.PathValue("id")
	var (
		req generator.GenerationRequest
		res *generator.Result
	)
	if sess, ok := s.sessions.get(id); ok && sess.Result() != nil {
		req, res = sess.Input.Request, sess.Result()
	} else {
		rec, err := s.lookup(r.Context(), id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		req, res = rec.Request, rec.Result
	}
	page, err := s.opts.Reports.HTML(report.Run{ID: id, Request: req, Result: res})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleStyleGuides(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	if s.opts.Guides != nil {
		list, err := s.opts.Guides.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		ids = append(ids, list...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"style_guides": ids})
}

func (s *Server) handleStyleGuideGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	guide, err := styleguide.Resolve(s.opts.Guides, id)
	if err == nil && guide == nil {
		err = fmt.Errorf("%w: %q", styleguide.ErrNotFound, id)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

// handleMetrics reports totals from history, or from the live sessions when
// no history is configured. A failing query still answers 200 with
// status "error".
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResp{Status: "operational", RunsByStyleGuide: map[string]int{}}
	m, err := s.metrics(r.Context())
	if err != nil {
		s.logger.Errorf("metrics: %v", err)
		resp.Status = "error"
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.TotalRuns = m.TotalRuns
	resp.TotalTokens = m.TotalTokens
	if m.RunsByStyleGuide != nil {
		resp.RunsByStyleGuide = m.RunsByStyleGuide
	}
	if s.opts.Guides != nil {
		ids, err := s.opts.Guides.List()
		if err != nil {
			s.logger.Warnf("list style guides: %v", err)
		}
		resp.StyleGuides = len(ids)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func (s *Server) metrics(ctx context.Context) (store.Metrics, error) {
	if s.opts.History != nil {
		return s.opts.History.Metrics(ctx)
	}
	m := store.Metrics{RunsByStyleGuide: make(map[string]int)}
	for _, sess := range s.sessions.all() {
		if sess.Result() == nil {
			continue
		}
		m.TotalRuns++
		for _, turn := range sess.History() {
			m.TotalTokens += turn.Tokens
		}
		if id := sess.Input.Request.StyleGuideID; id != "" {
			m.RunsByStyleGuide[id]++
		}
	}
	return m, nil
}

func (s *Server) buildInput(ctx context.Context, req generator.GenerationRequest) (generator.Input, error) {
	guide, err := styleguide.Resolve(s.opts.Guides, req.StyleGuideID)
	if err != nil {
		return generator.Input{}, err
	}
	if guide != nil {
		req.StyleGuideID = guide.ID
	}
	background, err := research.Background(ctx, s.opts.Searcher, req.Topic)
	if err != nil {
		s.logger.Warnf("research for %q failed, continuing without: %v", req.Topic, err)
		background = ""
	}
	return generator.Input{Request: req, Background: background, Guideline: guide}, nil
}

func (s *Server) newRecorder(id string) *trace.Recorder {
	rec := trace.NewRecorder(trace.WithCostModel(s.opts.CostModel))
	rec.Subscribe(s.hub.stepListener(id))
	return rec
}

// finish announces and persists a result. Persistence failures are logged only.
func (s *Server) finish(ctx context.Context, id string, req generator.GenerationRequest, res *generator.Result) {
	s.hub.publish(streamEvent{
		Type:    eventFinished,
		RunID:   id,
		Score:   res.State.FinalScore(),
		Verdict: string(res.State.Verdict()),
	})
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Save(ctx, store.RunRecord{ID: id, Request: req, Result: res}); err != nil {
		s.logger.Errorf("save run %s: %v", id, err)
		return
	}
	s.sessions.markSaved(id)
}

func (s *Server) lookup(ctx context.Context, id string) (store.RunRecord, error) {
	if s.opts.History == nil {
		return store.RunRecord{}, store.ErrNotFound
	}
	return s.opts.History.Get(ctx, id)
}

func summaryOf(id string, req generator.GenerationRequest, res *generator.Result) store.Summary {
	st := res.State
	return store.Summary{
		ID:           id,
		TraceID:      res.Trace.ID,
		Topic:        req.Topic,
		Tone:         req.Tone,
		StyleGuideID: req.StyleGuideID,
		Excerpt:      generator.Excerpt(st.Content(), 160),
		FinalScore:   st.FinalScore(),
		Approved:     st.Approved(),
		Verdict:      string(st.Verdict()),
		Iterations:   st.Iterations(),
		Revisions:    len(st.Revisions),
		CreatedAt:    res.Trace.StartedAt,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, styleguide.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResp{Error: err.Error()})
}
