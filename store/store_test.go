package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_post_refiner/generator"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runResult(t *testing.T, topic string, scores ...float64) (generator.GenerationRequest, *generator.Result) {
	t.Helper()
	a, err := generator.NewAgent(generator.NewMockLLM(scores...), generator.Config{PassThreshold: 8, MaxRewrites: 1})
	require.NoError(t, err)
	req := generator.GenerationRequest{Topic: topic, Tone: "casual", MaxLength: 400}
	res, err := a.Run(context.Background(), generator.Input{Request: req}, nil)
	require.NoError(t, err)
	return req, res
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req, res := runResult(t, "AI ethics", 6, 9)

	rec := NewRecord(req, res)
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, req, got.Request)
	assert.Equal(t, res.State.Content(), got.Result.State.Content())
	assert.Equal(t, 2, got.Result.State.Iterations())
	assert.True(t, got.Result.State.Approved())
	assert.Equal(t, res.Trace.ID, got.Result.Trace.ID)
	assert.Len(t, got.Result.Trace.Steps, len(res.Trace.Steps))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	req, res := runResult(t, "remote teams", 5)
	rec := NewRecord(req, res)
	require.NoError(t, s.Save(ctx, rec))

	s.now = func() time.Time { return base.Add(time.Hour) }
	_, better := runResult(t, "remote teams", 9)
	rec.Result = better
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Result.State.Approved())
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), got.UpdatedAt)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i, topic := range []string{"first", "second", "third"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		req, res := runResult(t, topic, 9)
		rec := NewRecord(req, res)
		require.NoError(t, s.Save(ctx, rec))
		ids = append(ids, rec.ID)
	}

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, "third", list[0].Topic)
	assert.Equal(t, "approved", list[0].Verdict)
	assert.True(t, list[0].Approved)
	assert.NotEmpty(t, list[0].Excerpt)
	assert.Equal(t, 1, list[0].Iterations)
}

func TestSaveValidates(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save(context.Background(), RunRecord{}))
	assert.Error(t, s.Save(context.Background(), RunRecord{ID: "x"}))
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalRuns)
	assert.Zero(t, m.TotalTokens)
	assert.Empty(t, m.RunsByStyleGuide)

	var want int
	for _, guide := range []string{"acme", "acme", "globex", ""} {
		req, res := runResult(t, "metrics "+guide, 9)
		req.StyleGuideID = guide
		require.NoError(t, s.Save(ctx, NewRecord(req, res)))
		want += res.Summary.TotalTokens
	}

	m, err = s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, m.TotalRuns)
	assert.Equal(t, want, m.TotalTokens)
	assert.Positive(t, m.TotalTokens)
	assert.Equal(t, map[string]int{"acme": 2, "globex": 1}, m.RunsByStyleGuide)
}

func TestMetricsAddsRevisionTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req, res := runResult(t, "pricing", 5)
	rec := NewRecord(req, res)
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Save(ctx, rec))

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Summary.TotalTokens, m.TotalTokens)

	_, revised := runResult(t, "pricing", 9)
	rec.Result = revised
	require.NoError(t, s.Save(ctx, rec))

	m, err = s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalRuns)
	assert.Equal(t, res.Summary.TotalTokens+revised.Summary.TotalTokens, m.TotalTokens)
}

func TestOpenAddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY, trace_id TEXT NOT NULL, topic TEXT NOT NULL, tone TEXT NOT NULL,
		style_guide_id TEXT, excerpt TEXT NOT NULL, final_score REAL NOT NULL, approved INTEGER NOT NULL,
		verdict TEXT NOT NULL, iterations INTEGER NOT NULL, revisions INTEGER NOT NULL,
		request_json TEXT NOT NULL, result_json TEXT NOT NULL, created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	req, res := runResult(t, "legacy", 9)
	require.NoError(t, s.Save(context.Background(), NewRecord(req, res)))
	m, err := s.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalRuns)
	assert.Equal(t, res.Summary.TotalTokens, m.TotalTokens)
}
