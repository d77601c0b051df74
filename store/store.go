package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"marketing_post_refiner/generator"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL,
	topic          TEXT NOT NULL,
	tone           TEXT NOT NULL,
	style_guide_id TEXT,
	excerpt        TEXT NOT NULL,
	final_score    REAL NOT NULL,
	approved       INTEGER NOT NULL,
	verdict        TEXT NOT NULL,
	iterations     INTEGER NOT NULL,
	revisions      INTEGER NOT NULL,
	total_tokens   INTEGER NOT NULL DEFAULT 0,
	request_json   TEXT NOT NULL,
	result_json    TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Columns added after the first release. Open adds them to older databases.
var migrations = []struct{ column, ddl string }{
	{"total_tokens", "ALTER TABLE runs ADD COLUMN total_tokens INTEGER NOT NULL DEFAULT 0"},
}

// Fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const excerptLen = 160

// RunRecord is one persisted workflow run.
type RunRecord struct {
	ID        string                      `json:"id"`
	Request   generator.GenerationRequest `json:"request"`
	Result    *generator.Result           `json:"result"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Summary is the history row returned by List.
type Summary struct {
	ID           string    `json:"id"`
	TraceID      string    `json:"trace_id"`
	Topic        string    `json:"topic"`
	Tone         string    `json:"tone"`
	StyleGuideID string    `json:"style_guide_id,omitempty"`
	Excerpt      string    `json:"excerpt"`
	FinalScore   float64   `json:"final_score"`
	Approved     bool      `json:"approved"`
	Verdict      string    `json:"verdict"`
	Iterations   int       `json:"iterations"`
	Revisions    int       `json:"revisions"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRecord builds a record with a fresh id.
func NewRecord(req generator.GenerationRequest, res *generator.Result) RunRecord {
	return RunRecord{ID: uuid.New().String(), Request: req, Result: res}
}

// Store keeps run history in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and runs migrations.
// ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// 单连接，避免 :memory: 在连接池中各自建库。
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	for _, m := range migrations {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = ?`, m.column).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts rec, or updates it when the id already exists. CreatedAt of
// an existing row is kept. Tokens of a result with a new trace (a revision)
// are added to the stored total.
func (s *Store) Save(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return errors.New("store: record id is required")
	}
	if rec.Result == nil {
		return errors.New("store: record has no result")
	}
	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	st := rec.Result.State
	now := s.now().UTC().Format(timeFormat)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, trace_id, topic, tone, style_guide_id, excerpt, final_score, approved,
			verdict, iterations, revisions, total_tokens, request_json, result_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			total_tokens = CASE WHEN runs.trace_id = excluded.trace_id
				THEN excluded.total_tokens
				ELSE runs.total_tokens + excluded.total_tokens END,
			trace_id = excluded.trace_id,
			excerpt = excluded.excerpt,
			final_score = excluded.final_score,
			approved = excluded.approved,
			verdict = excluded.verdict,
			iterations = excluded.iterations,
			revisions = excluded.revisions,
			result_json = excluded.result_json,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Result.Trace.ID, rec.Request.Topic, rec.Request.Tone, rec.Request.StyleGuideID,
		generator.Excerpt(st.Content(), excerptLen), st.FinalScore(), boolToInt(st.Approved()),
		string(st.Verdict()), st.Iterations(), len(st.Revisions), rec.Result.Summary.TotalTokens, string(reqJSON), string(resJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one run with its full result and trace.
func (s *Store) Get(ctx context.Context, id string) (RunRecord, error) {
	var (
		rec                 RunRecord
		reqJSON, resJSON    string
		createdAt, updateAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, request_json, result_json, created_at, updated_at FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &reqJSON, &resJSON, &createdAt, &updateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return RunRecord{}, fmt.Errorf("decode request: %w", err)
	}
	rec.Result = &generator.Result{}
	if err := json.Unmarshal([]byte(resJSON), rec.Result); err != nil {
		return RunRecord{}, fmt.Errorf("decode result: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeFormat, updateAt)
	return rec, nil
}

// List returns up to limit runs, newest first. limit <= 0 means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, topic, tone, style_guide_id, excerpt, final_score, approved, verdict,
			iterations, revisions, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			styleID   sql.NullString
			approved  int
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.TraceID, &sum.Topic, &sum.Tone, &styleID, &sum.Excerpt,
			&sum.FinalScore, &approved, &sum.Verdict, &sum.Iterations, &sum.Revisions, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.StyleGuideID = styleID.String
		sum.Approved = approved != 0
		sum.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Metrics aggregates the whole history.
type Metrics struct {
	TotalRuns        int            `json:"total_runs"`
	TotalTokens      int            `json:"total_tokens"`
	RunsByStyleGuide map[string]int `json:"runs_by_style_guide"`
}

// Metrics counts runs and tokens. Runs without a style guideline are not
// listed in RunsByStyleGuide.
func (s *Store) Metrics(ctx context.Context) (Metrics, error) {
	m := Metrics{RunsByStyleGuide: make(map[string]int)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_tokens), 0) FROM runs`,
	).Scan(&m.TotalRuns, &m.TotalTokens)
	if err != nil {
		return Metrics{}, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT style_guide_id, COUNT(*) FROM runs
		 WHERE style_guide_id IS NOT NULL AND style_guide_id != ''
		 GROUP BY style_guide_id`)
	if err != nil {
		return Metrics{}, fmt.Errorf("count runs by style guide: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return Metrics{}, fmt.Errorf("scan style guide count: %w", err)
		}
		m.RunsByStyleGuide[id] = n
	}
	return m, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
