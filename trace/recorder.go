package trace

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder collects the steps of exactly one workflow run. Create one per run
// and pass it down the call chain; it is never shared between runs.
//
// StartRun/EndRun bracketing is the caller's job. Steps logged outside the
// bracket are kept.
type Recorder struct {
	mu        sync.Mutex
	cost      CostModel
	now       func() time.Time
	run       Run
	listeners map[int]func(Step)
	nextID    int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCostModel overrides DefaultCostModel.
func WithCostModel(c CostModel) Option {
	return func(r *Recorder) { r.cost = c }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		cost:      DefaultCostModel(),
		now:       time.Now,
		listeners: make(map[int]func(Step)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartRun clears previous steps and opens a new run.
func (r *Recorder) StartRun(metadata map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = Run{
		ID:        uuid.New().String(),
		StartedAt: r.now(),
		Metadata:  make(map[string]any, len(metadata)),
	}
	maps.Copy(r.run.Metadata, metadata)
	return r.run.ID
}

// LogStep appends a step. Unknown actions or statuses are rejected.
func (r *Recorder) LogStep(step Step) error {
	if !step.Action.Valid() {
		return fmt.Errorf("trace: invalid action %q", step.Action)
	}
	if !step.Status.Valid() {
		return fmt.Errorf("trace: invalid status %q", step.Status)
	}
	if step.Stage == "" {
		return errors.New("trace: step stage is required")
	}

	r.mu.Lock()
	step.Seq = len(r.run.Steps) + 1
	if step.Timestamp.IsZero() {
		step.Timestamp = r.now()
	}
	if step.Annotations != nil {
		step.Annotations = maps.Clone(step.Annotations)
	}
	r.run.Steps = append(r.run.Steps, step)
	listeners := make([]func(Step), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(step)
	}
	return nil
}

// EndRun stamps the end time and merges metadata into the run.
func (r *Recorder) EndRun(metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.EndedAt = r.now()
	if r.run.Metadata == nil {
		r.run.Metadata = make(map[string]any, len(metadata))
	}
	maps.Copy(r.run.Metadata, metadata)
}

// Snapshot returns a copy that is safe to keep after the recorder moves on.
func (r *Recorder) Snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.run
	cp.Steps = make([]Step, len(r.run.Steps))
	copy(cp.Steps, r.run.Steps)
	cp.Metadata = maps.Clone(r.run.Metadata)
	return cp
}

// Summary summarizes the current run.
func (r *Recorder) Summary() Summary {
	return Summarize(r.Snapshot(), r.CostModel())
}

// CostModel returns the cost model used by Summary.
func (r *Recorder) CostModel() CostModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cost
}

// Subscribe registers fn to receive every step logged after the call.
// fn runs on the logging goroutine and must not block. The returned func
// removes the subscription.
func (r *Recorder) Subscribe(fn func(Step)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}
