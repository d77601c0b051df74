package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/logging"
	"marketing_post_refiner/report"
	"marketing_post_refiner/research"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

// History persists finished runs. *store.Store implements it.
type History interface {
	Save(ctx context.Context, rec store.RunRecord) error
	Get(ctx context.Context, id string) (store.RunRecord, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
	Metrics(ctx context.Context) (store.Metrics, error)
}

// Options wires the optional collaborators. Nil fields disable the feature
// that needs them.
type Options struct {
	Guides         styleguide.Provider
	Searcher       research.Searcher
	History        History
	Reports        *report.Publisher
	CostModel      trace.CostModel
	RequestTimeout time.Duration
	Logger         *logging.Logger

	// MaxSessions caps the in-memory sessions. Only sessions already saved to
	// History are evicted, least recently used first.
	MaxSessions int
}

const defaultMaxSessions = 256

type Server struct {
	genAgent *generator.Agent
	opts     Options
	sessions *sessionStore
	hub      *hub
	logger   *logging.Logger
}

type sessionEntry struct {
	sess  *generator.Session
	used  uint64
	saved bool
}

type sessionStore struct {
	mu       sync.Mutex
	limit    int
	tick     uint64
	sessions map[string]*sessionEntry
}

func newStore(limit int) *sessionStore {
	return &sessionStore{limit: limit, sessions: make(map[string]*sessionEntry)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	s.sessions[id] = &sessionEntry{sess: sess, used: s.tick}
	s.evict()
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	s.tick++
	e.used = s.tick
	return e.sess, true
}

// markSaved makes id evictable; it can be restored from history. Busy
// sessions are never evicted.
func (s *sessionStore) markSaved(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.saved = true
	}
	s.evict()
}

func (s *sessionStore) evict() {
	for len(s.sessions) > s.limit {
		var (
			oldest string
			found  bool
		)
		for id, e := range s.sessions {
			if e.saved && !e.sess.Busy() && (!found || e.used < s.sessions[oldest].used) {
				oldest, found = id, true
			}
		}
		if !found {
			return
		}
		delete(s.sessions, oldest)
	}
}

func (s *sessionStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) all() []*generator.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*generator.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.sess)
	}
	return out
}

func New(genAgent *generator.Agent, opts Options) (*Server, error) {
	if genAgent == nil {
		return nil, errors.New("generator agent required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.CostModel == (trace.CostModel{}) {
		opts.CostModel = trace.DefaultCostModel()
	}
	logger := opts.Logger.Named("server")
	return &Server{
		genAgent: genAgent,
		opts:     opts,
		sessions: newStore(opts.MaxSessions),
		hub:      newHub(logger),
		logger:   logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/runs", s.handleRunCreate)
	mux.HandleFunc("GET /api/runs", s.handleRunList)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)
	mux.HandleFunc("POST /api/runs/{id}/revise", s.handleRunRevise)
	mux.HandleFunc("GET /api/runs/{id}/report", s.handleRunReport)
	mux.HandleFunc("GET /api/styleguides", s.handleStyleGuides)
	mux.HandleFunc("GET /api/styleguides/{id}", s.handleStyleGuideGet)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/stream", s.hub.serve)
	return s.logMiddleware(mux)
}

// Close disconnects every stream client.
func (s *Server) Close() {
	s.hub.close()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		s.logger.Infof("%s %s %d %s", r.Method, path, sw.status, time.Since(start).Round(time.Millisecond))
	})
}
