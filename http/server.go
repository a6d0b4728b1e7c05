package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yanchengsi/spider"
)

// DefaultShutdownTimeout bounds graceful shutdown of the control API.
const DefaultShutdownTimeout = 5 * time.Second

// Status values accepted by POST /status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Server exposes a spider.Frontier over HTTP so that external processes
// can pull tasks and report outcomes.
type Server struct {
	frontier spider.Frontier
	logger   *slog.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the request logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer wires handlers for frontier onto an HTTP mux.
func NewServer(frontier spider.Frontier, opts ...ServerOption) *Server {
	s := &Server{
		frontier: frontier,
		logger:   slog.New(slog.DiscardHandler),
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("control api listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /task", s.handleTask)
	s.mux.HandleFunc("POST /status", s.handleStatus)
	s.mux.HandleFunc("POST /seed", s.handleSeed)
	s.mux.HandleFunc("POST /discovered", s.handleDiscovered)
	s.mux.HandleFunc("GET /visited", s.handleVisited)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /urls", s.handleLookup)
}

// TaskResponse is the body of GET /task. Task is nil when nothing is pending.
type TaskResponse struct {
	Task *spider.CrawlTask `json:"task"`
}

// StatusRequest is the body of POST /status.
type StatusRequest struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// SeedRequest is the body of POST /seed.
type SeedRequest struct {
	URLs []string `json:"urls"`
}

// DiscoveredRequest is the body of POST /discovered.
type DiscoveredRequest struct {
	URLs        []string `json:"urls"`
	ParentDepth int      `json:"parent_depth"`
}

// AddedResponse reports how many URLs an admission call added.
type AddedResponse struct {
	Added int `json:"added"`
}

// VisitedResponse is the body of GET /visited.
type VisitedResponse struct {
	URLs []string `json:"urls"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, ok, err := s.frontier.Next(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, TaskResponse{})
		return
	}
	writeJSON(w, http.StatusOK, TaskResponse{Task: &task})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := spider.NormalizeURL(req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}

	var err error
	switch req.Status {
	case StatusSuccess:
		err = s.frontier.MarkVisited(r.Context(), req.URL)
	case StatusFailed:
		err = s.frontier.MarkFailed(r.Context(), req.URL)
	default:
		err = spider.Errorf(spider.EINVALID, "unknown status %q", req.Status)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("status report", "url", req.URL, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]string{"message": "status recorded"})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.frontier.AddSeed(r.Context(), req.URLs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AddedResponse{Added: n})
}

func (s *Server) handleDiscovered(w http.ResponseWriter, r *http.Request) {
	var req DiscoveredRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ParentDepth < 0 {
		s.writeError(w, r, spider.Errorf(spider.EINVALID, "parent_depth must be non-negative"))
		return
	}
	n, err := s.frontier.AddDiscovered(r.Context(), req.URLs, req.ParentDepth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AddedResponse{Added: n})
}

func (s *Server) handleVisited(w http.ResponseWriter, r *http.Request) {
	urls, err := s.frontier.SnapshotVisited(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, VisitedResponse{URLs: urls})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.frontier.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.writeError(w, r, spider.Errorf(spider.EINVALID, "url query parameter required"))
		return
	}
	rec, err := s.frontier.Lookup(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, spider.Errorf(spider.EINVALID, "invalid json payload: %v", err))
		return false
	}
	return true
}

// writeError maps an application error code to an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := spider.ErrorCode(err)
	if code == spider.EINTERNAL {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, errorStatus(code), ErrorResponse{
		Code:  code,
		Error: spider.ErrorMessage(err),
	})
}

func errorStatus(code string) int {
	switch code {
	case spider.EINVALID:
		return http.StatusBadRequest
	case spider.ENOTFOUND:
		return http.StatusNotFound
	case spider.ECONFLICT:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
