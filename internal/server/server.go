// Package server exposes the orchestrator, the interaction log and the
// stress-test harness over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/fitcoach/internal/health"
	"github.com/MrWong99/fitcoach/internal/interaction"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/stress"
	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ErrStressBusy is reported when a stress run is requested while another is
// still in progress.
var ErrStressBusy = errors.New("server: a stress test is already running")

// Chatter runs one conversation turn. *orchestrator.Orchestrator satisfies it.
type Chatter interface {
	Run(ctx context.Context, userMessage string, rc orchestrator.RunContext) (*orchestrator.Result, error)
}

// StressRunner runs stress batches. *stress.Harness satisfies it.
type StressRunner interface {
	RunCategories(ctx context.Context, categories []string, progress chan<- stress.Progress) (*stress.Outcome, error)
	RunQuickSubset(ctx context.Context, progress chan<- stress.Progress) (*stress.Outcome, error)
}

var (
	_ Chatter      = (*orchestrator.Orchestrator)(nil)
	_ StressRunner = (*stress.Harness)(nil)
)

// Deps are the collaborators served over HTTP. Chat and Log are required.
type Deps struct {
	Chat    Chatter
	Log     *interaction.Logger
	Stress  StressRunner
	Tools   health.ToolSource
	Health  *health.Handler
	Metrics *observe.Metrics
}

// Server routes HTTP requests to its [Deps].
type Server struct {
	deps      Deps
	stressing atomic.Bool
}

// New validates deps and returns a [Server].
func New(deps Deps) (*Server, error) {
	if deps.Chat == nil || deps.Log == nil {
		return nil, errors.New("server: chat and interaction log are required")
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Server{deps: deps}, nil
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)

	mux.HandleFunc("GET /v1/interactions", s.handleInteractions)
	mux.HandleFunc("GET /v1/interactions/stats", s.handleStats)
	mux.HandleFunc("GET /v1/interactions/export", s.handleExport)
	mux.HandleFunc("GET /v1/interactions/{id}/bugreport", s.handleBugReport)
	mux.HandleFunc("DELETE /v1/interactions", s.handleClear)

	mux.HandleFunc("POST /v1/stress", s.handleStress)
	mux.HandleFunc("GET /v1/stress/ws", s.handleStressWS)

	mux.HandleFunc("GET /v1/tools/health", s.handleToolHealth)

	s.deps.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.deps.Metrics)(mux)
}

type chatRequest struct {
	Message string                  `json:"message"`
	Context orchestrator.RunContext `json:"context"`
}

type errorBody struct {
	Error    string              `json:"error"`
	Category types.ErrorCategory `json:"category,omitempty"`
	EntryID  string              `json:"entryId,omitempty"`
	Attempts int                 `json:"attempts,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	res, err := s.deps.Chat.Run(r.Context(), req.Message, req.Context)
	if err != nil {
		body := errorBody{Error: err.Error(), Category: orchestrator.CategoryOf(err)}
		var re *orchestrator.RunError
		if errors.As(err, &re) {
			body.EntryID = re.EntryID
			body.Attempts = re.Attempts
		}
		observe.Logger(r.Context()).Warn("chat run failed", "category", body.Category, "err", err)
		writeJSON(w, statusFor(body.Category), body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps a run failure category to an HTTP status.
func statusFor(c types.ErrorCategory) int {
	switch c {
	case types.CategoryAPIRateLimit:
		return http.StatusTooManyRequests
	case types.CategoryAPIError:
		return http.StatusBadGateway
	case types.CategoryCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type entriesBody struct {
	Count   int                 `json:"count"`
	Entries []interaction.Entry `json:"entries"`
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var entries []interaction.Entry
	switch {
	case q.Get("category") != "":
		c := types.ErrorCategory(q.Get("category"))
		if !c.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown category %q", c))
			return
		}
		entries = s.deps.Log.ByCategory(ctx, c)
	case boolParam(q.Get("failed")):
		entries = s.deps.Log.Failed(ctx)
	default:
		entries = s.deps.Log.All(ctx)
	}
	if entries == nil {
		entries = []interaction.Entry{}
	}
	writeJSON(w, http.StatusOK, entriesBody{Count: len(entries), Entries: entries})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Log.Statistics(r.Context()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	include := boolParam(r.URL.Query().Get("include_successful"))
	writeText(w, http.StatusOK, s.deps.Log.Export(r.Context(), include))
}

func (s *Server) handleBugReport(w http.ResponseWriter, r *http.Request) {
	e, ok := s.deps.Log.Find(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("interaction %q not found", r.PathValue("id")))
		return
	}
	writeText(w, http.StatusOK, interaction.BugReport(e))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Log.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToolHealth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Tools == nil {
		writeJSON(w, http.StatusOK, []tool.Health{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Tools.Health())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func boolParam(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
