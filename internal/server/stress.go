package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/stress"
)

type stressRequest struct {
	Categories []string `json:"categories"`
	Quick      bool     `json:"quick"`
}

type stressResponse struct {
	Result   *stress.TestResult `json:"result"`
	Report   stress.Report      `json:"report"`
	Markdown string             `json:"markdown"`
}

// streamEvent is one websocket message. Type is "progress", "done" or
// "error".
type streamEvent struct {
	Type     string           `json:"type"`
	Progress *stress.Progress `json:"progress,omitempty"`
	Summary  *stress.Summary  `json:"summary,omitempty"`
	Markdown string           `json:"markdown,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) handleStress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stress == nil {
		writeError(w, http.StatusNotFound, errors.New("stress testing is not configured"))
		return
	}
	var req stressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := s.runStress(r.Context(), req, nil)
	switch {
	case errors.Is(err, ErrStressBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, stress.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stressResponse{
		Result:   out.Result,
		Report:   out.Report,
		Markdown: stress.ExportMarkdown(out.Report),
	})
}

// handleStressWS runs a batch selected by the "category" and "quick" query
// parameters and streams one event per question. Closing the socket cancels
// the batch.
func (s *Server) handleStressWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stress == nil {
		writeError(w, http.StatusNotFound, errors.New("stress testing is not configured"))
		return
	}
	q := r.URL.Query()
	req := stressRequest{Quick: boolParam(q.Get("quick"))}
	for _, c := range q["category"] {
		for part := range strings.SplitSeq(c, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Categories = append(req.Categories, part)
			}
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("stress websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx)

	progress := make(chan stress.Progress)
	type result struct {
		out *stress.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.runStress(ctx, req, progress)
		done <- result{out, err}
	}()

	for p := range progress {
		if err := wsjson.Write(ctx, conn, streamEvent{Type: "progress", Progress: &p}); err != nil {
			log.Debug("stress websocket write failed", "err", err)
		}
	}
	res := <-done

	if res.err != nil {
		_ = wsjson.Write(ctx, conn, streamEvent{Type: "error", Error: res.err.Error()})
		conn.Close(websocket.StatusPolicyViolation, "stress run rejected")
		return
	}
	summary := res.out.Report.Summary
	if err := wsjson.Write(ctx, conn, streamEvent{
		Type:     "done",
		Summary:  &summary,
		Markdown: stress.ExportMarkdown(res.out.Report),
	}); err != nil {
		log.Debug("stress websocket write failed", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// runStress admits one batch at a time. If progress is non-nil it is closed
// when runStress returns.
func (s *Server) runStress(ctx context.Context, req stressRequest, progress chan<- stress.Progress) (*stress.Outcome, error) {
	if !s.stressing.CompareAndSwap(false, true) {
		if progress != nil {
			close(progress)
		}
		return nil, ErrStressBusy
	}
	defer s.stressing.Store(false)

	if req.Quick {
		return s.deps.Stress.RunQuickSubset(ctx, progress)
	}
	return s.deps.Stress.RunCategories(ctx, req.Categories, progress)
}
