// Package api exposes the dispatcher over HTTP: a synchronous run endpoint,
// an asynchronous enqueue endpoint, and a health probe. Scheduler platforms
// invoke these from browser-adjacent contexts, so CORS preflight is handled
// explicitly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushdispatch/internal/dispatch"
	"pushdispatch/internal/types"
)

// Runner executes a dispatch run synchronously.
type Runner interface {
	Run(ctx context.Context, input dispatch.RunInput) (*types.RunSummary, error)
}

// Enqueuer hands a run request to the async trigger queue.
type Enqueuer interface {
	Enabled() bool
	TriggerRun(ctx context.Context, input dispatch.RunInput, reason string) error
}

// Handler holds the HTTP dependencies for the dispatcher service.
type Handler struct {
	runner  Runner
	trigger Enqueuer
	logger  *slog.Logger
}

// NewHandler creates a Handler. trigger may be nil when no queue is configured.
func NewHandler(runner Runner, trigger Enqueuer, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, trigger: trigger, logger: logger}
}

// Routes registers the dispatcher endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Options("/run", h.handlePreflight)
	r.Post("/run", h.handleRun)
	r.Options("/run/async", h.handlePreflight)
	r.Post("/run/async", h.handleRunAsync)
	r.Get("/healthz", h.handleHealth)
}

// corsHeaders sets the permissive CORS surface expected by the scheduler.
func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type")
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// handleRun executes a run and returns its summary. The request body is
// optional; an absent or unparseable body selects batch mode with defaults.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	input := parseRunInput(r)

	summary, err := h.runner.Run(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// handleRunAsync enqueues a run request instead of executing it inline.
func (h *Handler) handleRunAsync(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil || !h.trigger.Enabled() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   "async trigger queue is not configured",
		})
		return
	}

	input := parseRunInput(r)
	if err := h.trigger.TriggerRun(r.Context(), input, "http"); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Run request enqueued",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseRunInput reads the optional JSON body. Parse failures fall back to the
// zero input (batch mode, default limit) rather than rejecting the request.
func parseRunInput(r *http.Request) dispatch.RunInput {
	var input dispatch.RunInput
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return input
	}
	if err := json.Unmarshal(body, &input); err != nil {
		return dispatch.RunInput{}
	}
	return input
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps run failures to an error envelope. AppErrors carry their
// own status; anything else is an internal error.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}

	h.logger.Error("dispatch run failed", "error", err)
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
