package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// ExecutionReader is the read side of the execution store.
type ExecutionReader interface {
	GetByIntent(ctx context.Context, intentID uuid.UUID) (domain.ExecutionResult, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error)
	CountMismatches(ctx context.Context, since time.Time) (int64, error)
}

// ExecutionHandler serves execution history.
type ExecutionHandler struct {
	store  ExecutionReader
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store ExecutionReader, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger.With(slog.String("handler", "executions"))}
}

type listExecutionsResponse struct {
	Executions    []domain.ExecutionResult `json:"executions"`
	Mismatches24h int64                    `json:"leg_mismatches_24h"`
}

// ListRecent returns recent executions without legs.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.store.ListRecent(ctx, queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(ctx, "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	mismatches, err := h.store.CountMismatches(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		h.logger.ErrorContext(ctx, "count mismatches failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count leg mismatches")
		return
	}
	if list == nil {
		list = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: list, Mismatches24h: mismatches})
}

// Get returns one execution with its legs.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid intent id")
		return
	}
	res, err := h.store.GetByIntent(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "execution not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get execution failed",
			slog.String("intent_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load execution")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
