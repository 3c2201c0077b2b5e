package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// StreamReader reads entries from a durable stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// DecisionHandler pages through the decision audit stream.
type DecisionHandler struct {
	streams StreamReader
	stream  string
	logger  *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler reading stream.
func NewDecisionHandler(streams StreamReader, stream string, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		streams: streams,
		stream:  stream,
		logger:  logger.With(slog.String("handler", "decisions")),
	}
}

type streamedDecision struct {
	ID       string          `json:"id"`
	Decision json.RawMessage `json:"decision"`
}

type listDecisionsResponse struct {
	Decisions []streamedDecision `json:"decisions"`
	Next      string             `json:"next"`
}

// List returns decisions recorded after the given stream id. Next is the id
// to pass as after for the following page.
// GET /api/decisions?after=0&limit=100
func (h *DecisionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.streams.StreamRead(ctx, h.stream, after, queryLimit(r, 100, 1000))
	if err != nil {
		h.logger.ErrorContext(ctx, "read decision stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read decisions")
		return
	}

	resp := listDecisionsResponse{Decisions: make([]streamedDecision, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		resp.Next = m.ID
		if !json.Valid(m.Payload) {
			h.logger.WarnContext(ctx, "skipping malformed stream entry", slog.String("id", m.ID))
			continue
		}
		resp.Decisions = append(resp.Decisions, streamedDecision{ID: m.ID, Decision: m.Payload})
	}
	writeJSON(w, http.StatusOK, resp)
}
