package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ArchiveTrigger starts an archive run out of schedule.
type ArchiveTrigger interface {
	Trigger() bool
}

// ArchiveHandler serves the manual archive endpoint.
type ArchiveHandler struct {
	archiver ArchiveTrigger
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archiver ArchiveTrigger, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver, logger: logger.With(slog.String("handler", "archive"))}
}

// Trigger enqueues one audit archive run.
// POST /api/archive/trigger
func (h *ArchiveHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	queued := h.archiver.Trigger()
	h.logger.InfoContext(r.Context(), "archive run requested", slog.Bool("queued", queued))
	status := "accepted"
	if !queued {
		status = "already_pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       status,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
