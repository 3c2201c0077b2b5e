package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Feed is the health view of a venue feed.
type Feed interface {
	Platform() domain.Platform
	Healthy() bool
}

// PairSet lists the loaded pairs and which of them stopped trading.
type PairSet interface {
	Len() int
	Pairs() []domain.MatchedPair
	Inactive(id uuid.UUID) bool
}

// Accounts exposes the cached account snapshot.
type Accounts interface {
	Current() domain.StrategyContext
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	mode     string
	feeds    []Feed
	pairs    PairSet
	accounts Accounts
	started  time.Time
}

// NewStatusHandler creates a StatusHandler. pairs and accounts may be nil.
func NewStatusHandler(mode string, feeds []Feed, pairs PairSet, accounts Accounts) *StatusHandler {
	return &StatusHandler{
		mode:     mode,
		feeds:    feeds,
		pairs:    pairs,
		accounts: accounts,
		started:  time.Now().UTC(),
	}
}

type feedStatus struct {
	Platform domain.Platform `json:"platform"`
	Healthy  bool            `json:"healthy"`
}

type statusResponse struct {
	Mode          string                     `json:"mode"`
	Uptime        string                     `json:"uptime"`
	Feeds         []feedStatus               `json:"feeds"`
	Pairs         int                        `json:"pairs"`
	InactivePairs []uuid.UUID                `json:"inactive_pairs"`
	Balances      map[domain.Platform]string `json:"balances,omitempty"`
	AccountAsOf   *time.Time                 `json:"account_as_of,omitempty"`
}

// GetStatus reports mode, feed health, pair counts and balances.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		Uptime:        time.Since(h.started).Truncate(time.Second).String(),
		Feeds:         make([]feedStatus, 0, len(h.feeds)),
		InactivePairs: []uuid.UUID{},
	}
	for _, f := range h.feeds {
		resp.Feeds = append(resp.Feeds, feedStatus{Platform: f.Platform(), Healthy: f.Healthy()})
	}
	if h.pairs != nil {
		resp.Pairs = h.pairs.Len()
		for _, p := range h.pairs.Pairs() {
			if h.pairs.Inactive(p.ID) {
				resp.InactivePairs = append(resp.InactivePairs, p.ID)
			}
		}
	}
	if h.accounts != nil {
		sc := h.accounts.Current()
		if !sc.TakenAt.IsZero() {
			resp.Balances = make(map[domain.Platform]string, len(sc.Balances))
			for p, b := range sc.Balances {
				resp.Balances[p] = b.StringFixed(2)
			}
			resp.AccountAsOf = &sc.TakenAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
