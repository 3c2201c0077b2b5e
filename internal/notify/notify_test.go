package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type captureSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	c.bodies = append(c.bodies, message)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "tok", "42")
	require.NoError(t, s.Send(context.Background(), "A<B", "KX_FED & co"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>A&lt;B</b>\nKX_FED &amp; co", got["text"])
}

func TestDiscordSender(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), titleLegMismatch, "legs"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, discordColorAlert, got.Embeds[0].Color)
	assert.Equal(t, "legs", got.Embeds[0].Description)
}

func TestSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramSender(srv.URL, "tok", "1").Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400: chat not found")
}

func TestNotifierFiltersAndJoinsErrors(t *testing.T) {
	ok := &captureSender{}
	bad := &captureSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{ok, bad}, []string{EventLegMismatch, " "}, quiet())

	require.NoError(t, n.Notify(context.Background(), EventMispricing, "t", "m"))
	assert.Empty(t, ok.titles)

	err := n.Notify(context.Background(), EventLegMismatch, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture: boom")
	assert.Len(t, ok.titles, 1)
}

func sampleIntent() domain.TradeIntent {
	return domain.TradeIntent{
		ID:             uuid.New(),
		PairID:         uuid.New(),
		Strategy:       "mispricing_alert",
		ExpectedProfit: decimal.RequireFromString("0.05"),
		Legs: []domain.TradeLeg{
			{Platform: domain.PlatformKalshi, MarketID: "KXFED", Side: domain.OrderSideBuy, Price: decimal.RequireFromString("0.42")},
			{Platform: domain.PlatformPolymarket, MarketID: "123", Side: domain.OrderSideSell, Price: decimal.RequireFromString("0.49")},
		},
	}
}

func TestAlerterMispricingCooldown(t *testing.T) {
	c := &captureSender{}
	a := NewAlerter(NewNotifier([]Sender{c}, nil, quiet()), AlertConfig{Cooldown: time.Minute}, quiet())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	intent := sampleIntent()
	a.MispricingAlert(context.Background(), intent)
	a.MispricingAlert(context.Background(), intent)
	now = now.Add(2 * time.Minute)
	a.MispricingAlert(context.Background(), intent)
	a.Wait()

	require.Len(t, c.titles, 2)
	assert.Equal(t, titleMispricing, c.titles[0])
	assert.Contains(t, c.bodies[0], "expected profit 0.0500 per contract")
	assert.Contains(t, c.bodies[0], "kalshi KXFED buy @ 0.42")
}

func TestAlerterLegMismatch(t *testing.T) {
	c := &captureSender{}
	a := NewAlerter(NewNotifier([]Sender{c}, nil, quiet()), AlertConfig{}, quiet())

	intent := sampleIntent()
	res := domain.ExecutionResult{
		IntentID: intent.ID,
		PairID:   intent.PairID,
		Mismatch: true,
		Legs: []domain.LegResult{
			{Leg: intent.Legs[0], Status: domain.LegFilled, FilledSize: decimal.NewFromInt(10)},
			{Leg: intent.Legs[1], Status: domain.LegRejected, FilledSize: decimal.Zero, Reason: "circuit open"},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.LegMismatch(ctx, intent, res)
	cancel()
	a.Wait()

	require.Len(t, c.titles, 1)
	assert.Equal(t, titleLegMismatch, c.titles[0])
	assert.Contains(t, c.bodies[0], "rejected filled 0 (circuit open)")
	assert.Contains(t, c.bodies[0], "manual hedge required")
}

func TestAlerterWithoutSendersIsNoop(t *testing.T) {
	a := NewAlerter(NewNotifier(nil, nil, quiet()), AlertConfig{}, quiet())
	a.MispricingAlert(context.Background(), sampleIntent())
	a.Wait()
}
