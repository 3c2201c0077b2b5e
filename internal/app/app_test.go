package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/config"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeeSchedule(t *testing.T) {
	cfg := config.Defaults()
	schedule, err := feeSchedule(&cfg)
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, domain.FeeOnProfit, schedule[domain.PlatformKalshi].Basis)
	assert.True(t, decimal.RequireFromString("0.07").Equal(schedule[domain.PlatformKalshi].Rate))
	assert.Equal(t, domain.FeeOnNotional, schedule[domain.PlatformPolymarket].Basis)

	cfg.Fees["betfair"] = cfg.Fees["kalshi"]
	_, err = feeSchedule(&cfg)
	assert.Error(t, err)
}

func TestPaperBalances(t *testing.T) {
	cfg := config.Defaults()
	balances, err := paperBalances(&cfg)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(balances[domain.PlatformKalshi]))
	assert.True(t, decimal.NewFromInt(1000).Equal(balances[domain.PlatformPolymarket]))

	cfg.Account.PaperBalances["betfair"] = cfg.Account.PaperBalances["kalshi"]
	_, err = paperBalances(&cfg)
	assert.Error(t, err)
}

func TestBackendSelection(t *testing.T) {
	cfg := config.Defaults()
	assert.True(t, needsPostgres(&cfg), "matches default to postgres")
	assert.True(t, needsRedis(&cfg))

	cfg.Matches.Source = "static"
	assert.False(t, needsPostgres(&cfg))
	cfg.Mode = "live"
	assert.True(t, needsPostgres(&cfg), "live mode persists executions")

	cfg.Mode = "check"
	assert.False(t, needsRedis(&cfg))
	cfg.Mode = "paper"
	cfg.Redis.Enabled = false
	assert.False(t, needsRedis(&cfg))
}

func TestWireStaticPaper(t *testing.T) {
	cfg := config.Defaults()
	cfg.Matches.Source = "static"
	cfg.Matches.Pairs = []config.PairConfig{{
		PlatformA: "kalshi",
		MarketA:   "KXFED-25DEC-T4.00",
		PlatformB: "polymarket",
		MarketB:   "7134221",
	}}
	cfg.Redis.Enabled = false
	cfg.Archive.Enabled = true // ignored without an audit log

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	pairs, err := deps.Matches.LoadApprovedMatches(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, domain.OrientationComplement, pairs[0].Orientation)

	assert.Nil(t, deps.Executions)
	assert.Nil(t, deps.Locks)
	assert.Nil(t, deps.AccountStore)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Checks)
	require.NotNil(t, deps.Notifier)
	assert.False(t, deps.Notifier.Enabled())
}

func TestWireRejectsBadStaticPair(t *testing.T) {
	cfg := config.Defaults()
	cfg.Matches.Source = "static"
	cfg.Matches.Pairs = []config.PairConfig{{PlatformA: "betfair", PlatformB: "kalshi"}}
	cfg.Redis.Enabled = false

	_, _, err := Wire(context.Background(), &cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches.pairs[0]")
}

func TestRunUnsupportedMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "replay"
	cfg.Matches.Source = "static"
	cfg.Redis.Enabled = false

	a := New(&cfg, quietLogger())
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported mode "replay"`)
}
