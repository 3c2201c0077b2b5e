package invariant

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHoldLogsInProduction(t *testing.T) {
	var buf bytes.Buffer
	c := New(slog.New(slog.NewJSONHandler(&buf, nil)), nil, false)

	assert.True(t, c.Hold(true, "never logged"))
	assert.Zero(t, buf.Len())

	assert.False(t, c.Hold(false, "size missing", slog.String("pair_id", "p1")))
	assert.Contains(t, buf.String(), "invariant violated: size missing")
	assert.Contains(t, buf.String(), `"pair_id":"p1"`)
}

func TestHoldPanicsInDebug(t *testing.T) {
	c := New(slog.Default(), nil, true)
	assert.Panics(t, func() { c.Hold(false, "boom") })
	assert.NotPanics(t, func() { c.Hold(true, "fine") })
}

func TestNilChecker(t *testing.T) {
	var c *Checker
	assert.False(t, c.Hold(false, "ignored"))
	assert.True(t, c.Hold(true, "ignored"))
}
