package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingArchiver struct {
	n    int64
	err  error
	runs int
}

func (c *countingArchiver) ArchiveAudit(context.Context) (int64, error) {
	c.runs++
	return c.n, c.err
}

func TestArchiverRun(t *testing.T) {
	blob := &countingArchiver{n: 12}
	a := NewArchiver(blob, quietLogger())
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, 1, blob.runs)

	blob.err = errors.New("bucket unreachable")
	assert.ErrorContains(t, a.Run(context.Background()), "bucket unreachable")
}

func TestCronNext(t *testing.T) {
	from := time.Date(2025, 11, 4, 14, 7, 30, 0, time.UTC) // Tuesday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 11, 4, 14, 8, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 11, 4, 14, 15, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2025, 11, 5, 3, 0, 0, 0, time.UTC)},
		{"30 2 1 * *", time.Date(2025, 12, 1, 2, 30, 0, 0, time.UTC)},
		{"0 9 * * 1-5", time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)},
		{"0 0 * * 0,6", time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			require.NoError(t, err)
			got, ok := sched.next(from)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronThatNeverFires(t *testing.T) {
	sched, err := parseCron("0 0 31 2 *")
	require.NoError(t, err)
	_, ok := sched.next(time.Now())
	assert.False(t, ok)
}

type signalArchiver struct{ ran chan struct{} }

func (s signalArchiver) ArchiveAudit(context.Context) (int64, error) {
	s.ran <- struct{}{}
	return 0, nil
}

func TestArchiverTrigger(t *testing.T) {
	blob := signalArchiver{ran: make(chan struct{}, 1)}
	a := NewArchiver(blob, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunCron(ctx, "0 0 1 1 *") }()

	require.True(t, a.Trigger())
	select {
	case <-blob.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not happen")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
