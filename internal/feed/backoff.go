package feed

import "time"

// Backoff doubles a reconnect delay up to a cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	cur  time.Duration
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	if b.cur == 0 {
		b.cur = b.Base
		return b.cur
	}
	b.cur *= 2
	if b.cur > b.Max {
		b.cur = b.Max
	}
	return b.cur
}

// Reset starts over after a successful connection.
func (b *Backoff) Reset() { b.cur = 0 }
