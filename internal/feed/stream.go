package feed

import (
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Stream is the outbound event channel of an adapter. Emit blocks while the
// consumer is behind so per-venue ordering is preserved; it returns false
// once the stream is closed.
type Stream struct {
	ch        chan domain.MarketEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	emitted   atomic.Int64
}

// NewStream creates a stream with the given buffer.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Stream{
		ch:   make(chan domain.MarketEvent, buffer),
		done: make(chan struct{}),
	}
}

// Events is the consumer side.
func (s *Stream) Events() <-chan domain.MarketEvent { return s.ch }

// Emit delivers ev unless the stream has been closed.
func (s *Stream) Emit(ev domain.MarketEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		s.emitted.Add(1)
		return true
	case <-s.done:
		return false
	}
}

// Emitted counts delivered events.
func (s *Stream) Emitted() int64 { return s.emitted.Load() }

// Close stops delivery and closes the channel. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}
