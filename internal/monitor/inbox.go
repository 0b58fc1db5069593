package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"focusguard-backend/internal/frame"
)

// inbox is a single-slot mailbox where the newest frame replaces any frame not yet taken.
type inbox struct {
	mu    sync.Mutex
	frame *frame.Frame
	ready chan struct{}
	drops atomic.Uint64
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

// put stores f and reports whether an untaken frame was overwritten.
func (b *inbox) put(f *frame.Frame) bool {
	b.mu.Lock()
	dropped := b.frame != nil
	if dropped {
		b.drops.Add(1)
	}
	b.frame = f
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return dropped
}

// take removes and returns the pending frame, nil if empty.
func (b *inbox) take() *frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	b.frame = nil
	return f
}

// peek reports the timestamp of the untaken frame, if any.
func (b *inbox) peek() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return time.Time{}, false
	}
	return b.frame.Timestamp, true
}

// restore puts back a frame that could not be submitted unless a newer one has arrived meanwhile.
// It reports whether f was kept.
func (b *inbox) restore(f *frame.Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame != nil {
		b.drops.Add(1)
		return false
	}
	b.frame = f
	return true
}

func (b *inbox) dropped() uint64 {
	return b.drops.Load()
}
