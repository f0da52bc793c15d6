package room

import (
	"sync"
	"time"
)

// Batch is a group of outbound frames delivered as one unit.
type Batch struct {
	Messages  []Envelope `json:"messages"`
	Timestamp int64      `json:"timestamp"`
}

// Batcher buffers outbound envelopes and hands them to the flush callback
// in bounded batches: a batch closes when it reaches maxMessages or when
// maxDelay passes since its first message, whichever comes first.
type Batcher struct {
	maxMessages int
	maxDelay    time.Duration
	flush       func(Batch)

	mu      sync.Mutex
	pending []Envelope
	opened  time.Time
	timer   *time.Timer
	token   int64
	closed  bool
}

func NewBatcher(maxMessages int, maxDelay time.Duration, flush func(Batch)) *Batcher {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	if maxDelay <= 0 {
		maxDelay = time.Second
	}
	return &Batcher{maxMessages: maxMessages, maxDelay: maxDelay, flush: flush}
}

func (b *Batcher) Add(env Envelope) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.pending) == 0 {
		b.opened = time.Now()
		b.token++
		token := b.token
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(b.maxDelay, func() { b.onTimer(token) })
	}
	b.pending = append(b.pending, env)
	var out *Batch
	if len(b.pending) >= b.maxMessages {
		out = b.takeLocked()
	}
	b.mu.Unlock()

	if out != nil {
		b.flush(*out)
	}
}

func (b *Batcher) onTimer(token int64) {
	b.mu.Lock()
	if b.closed || token != b.token || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	out := b.takeLocked()
	b.mu.Unlock()

	if out != nil {
		b.flush(*out)
	}
}

// Close flushes whatever is pending and rejects further messages.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	out := b.takeLocked()
	b.mu.Unlock()

	if out != nil {
		b.flush(*out)
	}
}

func (b *Batcher) takeLocked() *Batch {
	if len(b.pending) == 0 {
		return nil
	}
	out := &Batch{Messages: b.pending, Timestamp: b.opened.Unix()}
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	return out
}
