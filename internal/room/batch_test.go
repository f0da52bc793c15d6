package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type batchSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (s *batchSink) flush(b Batch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
}

func (s *batchSink) snapshot() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

func note(i int) Envelope {
	return envelope("notification", MessagePayload{Message: fmt.Sprintf("msg %d", i)})
}

func TestBatcher_FlushesAtCapacity(t *testing.T) {
	sink := &batchSink{}
	b := NewBatcher(3, time.Minute, sink.flush)

	for i := 0; i < 7; i++ {
		b.Add(note(i))
	}

	batches := sink.snapshot()
	require.Len(t, batches, 2, "two full batches, one message still pending")
	require.Len(t, batches[0].Messages, 3)
	require.Len(t, batches[1].Messages, 3)

	b.Close()
	batches = sink.snapshot()
	require.Len(t, batches, 3)
	require.Len(t, batches[2].Messages, 1)
}

func TestBatcher_FlushesAfterDelay(t *testing.T) {
	sink := &batchSink{}
	b := NewBatcher(50, 20*time.Millisecond, sink.flush)
	defer b.Close()

	b.Add(note(0))
	b.Add(note(1))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Len(t, sink.snapshot()[0].Messages, 2)
}

func TestBatcher_CloseIsFinal(t *testing.T) {
	sink := &batchSink{}
	b := NewBatcher(50, time.Minute, sink.flush)

	b.Add(note(0))
	b.Close()
	b.Close()
	b.Add(note(1))
	time.Sleep(30 * time.Millisecond)

	batches := sink.snapshot()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Messages, 1)
	require.NotZero(t, batches[0].Timestamp)
}

func TestConnectionRegistry_RebindAndStaleUnregister(t *testing.T) {
	reg := NewConnectionRegistry()
	chA := newTestChan()
	chB := newTestChan()

	_, had := reg.Register("p1", "room-a", chA)
	require.False(t, had)

	prev, had := reg.Register("p1", "room-b", chB)
	require.True(t, had)
	require.Equal(t, "room-a", prev.RoomID)
	require.True(t, chA == prev.Channel)

	// the old connection's teardown must not tear down the new binding
	reg.Unregister("p1", chA)
	binding, ok := reg.Lookup("p1")
	require.True(t, ok)
	require.Equal(t, "room-b", binding.RoomID)

	reg.Unregister("p1", chB)
	_, ok = reg.Lookup("p1")
	require.False(t, ok)
}
