package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type receiptRecorder struct {
	mu      sync.Mutex
	batches [][]int64
}

func (r *receiptRecorder) send(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ids)
}

func (r *receiptRecorder) recorded() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int64, len(r.batches))
	copy(out, r.batches)
	return out
}

func TestBurstCoalescesIntoOneBatch(t *testing.T) {
	rec := &receiptRecorder{}
	b := NewReceiptBatcher(30*time.Millisecond, rec.send)
	defer b.Stop()

	for id := int64(1); id <= 5; id++ {
		b.Observe(id)
	}

	require.Eventually(t, func() bool {
		return len(rec.recorded()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, rec.recorded()[0])
}

func TestObserveIsIdempotent(t *testing.T) {
	rec := &receiptRecorder{}
	b := NewReceiptBatcher(10*time.Millisecond, rec.send)
	defer b.Stop()

	b.Observe(7)
	b.Observe(7)
	b.Flush()

	require.Equal(t, [][]int64{{7}}, rec.recorded())
	require.True(t, b.Acknowledged(7))
	require.False(t, b.Acknowledged(8))

	// A duplicate delivery after the batch went out stays silent.
	b.Observe(7)
	b.Flush()
	require.Equal(t, [][]int64{{7}}, rec.recorded())
}

func TestFlushSendsPendingImmediately(t *testing.T) {
	rec := &receiptRecorder{}
	b := NewReceiptBatcher(time.Hour, rec.send)
	defer b.Stop()

	b.Observe(1)
	b.Observe(2)
	b.Flush()

	require.Equal(t, [][]int64{{1, 2}}, rec.recorded())

	// Nothing pending, flush sends nothing.
	b.Flush()
	require.Len(t, rec.recorded(), 1)
}

func TestSeparateBurstsProduceSeparateBatches(t *testing.T) {
	rec := &receiptRecorder{}
	b := NewReceiptBatcher(10*time.Millisecond, rec.send)
	defer b.Stop()

	b.Observe(1)
	require.Eventually(t, func() bool { return len(rec.recorded()) == 1 }, time.Second, time.Millisecond)

	b.Observe(2)
	require.Eventually(t, func() bool { return len(rec.recorded()) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, [][]int64{{1}, {2}}, rec.recorded())
}
