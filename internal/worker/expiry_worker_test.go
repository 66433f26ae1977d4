package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExpirer returns the queued results in order, then zero
type fakeExpirer struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
}

func (f *fakeExpirer) ExpireStale(ctx context.Context, now time.Time, batchSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewExpiryWorker_Defaults(t *testing.T) {
	w := NewExpiryWorker(&fakeExpirer{}, &ExpiryWorkerConfig{BatchSize: -1}, nil)
	assert.Equal(t, 30*time.Second, w.config.ScanInterval)
	assert.Equal(t, 100, w.config.BatchSize)
	assert.Equal(t, 10, w.config.MaxBatchesPerScan)
}

func TestExpiryWorker_Scan(t *testing.T) {
	tests := []struct {
		name      string
		results   []int
		err       error
		wantTotal int
		wantCalls int
	}{
		{name: "nothing overdue", results: nil, wantTotal: 0, wantCalls: 1},
		{name: "partial batch", results: []int{3}, wantTotal: 3, wantCalls: 1},
		{name: "drains full batches", results: []int{10, 10, 4}, wantTotal: 24, wantCalls: 3},
		{name: "stops at the batch limit", results: []int{10, 10, 10, 10}, wantTotal: 30, wantCalls: 3},
		{name: "error stops the scan", err: errors.New("db down"), wantTotal: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExpirer{results: tt.results, err: tt.err}
			w := NewExpiryWorker(exp, &ExpiryWorkerConfig{ScanInterval: time.Hour, BatchSize: 10, MaxBatchesPerScan: 3}, nil)

			assert.Equal(t, tt.wantTotal, w.Scan(context.Background()))
			assert.Equal(t, tt.wantCalls, exp.callCount())

			stats := w.GetStats()
			assert.Equal(t, int64(tt.wantTotal), stats.TotalExpired)
			assert.Equal(t, tt.wantTotal, stats.LastExpiredCount)
		})
	}
}

func TestExpiryWorker_StartStop(t *testing.T) {
	exp := &fakeExpirer{results: []int{2}}
	w := NewExpiryWorker(exp, &ExpiryWorkerConfig{ScanInterval: 10 * time.Millisecond, BatchSize: 10}, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start is rejected")

	assert.Eventually(t, func() bool { return exp.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.GetStats().IsRunning)

	w.Stop()
	w.Stop()
	stats := w.GetStats()
	assert.False(t, stats.IsRunning)
	assert.Equal(t, int64(2), stats.TotalExpired)
}

func TestExpiryWorker_StopsWithContext(t *testing.T) {
	exp := &fakeExpirer{}
	w := NewExpiryWorker(exp, &ExpiryWorkerConfig{ScanInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	assert.Eventually(t, func() bool { return exp.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	w.Stop()
}
