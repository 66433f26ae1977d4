package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockJobLocker is a mock implementation of JobLocker
type MockJobLocker struct {
	mock.Mock
}

func (m *MockJobLocker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	args := m.Called(ctx, name, ttl)
	if !args.Bool(0) {
		return false, args.Error(1)
	}
	return true, fn(ctx)
}

type fakeRevenue struct{ calls atomic.Int32 }

func (f *fakeRevenue) ReleaseMatured(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	return 1, nil
}

type fakeReconciler struct {
	olderThan time.Duration
	err       error
}

func (f *fakeReconciler) ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return 0, f.err
}

func TestScheduler_RunNowTakesLock(t *testing.T) {
	locker := new(MockJobLocker)
	locker.On("WithLock", mock.Anything, "sweeper:release", time.Minute).Return(true, nil).Once()

	s := NewScheduler(locker, &SchedulerConfig{LockTTL: time.Minute, LockPrefix: "sweeper:"}, nil)
	var runs atomic.Int32
	require.NoError(t, s.AddJob("release", "@every 1h", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.RunNow(context.Background(), "release"))
	assert.Equal(t, int32(1), runs.Load())
	locker.AssertExpectations(t)
}

func TestScheduler_SkipsWhenLockHeldElsewhere(t *testing.T) {
	locker := new(MockJobLocker)
	locker.On("WithLock", mock.Anything, "sweeper:release", mock.Anything).Return(false, nil)

	s := NewScheduler(locker, nil, nil)
	var runs atomic.Int32
	require.NoError(t, s.AddJob("release", "@every 1h", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.RunNow(context.Background(), "release"))
	assert.Zero(t, runs.Load())
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.AddJob("boom", "@every 1h", func(ctx context.Context) error {
		panic("unexpected")
	}))

	assert.NotPanics(t, func() {
		_ = s.RunNow(context.Background(), "boom")
	})
}

func TestScheduler_AddJobErrors(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.AddJob("bad", "not a schedule", noop))
	require.NoError(t, s.AddJob("ok", "*/5 * * * *", noop))
	assert.Error(t, s.AddJob("ok", "@every 1m", noop), "names are unique")
	assert.Error(t, s.RunNow(context.Background(), "missing"))
	assert.Equal(t, []string{"ok"}, s.Jobs())
}

func TestRegisterSweeperJobs(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	revenue := &fakeRevenue{}
	reconciler := &fakeReconciler{err: errors.New("provider down")}

	require.NoError(t, RegisterSweeperJobs(s, revenue, reconciler, &SweeperJobsConfig{
		RevenueReleaseSchedule: "@every 15m",
		ReconcileSchedule:      "@every 10m",
		ReconcileAfter:         30 * time.Minute,
	}))
	assert.Equal(t, []string{JobRevenueRelease, JobTransferReconcile}, s.Jobs())

	require.NoError(t, s.RunNow(context.Background(), JobRevenueRelease))
	require.NoError(t, s.RunNow(context.Background(), JobTransferReconcile))
	assert.Equal(t, int32(1), revenue.calls.Load())
	assert.Equal(t, 30*time.Minute, reconciler.olderThan)
}

func TestRegisterSweeperJobs_InvalidSchedule(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	err := RegisterSweeperJobs(s, &fakeRevenue{}, &fakeReconciler{}, &SweeperJobsConfig{
		RevenueReleaseSchedule: "every so often",
		ReconcileSchedule:      "@every 10m",
	})
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	require.NoError(t, s.AddJob("idle", "@every 1h", func(ctx context.Context) error { return nil }))

	s.Start(context.Background())
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
