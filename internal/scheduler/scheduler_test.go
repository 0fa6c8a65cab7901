package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksFireOnTheirIntervals(t *testing.T) {
	var fast, slow atomic.Int64

	s := NewScheduler()
	s.AddTask("fast", 10*time.Millisecond, func(ctx context.Context) { fast.Add(1) })
	s.AddTask("slow", time.Hour, func(ctx context.Context) { slow.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return fast.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}

	assert.Zero(t, slow.Load())
}

func TestNonPositiveIntervalIsIgnored(t *testing.T) {
	var calls atomic.Int64

	s := NewScheduler()
	s.AddTask("zero", 0, func(ctx context.Context) { calls.Add(1) })
	s.AddTask("negative", -time.Second, func(ctx context.Context) { calls.Add(1) })

	assert.Empty(t, s.tasks)
}

func TestPanickingTaskKeepsFiring(t *testing.T) {
	var calls atomic.Int64

	s := NewScheduler()
	s.AddTask("flaky", 10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
		panic("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
