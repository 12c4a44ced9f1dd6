package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerArmTwiceRunsOnlySecond(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second atomic.Int32
	s.Arm("c1", 20*time.Millisecond, func(context.Context) { first.Add(1) })
	s.Arm("c1", 30*time.Millisecond, func(context.Context) { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.False(t, s.Pending("c1"))
}

func TestSchedulerDisarmWithoutPendingIsNoop(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	assert.NotPanics(t, func() {
		s.Disarm("nobody")
		s.Disarm("nobody")
	})
	assert.False(t, s.Pending("nobody"))
}

func TestSchedulerDisarmCancelsPending(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var calls atomic.Int32
	s.Arm("c1", 20*time.Millisecond, func(context.Context) { calls.Add(1) })
	require.True(t, s.Pending("c1"))
	s.Disarm("c1")
	assert.False(t, s.Pending("c1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSchedulerDisarmCancelsRunningProducer(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	started := make(chan struct{})
	canceled := make(chan struct{})
	s.Arm("c1", time.Millisecond, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	})

	<-started
	s.Disarm("c1")
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("producer context was not canceled")
	}
}

func TestSchedulerSessionsAreIndependent(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var a, b atomic.Int32
	s.Arm("a", 10*time.Millisecond, func(context.Context) { a.Add(1) })
	s.Arm("b", 10*time.Millisecond, func(context.Context) { b.Add(1) })
	s.Disarm("a")

	require.Eventually(t, func() bool { return b.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), a.Load())
}

func TestSchedulerStop(t *testing.T) {
	s := NewScheduler()

	var calls atomic.Int32
	s.Arm("c1", 20*time.Millisecond, func(context.Context) { calls.Add(1) })
	s.Stop()
	s.Arm("c2", time.Millisecond, func(context.Context) { calls.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, s.Pending("c1"))
	assert.False(t, s.Pending("c2"))
}
