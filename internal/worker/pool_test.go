package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunsJobs(t *testing.T) {
	p := NewPool(2, 8, nil)
	p.Start()
	defer p.Stop()

	var count atomic.Int32
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		require.True(t, p.Submit("count", func(ctx context.Context) {
			count.Add(1)
			done <- struct{}{}
		}))
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
	}
	assert.Equal(t, int32(5), count.Load())
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	require.True(t, p.Submit("boom", func(ctx context.Context) { panic("boom") }))
	require.True(t, p.Submit("after", func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestPool_StopCancelsAndRejects(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.True(t, p.Submit("wait", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))

	<-started
	p.Stop()

	select {
	case <-cancelled:
	default:
		t.Fatal("running job was not cancelled by Stop")
	}
	assert.False(t, p.Submit("late", func(ctx context.Context) {}))
	p.Stop()
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1, nil)
	// Not started: the single slot fills and the next submit is refused.
	require.True(t, p.Submit("a", func(ctx context.Context) {}))
	assert.False(t, p.Submit("b", func(ctx context.Context) {}))
	p.Stop()
}
