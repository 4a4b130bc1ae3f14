package reactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/log"
)

// countingTask increments a counter on every Step and always reschedules
// itself after interval.
type countingTask struct {
	mu       sync.Mutex
	count    int
	interval time.Duration
}

func (c *countingTask) Step(ctx context.Context) time.Duration {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return c.interval
}

func (c *countingTask) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestReactorRunsTaskOnSchedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock, log.DefaultLogger())

	task := &countingTask{interval: 10 * time.Millisecond}
	r.Register(task, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	clock.BlockUntil(1)
	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Millisecond)
		clock.BlockUntil(1)
	}

	require.GreaterOrEqual(t, task.Count(), 3)
}

func TestReactorTaskCanStopItself(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock, log.DefaultLogger())

	var ran int
	var mu sync.Mutex
	task := TaskFunc(func(ctx context.Context) time.Duration {
		mu.Lock()
		ran++
		mu.Unlock()
		return Stop
	})
	r.Register(task, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, ran)
}

func TestPeriodicWrapsPlainFunction(t *testing.T) {
	var calls int
	var mu sync.Mutex
	task := Periodic(5*time.Millisecond, func(ctx context.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	delay := task.Step(context.Background())
	require.Equal(t, 5*time.Millisecond, delay)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestReactorRunStopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock, log.DefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
