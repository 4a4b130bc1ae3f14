// Package reactor implements the single-dispatcher, cooperative-step
// scheduler spec.md §5 requires every state machine (BeaconSetupService,
// BeaconService, the main-chain reader side, RBC's outbox flush) to run
// on: one goroutine pulls the task with the nearest deadline off a
// priority queue, invokes one non-blocking step, and reschedules it at
// whatever delay the step requests.
//
// Grounded on the teacher's beacon/ticker.go (a single goroutine fed by a
// clockwork.Clock ticker, fanning out to registered channels) generalized
// from one fixed-period round ticker into an arbitrary-deadline priority
// queue, since this module's state machines each want their own
// independent, varying re-schedule interval rather than one shared period.
package reactor

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/drand/ledger-beacon/common/log"
)

// Task is one cooperatively-scheduled state machine step. Step must not
// block; long cryptographic operations are fine to run inline (spec.md §5
// explicitly allows this - they are bounded in time), but any I/O wait
// must be expressed as a returned delay instead.
type Task interface {
	// Step runs one increment of work and returns the delay until Step
	// should run again. A task that wants to stop returns Stop.
	Step(ctx context.Context) time.Duration
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context) time.Duration

func (f TaskFunc) Step(ctx context.Context) time.Duration { return f(ctx) }

// Periodic wraps a fire-and-forget function (e.g. RBC.GetRunnable's outbox
// flush) into a Task that re-runs every interval forever.
func Periodic(interval time.Duration, fn func(ctx context.Context)) Task {
	return TaskFunc(func(ctx context.Context) time.Duration {
		fn(ctx)
		return interval
	})
}

// Stop is the sentinel delay a Task returns to deregister itself.
const Stop time.Duration = -1

type scheduled struct {
	task     Task
	deadline time.Time
	index    int
}

// deadlineQueue is a container/heap min-heap ordered by deadline.
type deadlineQueue []*scheduled

func (q deadlineQueue) Len() int           { return len(q) }
func (q deadlineQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q deadlineQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }

func (q *deadlineQueue) Push(x interface{}) {
	item := x.(*scheduled)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *deadlineQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Reactor is the single-dispatcher, priority-queue scheduler. The zero
// value is not usable; build one with New.
type Reactor struct {
	clock clockwork.Clock
	log   log.Logger

	mu    sync.Mutex
	queue deadlineQueue
	wake  chan struct{}
}

// New builds a Reactor driven by clock (inject a fake clock in tests).
func New(clock clockwork.Clock, l log.Logger) *Reactor {
	return &Reactor{
		clock: clock,
		log:   l.Named("reactor"),
		wake:  make(chan struct{}, 1),
	}
}

// Register schedules task to run its first Step after initialDelay.
func (r *Reactor) Register(task Task, initialDelay time.Duration) {
	r.mu.Lock()
	heap.Push(&r.queue, &scheduled{task: task, deadline: r.clock.Now().Add(initialDelay)})
	r.mu.Unlock()
	r.nudge()
}

func (r *Reactor) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// nextDeadline returns the queue's earliest deadline and whether the queue
// is non-empty.
func (r *Reactor) nextDeadline() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return time.Time{}, false
	}
	return r.queue[0].deadline, true
}

// popDue pops and returns every task whose deadline is <= now.
func (r *Reactor) popDue(now time.Time) []*scheduled {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*scheduled
	for len(r.queue) > 0 && !r.queue[0].deadline.After(now) {
		due = append(due, heap.Pop(&r.queue).(*scheduled))
	}
	return due
}

func (r *Reactor) reschedule(s *scheduled, delay time.Duration) {
	if delay == Stop {
		return
	}
	r.mu.Lock()
	s.deadline = r.clock.Now().Add(delay)
	heap.Push(&r.queue, s)
	r.mu.Unlock()
}

// Run drives the dispatch loop until ctx is cancelled. It is meant to run
// on its own goroutine for the life of the process.
func (r *Reactor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deadline, ok := r.nextDeadline()
		var timer clockwork.Timer
		var timerCh <-chan time.Time
		if ok {
			d := deadline.Sub(r.clock.Now())
			if d < 0 {
				d = 0
			}
			timer = r.clock.NewTimer(d)
			timerCh = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-r.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerCh:
		}

		for _, s := range r.popDue(r.clock.Now()) {
			delay := s.task.Step(ctx)
			r.reschedule(s, delay)
		}
	}
}
