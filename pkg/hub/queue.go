package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatchQueue serializes request admission behind a sliding-window
// rate limit while leaving execution concurrent.
//
// Tasks are admitted strictly in FIFO order. An admission timestamp is
// recorded before the task starts, which is conservative on purpose:
// counting at start rather than completion prevents a burst from
// overshooting the window when completions straggle. Once admitted,
// tasks run on their own goroutines, so completion order is
// unconstrained and a task's failure reaches only its own caller.
type DispatchQueue struct {
	limit  int
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []*queueTask
	stamps  []time.Time
	running bool
	closed  bool

	// Test seams.
	now       func() time.Time
	sleep     func(time.Duration)
	admitHook func(label string, at time.Time)
}

type queueTask struct {
	ctx   context.Context
	label string
	run   func()
}

// NewDispatchQueue creates a queue admitting at most limit tasks per
// window. A non-positive limit is treated as 1.
func NewDispatchQueue(limit int, window time.Duration, logger *slog.Logger) *DispatchQueue {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchQueue{
		limit:  limit,
		window: window,
		logger: logger.With("component", "dispatch-queue"),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Enqueue adds a task for admission-controlled execution. With bypass
// set the task starts immediately, skipping admission control entirely;
// that path exists for out-of-band transfers that carry their own
// limits. The task is dropped without running if ctx is done before it
// is admitted.
func (q *DispatchQueue) Enqueue(ctx context.Context, bypass bool, task func()) error {
	if bypass {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ErrQueueClosed
		}
		go task()
		return nil
	}

	return q.add(&queueTask{ctx: ctx, run: task})
}

func (q *DispatchQueue) add(t *queueTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	// Exactly one worker loop at a time; re-entrant enqueues feed the
	// loop that is already draining.
	if start {
		go q.drain()
	}
	return nil
}

// Close rejects further enqueues. Tasks already queued still run.
func (q *DispatchQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Pending returns the number of tasks awaiting admission.
func (q *DispatchQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *DispatchQueue) drain() {
	for {
		q.mu.Lock()
		now := q.now()
		q.evictLocked(now)

		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}

		if len(q.stamps) < q.limit {
			t := q.tasks[0]
			q.tasks = q.tasks[1:]

			if t.ctx != nil && t.ctx.Err() != nil {
				// Caller gave up while queued; never admit.
				q.mu.Unlock()
				continue
			}

			// Record admission before execution.
			q.stamps = append(q.stamps, now)
			hook := q.admitHook
			q.mu.Unlock()
			if hook != nil {
				hook(t.label, now)
			}
			go t.run()
			continue
		}

		// Window full: sleep until the oldest admission exits it.
		wait := q.stamps[0].Add(q.window).Sub(now)
		q.mu.Unlock()
		if wait > 0 {
			q.sleep(wait)
		}
	}
}

// evictLocked drops admission timestamps older than the window.
// Caller holds q.mu.
func (q *DispatchQueue) evictLocked(now time.Time) {
	cutoff := now.Add(-q.window)
	i := 0
	for i < len(q.stamps) && !q.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q.stamps = append(q.stamps[:0], q.stamps[i:]...)
	}
}
