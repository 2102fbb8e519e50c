package client

import (
	"context"
	"sync"
	"time"
)

// Loop is the single goroutine that mutates the world model and the atlas.
// Other goroutines hand it work through Schedule.
type Loop struct {
	opts     options
	interval time.Duration

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func NewLoop(frameRate int, opts ...Option) *Loop {
	if frameRate <= 0 {
		frameRate = 30
	}
	if frameRate > 240 {
		frameRate = 240
	}
	return &Loop{
		opts:     buildOptions(opts),
		interval: time.Second / time.Duration(frameRate),
		wake:     make(chan struct{}, 1),
	}
}

func (l *Loop) Interval() time.Duration { return l.interval }

// Schedule queues fn to run on the loop. Safe from any goroutine; tasks run
// in the order they were scheduled.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending drains the queue, including tasks scheduled by the tasks it
// runs, and reports how many ran. Call only from the loop goroutine.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			break
		}
		for _, fn := range batch {
			fn()
		}
		n += len(batch)
	}
	if n > 0 {
		l.opts.metrics.ObserveTasks(n)
	}
	return n
}

// Run drains tasks as they arrive and calls frame once per interval until
// ctx ends.
func (l *Loop) Run(ctx context.Context, frame func(now time.Time)) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.RunPending()
			return ctx.Err()
		case <-l.wake:
			l.RunPending()
		case now := <-ticker.C:
			l.RunPending()
			if frame != nil {
				start := time.Now()
				frame(now)
				l.opts.metrics.ObserveFrame(time.Since(start).Seconds())
			}
		}
	}
}
