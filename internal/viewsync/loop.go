package viewsync

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("client loop stopped")

type Logger interface {
	Printf(format string, args ...any)
}

// Loop runs posted tasks one at a time on a single goroutine. User commands,
// inbound sync events and document loads all go through it, so the engine
// never sees two of them at once.
type Loop struct {
	tasks   chan func()
	stopped chan struct{}
	once    sync.Once
}

func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks:   make(chan func(), buffer),
		stopped: make(chan struct{}),
	}
}

// Post queues task and reports whether the loop accepted it.
func (l *Loop) Post(task func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case <-l.stopped:
		return false
	case l.tasks <- task:
		return true
	}
}

// Do runs task on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		task()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is done. Tasks still queued at that point are
// discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-l.tasks:
			task()
		}
	}
}

func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
