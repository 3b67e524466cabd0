package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs posted functions one at a time, in posting order, on the
// goroutine that called Run.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewLoop creates a loop with a queue of the given size.
func NewLoop(size int, logger *zap.Logger) *Loop {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger.Named("loop"),
	}
}

// Post enqueues fn, blocking while the queue is full. It returns false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Run drains the queue until ctx is cancelled. Functions still queued at
// that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.run(fn)
		}
	}
}

// Backlog reports how many posted functions are waiting to run.
func (l *Loop) Backlog() int {
	return len(l.queue)
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event handler panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
