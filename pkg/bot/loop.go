// Package bot provides the single-threaded event loop every inbound
// action and timer callback runs on. Handlers never run concurrently:
// timers enqueue onto the same queue and run in turn.
package bot

import (
	"context"

	"go.uber.org/zap"
)

// Loop is a FIFO queue of handler closures drained by one goroutine.
type Loop struct {
	events chan func()
	log    *zap.Logger
}

// NewLoop creates a loop with the given queue depth.
func NewLoop(buffer int, log *zap.Logger) *Loop {
	return &Loop{
		events: make(chan func(), buffer),
		log:    log,
	}
}

// Submit enqueues a handler. It blocks when the queue is full, which
// back-pressures producers instead of dropping events.
func (l *Loop) Submit(fn func()) {
	l.events <- fn
}

// Run drains the queue until the context is canceled. Events submitted
// by a single producer run in submission order.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("event loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info("event loop stopped")
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}
