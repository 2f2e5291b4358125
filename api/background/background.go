// Package background runs best-effort work that must outlive the request that
// started it and drains it on shutdown.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// taskTimeout bounds a single task once its request is gone.
const taskTimeout = 30 * time.Second

type Background struct {
	wg  sync.WaitGroup
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

// Go runs fn in its own goroutine. Errors and panics are logged, never
// returned.
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		log := b.log.WithField("task", name)
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("stack", string(debug.Stack())).Error(fmt.Sprintf("panic: %v", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.WithError(err).Warn("background task failed")
		}
	}()
}

// Shutdown waits for running tasks or gives up when ctx is done.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
