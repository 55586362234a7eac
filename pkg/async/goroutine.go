package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/sitesearch/pkg/observability"
)

// SafeGo executes fn in a goroutine with a timeout, panic recovery and
// error logging. The returned channel is closed once fn has returned.
//
// Use this instead of bare `go func()` for background jobs such as an
// admin-triggered rebuild:
//
//	async.SafeGo(ctx, logger, time.Hour, "regenerate", func(ctx context.Context) error {
//	    _, err := indexer.Regenerate(ctx, true)
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	if logger == nil {
		logger = observability.NopLogger()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("PANIC in background task")
			}
		}()

		start := time.Now()
		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Error("Background task failed")
			return
		}
		logger.WithField("task", taskName).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("Background task finished")
	}()

	return done
}
