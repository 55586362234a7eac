// Package async runs background tasks with panic recovery, timeouts and
// structured error logging.
//
//	done := async.SafeGo(ctx, logger, time.Hour, "regenerate", func(ctx context.Context) error {
//		_, err := indexer.Regenerate(ctx, true)
//		return err
//	})
//	<-done
package async
