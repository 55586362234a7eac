// Package notify carries document change notifications from the content
// store to the indexer over Redis pub/sub.
//
// A content store publishes an Event whenever a document is saved or deleted:
//
//	pub := notify.NewPublisher(client, notify.DefaultChannel)
//	pub.DocumentSaved(ctx, 42, false)
//
// and the search server applies them in order:
//
//	listener := notify.NewListener(client, indexer, notify.WithLogger(logger))
//	go listener.Run(ctx)
package notify
