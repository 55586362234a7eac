package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/observability"
)

// Handler applies change events to the index. *index.Indexer implements it.
type Handler interface {
	DocumentModified(ctx context.Context, id int64, force bool) (index.Action, error)
	DocumentDeleted(ctx context.Context, id int64) error
}

var _ Handler = (*index.Indexer)(nil)

// Listener subscribes to change events and applies them one at a time
type Listener struct {
	client   *redis.Client
	channel  string
	handler  Handler
	logger   *observability.Logger
	recorder observability.Recorder
}

// Option configures a Listener
type Option func(*Listener)

// WithChannel overrides DefaultChannel
func WithChannel(channel string) Option {
	return func(l *Listener) {
		if channel != "" {
			l.channel = channel
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder observability.Recorder) Option {
	return func(l *Listener) {
		if recorder != nil {
			l.recorder = recorder
		}
	}
}

// NewListener creates a listener dispatching to handler
func NewListener(client *redis.Client, handler Handler, opts ...Option) *Listener {
	l := &Listener{
		client:   client,
		channel:  DefaultChannel,
		handler:  handler,
		logger:   observability.NopLogger(),
		recorder: observability.NopRecorder(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes events until ctx is cancelled. It returns an error only when
// the subscription cannot be established.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.channel, err)
	}
	l.logger.WithField("channel", l.channel).Info("Listening for document changes")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := l.Handle(ctx, msg.Payload); err != nil {
				l.logger.WithField("payload", msg.Payload).WithError(err).Warn("Dropped document change event")
			}
		}
	}
}

// Handle decodes and applies one payload
func (l *Listener) Handle(ctx context.Context, payload string) error {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.recorder.RecordNotification(ctx, "malformed", err)
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := event.Validate(); err != nil {
		l.recorder.RecordNotification(ctx, "malformed", err)
		return err
	}

	logger := l.logger.WithDocument(event.DocumentID).WithField("action", event.Action)

	var err error
	switch event.Action {
	case ActionSaved:
		var action index.Action
		action, err = l.handler.DocumentModified(ctx, event.DocumentID, event.Force)
		if err == nil {
			logger.WithField("index_action", action.String()).Debug("Applied document change")
		}
	case ActionDeleted:
		err = l.handler.DocumentDeleted(ctx, event.DocumentID)
		if err == nil {
			logger.Debug("Removed deleted document")
		}
	}
	l.recorder.RecordNotification(ctx, event.Action, err)
	if err != nil {
		return fmt.Errorf("failed to apply %s event for document %d: %w", event.Action, event.DocumentID, err)
	}
	return nil
}
