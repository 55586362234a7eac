package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Publisher announces document changes to listeners
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a publisher on channel (DefaultChannel when empty)
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Publish sends one event. It returns the number of listeners that got it.
func (p *Publisher) Publish(ctx context.Context, event Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish failed: %w", err)
	}
	return n, nil
}

// DocumentSaved announces a created or updated document
func (p *Publisher) DocumentSaved(ctx context.Context, id int64, force bool) (int64, error) {
	return p.Publish(ctx, Event{DocumentID: id, Action: ActionSaved, Force: force})
}

// DocumentDeleted announces a permanently deleted document
func (p *Publisher) DocumentDeleted(ctx context.Context, id int64) (int64, error) {
	return p.Publish(ctx, Event{DocumentID: id, Action: ActionDeleted})
}
