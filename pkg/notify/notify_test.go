package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/observability"
)

type call struct {
	action string
	id     int64
	force  bool
}

type fakeHandler struct {
	mu       sync.Mutex
	calls    []call
	failWith error
}

func (h *fakeHandler) DocumentModified(_ context.Context, id int64, force bool) (index.Action, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{ActionSaved, id, force})
	return index.ActionUpsert, h.failWith
}

func (h *fakeHandler) DocumentDeleted(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{ActionDeleted, id, false})
	return h.failWith
}

func (h *fakeHandler) snapshot() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

type notificationRecorder struct {
	observability.Recorder
	mu      sync.Mutex
	actions []string
	errs    int
}

func (r *notificationRecorder) RecordNotification(_ context.Context, action string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	if err != nil {
		r.errs++
	}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		valid bool
	}{
		{name: "saved", event: Event{DocumentID: 1, Action: ActionSaved}, valid: true},
		{name: "deleted", event: Event{DocumentID: 1, Action: ActionDeleted}, valid: true},
		{name: "forced save", event: Event{DocumentID: 9, Action: ActionSaved, Force: true}, valid: true},
		{name: "missing id", event: Event{Action: ActionSaved}},
		{name: "negative id", event: Event{DocumentID: -3, Action: ActionDeleted}},
		{name: "unknown action", event: Event{DocumentID: 1, Action: "trashed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedEvent)
			}
		})
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url://")
	assert.Error(t, err)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestListener_Handle(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		failWith  error
		calls     []call
		recorded  []string
		malformed bool
		wantErr   bool
	}{
		{
			name:     "saved",
			payload:  `{"document_id": 12, "action": "saved"}`,
			calls:    []call{{ActionSaved, 12, false}},
			recorded: []string{ActionSaved},
		},
		{
			name:     "forced save",
			payload:  `{"document_id": 12, "action": "saved", "force": true}`,
			calls:    []call{{ActionSaved, 12, true}},
			recorded: []string{ActionSaved},
		},
		{
			name:     "deleted",
			payload:  `{"document_id": 5, "action": "deleted"}`,
			calls:    []call{{ActionDeleted, 5, false}},
			recorded: []string{ActionDeleted},
		},
		{
			name:      "not json",
			payload:   `document 5 changed`,
			recorded:  []string{"malformed"},
			malformed: true,
			wantErr:   true,
		},
		{
			name:      "unknown action",
			payload:   `{"document_id": 5, "action": "archived"}`,
			recorded:  []string{"malformed"},
			malformed: true,
			wantErr:   true,
		},
		{
			name:     "indexer failure",
			payload:  `{"document_id": 7, "action": "saved"}`,
			failWith: errors.New("database is down"),
			calls:    []call{{ActionSaved, 7, false}},
			recorded: []string{ActionSaved},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &fakeHandler{failWith: tt.failWith}
			recorder := &notificationRecorder{Recorder: observability.NopRecorder()}
			l := NewListener(nil, handler, WithRecorder(recorder))

			err := l.Handle(context.Background(), tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformedEvent))
				if tt.failWith != nil {
					assert.ErrorIs(t, err, tt.failWith)
				}
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, handler.snapshot())
			assert.Equal(t, tt.recorded, recorder.actions)
		})
	}
}

func TestListener_RunReceivesPublishedEvents(t *testing.T) {
	mr, client := setupRedis(t)
	handler := &fakeHandler{}
	listener := NewListener(client, handler, WithChannel("content"))
	publisher := NewPublisher(client, "content")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("content")["content"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := publisher.DocumentSaved(ctx, 3, true)
	require.NoError(t, err)
	// dropped without stopping the listener
	mr.Publish("content", "{")
	_, err = publisher.DocumentDeleted(ctx, 4)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(handler.snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []call{{ActionSaved, 3, true}, {ActionDeleted, 4, false}}, handler.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestPublisher_Publish(t *testing.T) {
	_, client := setupRedis(t)
	publisher := NewPublisher(client, "")

	sub := client.Subscribe(context.Background(), DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	n, err := publisher.DocumentSaved(context.Background(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"document_id": 42, "action": "saved"}`, msg.Payload)

	_, err = publisher.Publish(context.Background(), Event{DocumentID: 42, Action: "moved"})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
