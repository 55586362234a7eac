package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRecorder struct {
	searches      int
	operations    int
	rebuilds      []string
	notifications int
	rows          int
}

func (c *countingRecorder) RecordSearch(context.Context, string, string, time.Duration, int, error) {
	c.searches++
}

func (c *countingRecorder) RecordIndexOperation(context.Context, string, error) {
	c.operations++
}

func (c *countingRecorder) RecordRebuildDocument(_ context.Context, outcome string) {
	c.rebuilds = append(c.rebuilds, outcome)
}

func (c *countingRecorder) RecordNotification(context.Context, string, error) {
	c.notifications++
}

func (c *countingRecorder) RecordIndexRows(_ context.Context, rows int) {
	c.rows = rows
}

func TestMultiRecorder(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	multi := NewMultiRecorder(a, nil, b)
	assert.Len(t, multi, 2)

	ctx := context.Background()
	multi.RecordSearch(ctx, "search", "page", time.Millisecond, 1, nil)
	multi.RecordIndexOperation(ctx, "upsert", errors.New("x"))
	multi.RecordRebuildDocument(ctx, OutcomeDeleted)
	multi.RecordNotification(ctx, "modified", nil)
	multi.RecordIndexRows(ctx, 5)

	for _, r := range []*countingRecorder{a, b} {
		assert.Equal(t, 1, r.searches)
		assert.Equal(t, 1, r.operations)
		assert.Equal(t, []string{OutcomeDeleted}, r.rebuilds)
		assert.Equal(t, 1, r.notifications)
		assert.Equal(t, 5, r.rows)
	}
}

func TestNopRecorder(t *testing.T) {
	r := NopRecorder()
	assert.NotPanics(t, func() {
		r.RecordSearch(context.Background(), "search", "", 0, 0, nil)
		r.RecordIndexRows(context.Background(), 1)
	})
}
