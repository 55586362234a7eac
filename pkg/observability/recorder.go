package observability

import (
	"context"
	"time"
)

// Rebuild outcomes
const (
	OutcomeIndexed = "indexed"
	OutcomeDeleted = "deleted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder receives domain measurements from the search and index packages.
// Metrics (Prometheus) and OTelMetrics both implement it.
type Recorder interface {
	RecordSearch(ctx context.Context, operation, documentType string, duration time.Duration, results int, err error)
	RecordIndexOperation(ctx context.Context, action string, err error)
	RecordRebuildDocument(ctx context.Context, outcome string)
	RecordNotification(ctx context.Context, action string, err error)
	RecordIndexRows(ctx context.Context, rows int)
}

type nopRecorder struct{}

// NopRecorder returns a Recorder that drops everything
func NopRecorder() Recorder {
	return nopRecorder{}
}

func (nopRecorder) RecordSearch(context.Context, string, string, time.Duration, int, error) {}
func (nopRecorder) RecordIndexOperation(context.Context, string, error)                     {}
func (nopRecorder) RecordRebuildDocument(context.Context, string)                           {}
func (nopRecorder) RecordNotification(context.Context, string, error)                       {}
func (nopRecorder) RecordIndexRows(context.Context, int)                                    {}

// MultiRecorder fans every measurement out to several recorders
type MultiRecorder []Recorder

// NewMultiRecorder drops nil recorders
func NewMultiRecorder(recorders ...Recorder) MultiRecorder {
	out := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m MultiRecorder) RecordSearch(ctx context.Context, operation, documentType string, duration time.Duration, results int, err error) {
	for _, r := range m {
		r.RecordSearch(ctx, operation, documentType, duration, results, err)
	}
}

func (m MultiRecorder) RecordIndexOperation(ctx context.Context, action string, err error) {
	for _, r := range m {
		r.RecordIndexOperation(ctx, action, err)
	}
}

func (m MultiRecorder) RecordRebuildDocument(ctx context.Context, outcome string) {
	for _, r := range m {
		r.RecordRebuildDocument(ctx, outcome)
	}
}

func (m MultiRecorder) RecordNotification(ctx context.Context, action string, err error) {
	for _, r := range m {
		r.RecordNotification(ctx, action, err)
	}
}

func (m MultiRecorder) RecordIndexRows(ctx context.Context, rows int) {
	for _, r := range m {
		r.RecordIndexRows(ctx, rows)
	}
}
