package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/sitesearch/pkg/content"
	"github.com/platinummonkey/sitesearch/pkg/observability"
	"github.com/platinummonkey/sitesearch/pkg/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var indexerTracer = otel.Tracer("sitesearch/index/indexer")

// RowStore is the part of Store the Indexer writes through
type RowStore interface {
	EnsureSchema(ctx context.Context) (bool, error)
	CreateFullTextIndexes(ctx context.Context) error
	DropSchema(ctx context.Context) error
	Upsert(ctx context.Context, r *Row) error
	Delete(ctx context.Context, id int64) error
	DocumentIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
}

var _ RowStore = (*Store)(nil)

// RebuildReport summarizes a bulk pass over many documents
type RebuildReport struct {
	Indexed int
	Deleted int
	Skipped int
	Failed  int
}

// Total is the number of documents the pass looked at
func (r RebuildReport) Total() int {
	return r.Indexed + r.Deleted + r.Skipped + r.Failed
}

// Add accumulates other into r
func (r *RebuildReport) Add(other RebuildReport) {
	r.Indexed += other.Indexed
	r.Deleted += other.Deleted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Indexer keeps the search table in sync with the content store
type Indexer struct {
	store       RowStore
	contents    content.Store
	schema      schema.Provider
	projector   *Projector
	logger      *observability.Logger
	recorder    observability.Recorder
	concurrency int
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder observability.Recorder) Option {
	return func(idx *Indexer) {
		if recorder != nil {
			idx.recorder = recorder
		}
	}
}

// WithConcurrency bounds how many documents a rebuild processes at once
func WithConcurrency(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// NewIndexer creates an indexer writing rows derived from contents into store
func NewIndexer(store RowStore, contents content.Store, provider schema.Provider, opts ...Option) *Indexer {
	idx := &Indexer{
		store:       store,
		contents:    contents,
		schema:      provider,
		projector:   NewProjector(provider),
		logger:      observability.NopLogger(),
		recorder:    observability.NopRecorder(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// DocumentModified re-derives the row of one document after it changed.
// force indexes the document whatever its status. A document that no longer
// exists loses its row.
func (idx *Indexer) DocumentModified(ctx context.Context, id int64, force bool) (Action, error) {
	ctx, span := indexerTracer.Start(ctx, "DocumentModified",
		trace.WithAttributes(
			attribute.Int64("document_id", id),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	doc, err := idx.contents.GetDocument(ctx, id)
	if errors.Is(err, content.ErrDocumentNotFound) {
		if err := idx.apply(ctx, ActionDelete, id, nil); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete row")
			return ActionDelete, err
		}
		return ActionDelete, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load document")
		return ActionSkip, fmt.Errorf("failed to load document %d: %w", id, err)
	}

	terms, err := idx.contents.GetTaxonomyTerms(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load terms")
		return ActionSkip, fmt.Errorf("failed to load terms of document %d: %w", id, err)
	}

	projection := idx.projector.Project(doc, terms, force)
	span.SetAttributes(attribute.String("action", projection.Action.String()))
	if projection.Reason != "" {
		idx.logger.WithDocument(id).WithField("reason", projection.Reason).
			Debugf("Document %s", projection.Action)
	}

	if err := idx.apply(ctx, projection.Action, id, projection.Row); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write row")
		return projection.Action, err
	}

	span.SetStatus(codes.Ok, "")
	return projection.Action, nil
}

// DocumentDeleted removes the row of a deleted document
func (idx *Indexer) DocumentDeleted(ctx context.Context, id int64) error {
	ctx, span := indexerTracer.Start(ctx, "DocumentDeleted",
		trace.WithAttributes(attribute.Int64("document_id", id)),
	)
	defer span.End()

	if err := idx.apply(ctx, ActionDelete, id, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete row")
		return err
	}
	return nil
}

func (idx *Indexer) apply(ctx context.Context, action Action, id int64, row *Row) error {
	var err error
	switch action {
	case ActionUpsert:
		err = idx.store.Upsert(ctx, row)
	case ActionDelete:
		err = idx.store.Delete(ctx, id)
	default:
		return nil
	}
	idx.recorder.RecordIndexOperation(ctx, action.String(), err)
	return err
}

// RebuildAll re-derives every row currently in the search table
func (idx *Indexer) RebuildAll(ctx context.Context, force bool) (RebuildReport, error) {
	ctx, span := indexerTracer.Start(ctx, "RebuildAll")
	defer span.End()

	ids, err := idx.store.DocumentIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list indexed documents")
		return RebuildReport{}, fmt.Errorf("failed to list indexed documents: %w", err)
	}

	report, err := idx.rebuild(ctx, ids, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild interrupted")
		return report, err
	}
	idx.recordRows(ctx)
	return report, nil
}

// RebuildAllFromScratch indexes every published document of every
// configured type
func (idx *Indexer) RebuildAllFromScratch(ctx context.Context) (RebuildReport, error) {
	ctx, span := indexerTracer.Start(ctx, "RebuildAllFromScratch")
	defer span.End()

	ids, err := idx.contents.ListDocumentIDs(ctx, idx.schema.Types(), content.StatusPublished)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list documents")
		return RebuildReport{}, fmt.Errorf("failed to list published documents: %w", err)
	}
	span.SetAttributes(attribute.Int("documents", len(ids)))

	report, err := idx.rebuild(ctx, ids, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild interrupted")
		return report, err
	}
	idx.recordRows(ctx)
	return report, nil
}

// rebuild runs DocumentModified over ids. Failures are logged and counted;
// only cancellation stops the pass.
func (idx *Indexer) rebuild(ctx context.Context, ids []int64, force bool) (RebuildReport, error) {
	var (
		mu     sync.Mutex
		report RebuildReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			action, err := idx.DocumentModified(gctx, id, force)
			outcome := observability.OutcomeSkipped
			switch {
			case err != nil:
				outcome = observability.OutcomeFailed
				idx.logger.WithDocument(id).WithError(err).Warn("Skipping document during rebuild")
			case action == ActionUpsert:
				outcome = observability.OutcomeIndexed
			case action == ActionDelete:
				outcome = observability.OutcomeDeleted
			}
			idx.recorder.RecordRebuildDocument(gctx, outcome)

			mu.Lock()
			switch outcome {
			case observability.OutcomeIndexed:
				report.Indexed++
			case observability.OutcomeDeleted:
				report.Deleted++
			case observability.OutcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	idx.logger.WithFields(map[string]interface{}{
		"indexed": report.Indexed,
		"deleted": report.Deleted,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("Rebuild complete")
	return report, nil
}

func (idx *Indexer) recordRows(ctx context.Context) {
	rows, err := idx.store.Count(ctx)
	if err != nil {
		idx.logger.WithError(err).Warn("Failed to count index rows")
		return
	}
	idx.recorder.RecordIndexRows(ctx, rows)
}

// Install creates the search table. A new table is loaded from scratch before
// its full-text indexes are built; an existing one only gets missing indexes.
// The report is nil when the table already existed.
func (idx *Indexer) Install(ctx context.Context) (*RebuildReport, error) {
	ctx, span := indexerTracer.Start(ctx, "Install")
	defer span.End()

	created, err := idx.store.EnsureSchema(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create table")
		return nil, fmt.Errorf("failed to create search table: %w", err)
	}

	var report *RebuildReport
	if created {
		idx.logger.Info("Search table created, loading documents")
		r, err := idx.RebuildAllFromScratch(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "initial load failed")
			return &r, fmt.Errorf("failed to load search table: %w", err)
		}
		report = &r
	}

	if err := idx.store.CreateFullTextIndexes(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create indexes")
		return report, fmt.Errorf("failed to create full-text indexes: %w", err)
	}

	span.SetAttributes(attribute.Bool("created", created))
	return report, nil
}

// Uninstall drops the search table
func (idx *Indexer) Uninstall(ctx context.Context) error {
	ctx, span := indexerTracer.Start(ctx, "Uninstall")
	defer span.End()

	if err := idx.store.DropSchema(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to drop table")
		return fmt.Errorf("failed to drop search table: %w", err)
	}
	idx.logger.Info("Search table dropped")
	return nil
}

// Regenerate optionally loads every published document first, then
// re-derives every indexed row so stale rows pick up status changes.
func (idx *Indexer) Regenerate(ctx context.Context, fromScratch bool) (RebuildReport, error) {
	ctx, span := indexerTracer.Start(ctx, "Regenerate",
		trace.WithAttributes(attribute.Bool("from_scratch", fromScratch)),
	)
	defer span.End()

	var total RebuildReport
	if fromScratch {
		report, err := idx.RebuildAllFromScratch(ctx)
		total.Add(report)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "from scratch rebuild failed")
			return total, err
		}
	}

	report, err := idx.RebuildAll(ctx, false)
	total.Add(report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild failed")
		return total, err
	}
	return total, nil
}
