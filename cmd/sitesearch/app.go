package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/sitesearch/pkg/config"
	"github.com/platinummonkey/sitesearch/pkg/content"
	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/notify"
	"github.com/platinummonkey/sitesearch/pkg/observability"
	"github.com/platinummonkey/sitesearch/pkg/schema"
	"github.com/platinummonkey/sitesearch/pkg/search"
	"github.com/platinummonkey/sitesearch/pkg/storage/postgres"
)

// app wires the search components for one process
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	logger *observability.Logger

	otel     *observability.Telemetry
	registry *prometheus.Registry
	metrics  *observability.Metrics
	recorder observability.Recorder

	conns    *postgres.ConnectionManager
	redis    *redis.Client
	schema   *schema.Schema
	contents content.Store
	store    *index.Store
	indexer  *index.Indexer
	service  *search.Service
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		logger: observability.NewLogger(cfg.Observability.LogLevel, os.Stdout),
	}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	a.schema, err = schema.Load(cfg.Search.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	log.Debugf("Loaded schema %s with %d types", cfg.Search.SchemaFile, len(a.schema.Types()))

	if err := a.initObservability(ctx); err != nil {
		return nil, err
	}

	a.conns, err = postgres.NewConnectionManager(ctx, cfg.Database.ConnectionConfig(), a.logger)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		a.redis, err = notify.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
	}

	var contents content.Store = content.NewSQLStore(a.conns.Primary())
	if cfg.Search.HumanDates {
		contents = content.NewHumanizedStore(contents)
	}
	a.contents = contents

	a.store = index.NewStore(a.conns.Primary(), cfg.Search.Table, a.schema.SlotCount())
	a.indexer = index.NewIndexer(a.store, a.contents, a.schema,
		index.WithLogger(a.logger),
		index.WithRecorder(a.recorder),
		index.WithConcurrency(cfg.Search.RebuildConcurrency),
	)
	a.service = search.NewService(a.conns, a.contents, a.schema,
		search.WithTable(cfg.Search.Table),
		search.WithPerPage(cfg.Search.PerPage),
		search.WithImageSize(cfg.Search.ImageSize),
		search.WithLogger(a.logger),
		search.WithRecorder(a.recorder),
	)
	if err := a.service.Validate(); err != nil {
		return nil, fmt.Errorf("schema cannot be queried: %w", err)
	}
	return a, nil
}

func (a *app) initObservability(ctx context.Context) error {
	recorders := []observability.Recorder{}

	if a.cfg.Observability.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.metrics = observability.NewMetrics(a.registry)
		recorders = append(recorders, a.metrics)
	}

	telemetry, err := observability.InitOTel(ctx, a.cfg.Observability.OTel, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.otel = telemetry
	if telemetry != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		recorders = append(recorders, otelMetrics)
	}

	a.recorder = observability.NewMultiRecorder(recorders...)
	return nil
}

// publisher returns a change publisher, or an error when Redis is not configured
func (a *app) publisher() (*notify.Publisher, error) {
	if a.redis == nil {
		return nil, errors.New("SITESEARCH_REDIS_URL is required for --async")
	}
	return notify.NewPublisher(a.redis, a.cfg.Redis.Channel), nil
}

// Close releases connections and flushes telemetry
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
		a.redis = nil
	}
	if a.conns != nil {
		if err := a.conns.Close(); err != nil {
			errs = append(errs, err)
		}
		a.conns = nil
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.otel = nil
	}
	return errors.Join(errs...)
}
