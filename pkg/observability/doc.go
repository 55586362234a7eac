// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithDocument(42).WithError(err).Error("Failed to index document")
//
// # Metrics
//
// The search and index packages report through the Recorder interface. Both
// the Prometheus Metrics and OTelMetrics implement it; MultiRecorder feeds
// both at once:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	recorder := observability.NewMultiRecorder(metrics, otelMetrics)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version,
//		observability.DatabaseProbe(db, "sitewidesearch"),
//		observability.RedisProbe(redisClient),
//	)
//	checker.RegisterRoutes(router)
//
// # OpenTelemetry
//
//	telemetry, err := observability.InitOTel(ctx, cfg, logger)
//	defer telemetry.Shutdown(ctx)
package observability
