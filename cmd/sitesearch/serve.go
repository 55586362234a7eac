package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/sitesearch/pkg/httputil"
	"github.com/platinummonkey/sitesearch/pkg/notify"
	"github.com/platinummonkey/sitesearch/pkg/observability"
	"github.com/platinummonkey/sitesearch/pkg/search"
)

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search queries, apply change notifications and run scheduled rebuilds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, c.serve)
		},
	}
}

// routeLabel labels metrics with the route template instead of the raw path
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// newHandler builds the router. Metrics middleware runs inside the router so
// the matched route is known; request ids, logging and recovery wrap it.
func (c *cli) newHandler(a *app, handlers *search.Handlers) http.Handler {
	router := mux.NewRouter()
	if a.metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(a.metrics, routeLabel))
		router.Handle("/metrics", observability.MetricsHandler(a.registry)).Methods(http.MethodGet)
	}

	probes := []observability.Probe{observability.DatabaseProbe(a.conns.Primary(), a.store.Table())}
	if a.redis != nil {
		probes = append(probes, observability.RedisProbe(a.redis))
	}
	observability.NewHealthChecker(version, probes...).RegisterRoutes(router)
	handlers.RegisterRoutes(router)

	return httputil.Chain(
		httputil.RequestIDMiddleware(a.logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	)(router)
}

func (c *cli) serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handlers := search.NewHandlers(a.service, a.indexer, a.logger).
		WithRebuildTimeout(a.cfg.Search.RebuildTimeout)

	server := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(c.newHandler(a, handlers), "sitesearch"),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
	shutdown := observability.NewShutdownManager(a.logger, server, a.cfg.Server.ShutdownTimeout)

	// Background work stops before connections are closed by app.Close
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})

	if a.redis != nil {
		listener := notify.NewListener(a.redis, a.indexer,
			notify.WithChannel(a.cfg.Redis.Channel),
			notify.WithLogger(a.logger),
			notify.WithRecorder(a.recorder),
		)
		go func() {
			defer observability.RecoverPanic(a.logger, "change listener")
			if err := listener.Run(ctx); err != nil {
				c.log.Errorf("Change listener stopped: %v", err)
			}
		}()
	}

	if a.cfg.Search.RebuildSchedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(a.cfg.Search.RebuildSchedule, func() {
			if !handlers.StartRegenerate(ctx, a.logger.WithField("trigger", "schedule"), true) {
				c.log.Warn("Skipping scheduled rebuild: a rebuild is already running")
			}
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		c.log.Infof("Scheduled from-scratch rebuild: %s", a.cfg.Search.RebuildSchedule)

		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	a.conns.StartHealthCheckRoutine(ctx, 30*time.Second, a.metrics)

	go func() {
		c.log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Errorf("HTTP server failed: %v", err)
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}
