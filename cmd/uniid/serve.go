package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"uniid/internal/identity/handler"
	identityMetrics "uniid/internal/identity/metrics"
	"uniid/internal/identity/service"
	"uniid/internal/identity/sweep"
	"uniid/internal/platform/config"
	"uniid/internal/platform/httpserver"
	"uniid/internal/platform/logger"
	"uniid/internal/platform/metrics"
	"uniid/internal/platform/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg *config.Server) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the archive sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides UNIID_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Server) error {
	log := logger.New(cfg.LogFormat)
	reg := metrics.NewRegistry()
	m := identityMetrics.New(reg)

	deps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	svc := service.New(deps.store, deps.tx, deps.sequence,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(deps.notifier),
		service.WithNotifyTimeout(cfg.Notify.Timeout),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Get("/healthz", healthz(deps))
	r.Handle("/metrics", metrics.Handler(reg))
	handler.New(svc, log, cfg.AdminAPIToken).Register(r)

	sweeper := sweep.New(deps.counter, sweep.WithLogger(log), sweep.WithMetrics(m))
	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting uniid", "addr", cfg.Addr, "store", deps.kind)
		return httpserver.Run(gctx, srv, nil, shutdownTimeout)
	})
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.SweepSchedule)
	})
	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if drainErr := svc.Drain(drainCtx); drainErr != nil {
		log.WarnContext(ctx, "pending notifications abandoned", "error", drainErr)
	}
	log.InfoContext(ctx, "uniid stopped")
	return err
}

func healthz(deps *dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}
}
