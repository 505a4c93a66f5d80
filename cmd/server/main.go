package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"biblioteca/internal/authz"
	jwttoken "biblioteca/internal/jwt_token"
	"biblioteca/internal/library"
	"biblioteca/internal/platform/config"
	"biblioteca/internal/platform/httpserver"
	"biblioteca/internal/platform/logger"
	"biblioteca/internal/platform/metrics"
	"biblioteca/internal/ratelimit"
	ratelimitmw "biblioteca/internal/ratelimit/middleware"
	httptransport "biblioteca/internal/transport/http"
	"biblioteca/pkg/platform/httputil"
	"biblioteca/pkg/platform/middleware/admin"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise infrastructure", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	svc := buildServices(cfg, infra, log)
	gate := authz.NewGate(authz.WithLogger(log), authz.WithAuditPublisher(infra.publisher))
	lib := library.New(gate, svc.accounts, svc.catalog, svc.lending, svc.reporting, infra.publisher)

	httpMetrics := metrics.New(nil)
	loginLimiter := ratelimitmw.New(
		ratelimit.NewKeyedLimiter(cfg.LoginRate.PerMinute, cfg.LoginRate.Burst),
		log,
		ratelimitmw.WithRecorder(httpMetrics),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Library:      lib,
		Gate:         gate,
		Tokens:       jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.TokenTTL),
		Accounts:     svc.accounts,
		Logger:       log,
		Metrics:      httpMetrics,
		LoginLimiter: loginLimiter,
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := infra.Health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Group(func(ops chi.Router) {
		ops.Use(admin.RequireAdminToken(cfg.MetricsToken, log))
		ops.Handle("/metrics", promhttp.Handler())
	})

	srv := httpserver.New(cfg.Addr, router, log)
	go func() {
		log.Info("starting biblioteca", "addr", cfg.Addr, "storage", infra.kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
