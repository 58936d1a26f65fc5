package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/internal/sandbox"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vetclinic sandbox backend",
		"env", cfg.Env,
		"port", cfg.SandboxPort,
		"seed", cfg.SandboxSeed,
		"envelope", cfg.SandboxEnvelope,
	)

	sb := sandbox.New(sandbox.Config{
		JWTSecret: cfg.SandboxJWTSecret,
		TokenTTL:  cfg.SandboxTokenTTL,
		Seed:      cfg.SandboxSeed,
		Clinics:   cfg.SandboxClinics,
		Customers: cfg.SandboxCustomers,
		OpenHour:  cfg.SandboxOpenHour,
		CloseHour: cfg.SandboxCloseHour,
		Envelope:  cfg.SandboxEnvelope,
	}, logger)

	r := chi.NewRouter()
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Mount("/", sb.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.SandboxPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
