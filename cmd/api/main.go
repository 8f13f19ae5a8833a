package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/visa-desk/internal/adapters/http"
	"github.com/kirillkom/visa-desk/internal/bootstrap"
	"github.com/kirillkom/visa-desk/internal/config"
	"github.com/kirillkom/visa-desk/internal/infrastructure/auth"
	"github.com/kirillkom/visa-desk/internal/observability/logging"
	"github.com/kirillkom/visa-desk/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", err)
	}
	cfg := config.Load()
	logger := logging.Install(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, 0)
	if err != nil {
		logger.Error("auth_init_failed", "error", err)
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:     serviceName,
		HTTPMetrics: httpMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Submitter: app.SubmitUC,
		Workflow:  app.WorkflowUC,
		Documents: app.DocumentUC,
		Reader:    app.QueryUC,
		Verifier:  verifier,
		Metrics:   httpMetrics,
		Files:     app.Storage,
	}).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
