package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/app"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

var version = "dev"

var (
	purgeOnce   = flag.Bool("purge-once", false, "Purge expired sessions once and exit")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := setupLogger(cfg.Observability.LogLevel)
	log.WithFields(logrus.Fields{
		"version":  version,
		"store":    cfg.Database.Kind,
		"provider": cfg.Provider.Name,
	}).Info("Starting gatekeeper")

	if err := run(cfg, log); err != nil {
		log.Fatalf("Gatekeeper stopped with error: %v", err)
	}
	log.Info("Gatekeeper stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a, err := app.New(ctx, cfg, logger, app.Options{Version: version})
	if err != nil {
		if otelProviders != nil {
			_ = otelProviders.Shutdown(ctx)
		}
		return err
	}

	if *purgeOnce {
		defer a.Close()
		log.Info("Running one-off session purge")
		return a.PurgeSessions(ctx)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	// hooks run in reverse: the server stops first, the store last
	shutdown.Register("app", func(context.Context) error { return a.Close() })
	if otelProviders != nil {
		shutdown.Register("otel", otelProviders.Shutdown)
	}

	scheduler, err := a.NewScheduler()
	if err != nil {
		_ = shutdown.Shutdown(ctx)
		return err
	}
	scheduler.Start()
	shutdown.Register("scheduler", scheduler.Stop)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdown.RegisterServer("health_server", server)

	serverErr := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(logger, "health_server")
		log.WithField("addr", server.Addr).Info("Health and metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-serverErr:
			log.WithError(err).Error("Health server failed")
			cancel()
		case <-sigCtx.Done():
		}
	}()

	return shutdown.WaitForSignal(sigCtx)
}

func setupLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level.String())
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}
