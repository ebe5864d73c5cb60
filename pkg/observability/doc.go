// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stdout)
//	logger.WithField("session_id", id).Info("Session refreshed")
//
// Logger.WithContext adds the request ID and the active trace and span IDs.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordAuthAttempt(err)
//
// A nil *Metrics records nothing, so components accept it as optional.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("database", true, st.Ping)
//	checker.Register("session_cache", false, cache.Ping)
//	router := mux.NewRouter()
//	observability.RegisterHealthRoutes(router, checker)
//	observability.RegisterMetricsEndpoint(router, registry)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//
// # Shutdown
//
// ShutdownManager runs hooks in reverse registration order once a signal arrives.
package observability
