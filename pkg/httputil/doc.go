// Package httputil provides the middleware wrapped around gatekeeper's
// health and metrics endpoints.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//	)(mux)
//
// RequestIDMiddleware stores the id with observability.WithRequestID, so log
// lines and audit events written while serving the request carry it.
package httputil
