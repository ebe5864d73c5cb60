// Package audit records security-relevant events: logins, logouts, session
// invalidation, password resets and membership changes.
//
// # Loggers
//
//   - DBLogger: appends to the audit_logs table in PostgreSQL
//   - StructuredLogger: writes events through observability.Logger
//   - MultiLogger: fans out to several loggers
//   - MemoryLogger: in-memory, for tests
//   - NopLogger: discards everything
//
// # Usage
//
//	event := audit.NewAuthenticationEvent(ctx, audit.EventTypeAuthLogin,
//		&user.ID, user.Email, audit.EventStatusSuccess, "User logged in")
//	if err := logger.Log(ctx, event); err != nil {
//		log.WithError(err).Warn("Failed to write audit event")
//	}
//
// Callers treat audit failures as non-fatal. The request ID is taken from
// the context via observability.GetRequestID.
package audit
