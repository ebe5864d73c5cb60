// Package apperr defines the error taxonomy shared by every gatekeeper package.
//
// Each failure carries a Kind from one of three families:
//
//   - authentication: credentials, tokens, sessions, providers, organization access
//   - membership: invitations, role changes, the minimum-one-owner rule
//   - general: not found, already exists, validation, conflict
//
// Callers branch on kinds with IsKind or errors.Is against a constructed value:
//
//	if apperr.IsKind(err, apperr.KindLastOwnerRemoval) { ... }
//	if errors.Is(err, apperr.SessionNotFound()) { ... }
//
// The core never produces transport status codes itself; HTTPStatus exists for
// an outer routing layer.
package apperr
