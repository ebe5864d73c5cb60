// Package auth orchestrates authentication against an external identity
// provider while keeping sessions and users in the local store.
//
// # Flow
//
//	svc := auth.NewService(provider, store, orgs.NewAccessGuard(store), auth.Options{
//		Cache:   cache.NewLRUSessionCache(10000, cache.DefaultTTL),
//		Audit:   auditLogger,
//		Logger:  logger,
//		Metrics: metrics,
//	})
//
//	result, session, err := svc.AuthenticateUser(ctx, email, password, &orgID)
//	session, err = svc.ValidateSession(ctx, result.Tokens.AccessToken)
//	result, session, err = svc.RefreshSession(ctx, result.Tokens.RefreshToken)
//	err = svc.Logout(ctx, session)
//
// # Identity sync
//
// The first login of a provider identity creates a local user (or reuses the
// user with the same email) and an identity link. Later logins refresh the
// link's email and metadata and the user's last login time. Disabled or
// deleted local users cannot log in, whatever the provider says.
//
// # Sessions
//
//	active --expiry-------------> expired
//	active --logout-------------> revoked
//	active --provider rejects---> invalid
//
// Ended states are terminal; refresh rotates tokens and keeps the session
// active. ValidateSession asks the provider on every call. The optional
// session cache only saves the store read.
//
// # Errors
//
// Failures are *apperr.Error values: CredentialsInvalid, TokenInvalid,
// TokenExpired, SessionNotFound, OrganizationAccessDenied and UserNotFound.
// Password reset calls never reveal whether an address is registered.
package auth
