// Package identity defines the contract between gatekeeper and external
// identity providers.
//
// # Providers
//
// A Provider verifies credentials, issues and refreshes tokens, and manages
// provider-side user records. Concrete adapters live in subpackages:
//
//   - supabase: GoTrue REST API with local HS256 token verification
//   - oidc: any OpenID Connect issuer supporting the password grant
//
// Adapters translate every provider failure into an apperr kind so callers
// never see transport errors.
//
// # Registry
//
// The Registry maps names to factories. It is populated at startup and then
// only read. Asking for a name that was never registered returns an
// Unconfigured provider whose operations all fail with
// KindUnsupportedProvider, so a misconfigured deployment fails closed:
//
//	reg := identity.NewRegistry(logger)
//	reg.Register("supabase", supabase.Factory)
//	p, err := reg.Create(ctx, identity.ProviderConfig{Name: "supabase", Settings: s})
//
// # Instrumentation
//
// Instrument wraps a provider so each call gets an OpenTelemetry span and a
// duration observation.
package identity
