// Package oidc implements identity.Provider for OpenID Connect issuers that
// support the resource owner password grant.
//
// The issuer is discovered from its well-known configuration. ID tokens are
// verified against the issuer's JWKS; opaque access tokens are checked via the
// userinfo endpoint. Logout revokes the access token when the issuer
// advertises a revocation endpoint.
//
// OIDC has no standard user administration or password recovery API, so those
// operations fail with KindUnsupportedProvider.
package oidc
