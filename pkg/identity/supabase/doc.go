// Package supabase implements identity.Provider against the Supabase auth
// (GoTrue) REST API.
//
// Password sign-in, refresh, signup, logout and password recovery go through
// the public endpoints with the project's anon key. User lookups, updates and
// deletes use the admin endpoints with the service role key. Access tokens are
// verified locally as HS256 JWTs signed with the project's JWT secret; the
// audience claim is not checked.
//
// Required settings: api_url, jwt_secret, public_key, secret_key.
package supabase
