// Package auth provides login and session tokens for wrenchd.
//
// # Login Path
//
// Login verifies an email/password pair against the admin store. Tenant
// users pass through the lifecycle gate before the password check; platform
// administrators (tenant_id NULL) skip tenant resolution entirely.
//
// Every rejection — unknown user, wrong password, unregistered domain,
// deleted tenant, expired license, suspension — surfaces as the single
// ErrLoginFailed. The concrete reason is logged and counted server-side
// only. A lookup miss still burns a bcrypt comparison so response timing
// does not reveal whether the account exists.
//
// # Session Tokens
//
// Sessions are HS256 JWTs. Tenant sessions carry the tenant ID and the
// store identifier the session is bound to; the HTTP layer routes every
// tenant-scoped request through that identifier, so a token fully
// determines which store file a request can reach.
package auth
