// Package platform wires the wrenchd process together: bootstrap, the HTTP
// surface, and the store routing middleware.
//
// # Bootstrap
//
// New opens and migrates the admin store, registers the default tenant on
// first run, then opens every registered tenant store so each one is
// migrated to the current schema before the server accepts traffic. A
// failure against the admin store aborts startup; a failure against a
// single tenant store only marks that store degraded, visible on
// /health/ready, and is retried on the tenant's next request.
//
// # Store Routing
//
// A verified session carries the store identifier it is bound to. The
// withTenantStore middleware resolves that identifier through the handle
// cache and hands the open handle to the request; handlers never choose a
// store themselves, and the admin store is not reachable through this path.
package platform
