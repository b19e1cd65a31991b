// ABOUTME: Core types and interfaces for wrenchd persistence
// ABOUTME: Defines Tenant, PlatformUser structs and the registry/user interfaces

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrTenantNotFound is returned when no tenant matches the lookup key.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrDuplicateDomain is returned when creating a tenant whose email domain
// is already registered to another tenant.
var ErrDuplicateDomain = errors.New("domain already registered")

// ErrDuplicateStoreID is returned when creating a tenant whose store file
// name collides with an existing tenant.
var ErrDuplicateStoreID = errors.New("store id already registered")

// ErrDuplicateEmail is returned when creating a user with an email that
// already exists.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrStoreUnavailable is returned when a store file cannot be opened or
// migrated. The request fails but the cache stays consistent.
var ErrStoreUnavailable = errors.New("store unavailable")

// TenantStatus represents the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantTrial     TenantStatus = "trial"
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantExpired   TenantStatus = "expired"
	TenantDeleted   TenantStatus = "deleted"
)

// ValidTenantStatuses lists all stored tenant statuses. TenantExpired is
// accepted for admin tooling even though expiry is normally computed from
// the license window rather than stored.
var ValidTenantStatuses = []TenantStatus{
	TenantTrial,
	TenantActive,
	TenantSuspended,
	TenantExpired,
	TenantDeleted,
}

// Tenant represents one customer organization in the registry. Each tenant
// owns exactly one store file, addressed by StoreID.
type Tenant struct {
	ID             string
	Name           string
	StoreID        string // filename of the tenant's store, unique
	Domain         string // normalized email domain, unique
	Status         TenantStatus
	LicenseStart   *time.Time // nil = no lower bound
	LicenseEnd     *time.Time // nil = no upper bound
	EnabledModules []string   // empty = all modules enabled
	DeletedAt      *time.Time // set when status becomes deleted
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ModuleEnabled reports whether the given module code is active for the
// tenant. An empty allow-list means every module is enabled.
func (t *Tenant) ModuleEnabled(code string) bool {
	if len(t.EnabledModules) == 0 {
		return true
	}
	for _, m := range t.EnabledModules {
		if m == code {
			return true
		}
	}
	return false
}

// NormalizeDomain canonicalizes an email domain for registry lookups:
// surrounding whitespace is stripped and the result lowercased.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// DomainFromEmail extracts and normalizes the domain portion of an email
// address. Returns an empty string if the address has no domain.
func DomainFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeDomain(email[at+1:])
}

// PlatformUser is a login account in the admin store. TenantID is nil for
// platform administrators, who are scoped to the admin store only; tenant
// users carry the ID of the tenant their session binds to.
type PlatformUser struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt
	DisplayName  string
	TenantID     *string // nil = platform admin
	CreatedAt    time.Time
}

// Registry defines tenant registry operations against the admin store.
type Registry interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByDomain(ctx context.Context, domain string) (*Tenant, error)
	GetTenantByStoreID(ctx context.Context, storeID string) (*Tenant, error)
	ResolveByEmail(ctx context.Context, email string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error
	UpdateTenantLicense(ctx context.Context, id string, start, end *time.Time) error
	UpdateTenantModules(ctx context.Context, id string, modules []string) error
	SoftDeleteTenant(ctx context.Context, id string, at time.Time) error
}

// Users defines platform user operations against the admin store.
type Users interface {
	CreateUser(ctx context.Context, u *PlatformUser) error
	GetUser(ctx context.Context, id string) (*PlatformUser, error)
	GetUserByEmail(ctx context.Context, email string) (*PlatformUser, error)
	ListUsers(ctx context.Context) ([]*PlatformUser, error)
	CountUsers(ctx context.Context) (int, error)
	DeleteUsersByDomain(ctx context.Context, domain string) (int, error)
}
