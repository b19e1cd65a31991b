// ABOUTME: Login path: credential check behind the tenant lifecycle gate
// ABOUTME: Every rejection surfaces one generic error to prevent enumeration

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/wrenchworks/wrenchd/internal/lifecycle"
	"github.com/wrenchworks/wrenchd/internal/store"
)

// ErrLoginFailed is the single error surfaced for every login rejection:
// unknown user, wrong password, unknown domain, deleted tenant, expired
// license, or suspension. The specific cause is logged server-side only.
var ErrLoginFailed = errors.New("login failed")

// LoginMetrics receives login outcome counters.
type LoginMetrics interface {
	LoginSucceeded()
	LoginRejected(reason string)
}

// Authenticator verifies credentials and issues session tokens bound to the
// caller's store.
type Authenticator struct {
	admin     *store.AdminStore
	lifecycle *lifecycle.Manager
	tokens    *TokenCodec
	logger    *slog.Logger
	metrics   LoginMetrics
}

// NewAuthenticator wires the login path.
func NewAuthenticator(admin *store.AdminStore, lc *lifecycle.Manager, tokens *TokenCodec, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		admin:     admin,
		lifecycle: lc,
		tokens:    tokens,
		logger:    logger.With("component", "auth"),
	}
}

// SetMetrics attaches a metrics sink. Call before serving traffic.
func (a *Authenticator) SetMetrics(m LoginMetrics) {
	a.metrics = m
}

// Login authenticates an email/password pair. For tenant users the
// lifecycle gate runs before the password check and the session binds to
// the tenant's store identifier; platform administrators bypass tenant
// resolution and bind to the admin store. All failures return
// ErrLoginFailed.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *Session, error) {
	user, err := a.admin.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison so a missing user costs the same as a
			// wrong password.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
				[]byte(password))
			return a.reject("unknown user", email)
		}
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	session := Session{UserID: user.ID}

	if user.TenantID != nil {
		tenant, err := a.lifecycle.Authorize(ctx, email)
		if err != nil {
			switch {
			case errors.Is(err, lifecycle.ErrTenantUnavailable):
				return a.reject("tenant unavailable", email)
			case errors.Is(err, lifecycle.ErrLicenseExpired):
				return a.reject("license expired", email)
			case errors.Is(err, lifecycle.ErrTenantSuspended):
				return a.reject("tenant suspended", email)
			}
			return "", nil, fmt.Errorf("authorizing tenant: %w", err)
		}
		// The domain resolves the tenant, but the user row must agree:
		// a stale or mistargeted row never binds to another tenant's store.
		if tenant.ID != *user.TenantID {
			return a.reject("tenant mismatch", email)
		}
		session.TenantID = tenant.ID
		session.StoreID = tenant.StoreID
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return a.reject("bad password", email)
	}

	token, err := a.tokens.Issue(session)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}

	if a.metrics != nil {
		a.metrics.LoginSucceeded()
	}
	a.logger.Info("login succeeded", "user", user.ID, "store_id", session.StoreID)
	return token, &session, nil
}

// reject logs the real cause and returns the generic failure.
func (a *Authenticator) reject(reason, email string) (string, *Session, error) {
	if a.metrics != nil {
		a.metrics.LoginRejected(reason)
	}
	a.logger.Info("login rejected", "reason", reason, "email", email)
	return "", nil, ErrLoginFailed
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
