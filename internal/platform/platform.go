// ABOUTME: Bootstrap sequence and process-wide service object for wrenchd
// ABOUTME: Opens and migrates the admin store plus every tenant store before serving

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/wrenchworks/wrenchd/internal/auth"
	"github.com/wrenchworks/wrenchd/internal/config"
	"github.com/wrenchworks/wrenchd/internal/lifecycle"
	"github.com/wrenchworks/wrenchd/internal/metrics"
	"github.com/wrenchworks/wrenchd/internal/store"
)

// Platform is the process-wide service object: the admin store handle, the
// tenant store cache, and the services built on them. It is constructed
// once at startup and passed into every request-handling path; there is no
// module-level singleton.
type Platform struct {
	cfg       *config.Config
	logger    *slog.Logger
	admin     *store.AdminStore
	cache     *store.Cache
	lifecycle *lifecycle.Manager
	auth      *auth.Authenticator
	tokens    *auth.TokenCodec
	metrics   *metrics.Metrics

	mu       sync.Mutex
	degraded map[string]string // storeID -> bootstrap migration failure
}

// New runs the bootstrap sequence: open and migrate the admin store, then
// migrate every registered tenant store. The call blocks until every store
// has been brought to the current schema; the process must not accept
// traffic while a store could be observed mid-migration.
//
// An unrecognized failure against the admin store is fatal. A failure
// against one tenant store marks only that tenant degraded so one broken
// file does not keep the whole platform down.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Platform, error) {
	adminPath := filepath.Join(cfg.Data.Dir, cfg.Data.AdminStore)
	admin, err := store.NewAdminStore(ctx, adminPath)
	if err != nil {
		return nil, fmt.Errorf("opening admin store: %w", err)
	}

	cache := store.NewCache(cfg.Data.Dir, cfg.Data.AdminStore)

	p := &Platform{
		cfg:      cfg,
		logger:   logger,
		admin:    admin,
		cache:    cache,
		degraded: make(map[string]string),
	}

	lc := lifecycle.New(admin, cache, cfg.Data.DefaultTenantStore, cfg.RetentionWindow(), logger)
	p.lifecycle = lc

	tokens, err := auth.NewTokenCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		admin.Close()
		return nil, fmt.Errorf("creating token codec: %w", err)
	}
	p.tokens = tokens
	p.auth = auth.NewAuthenticator(admin, lc, tokens, logger)

	m := metrics.New(cache)
	p.metrics = m
	cache.SetMetrics(m)
	p.auth.SetMetrics(m)
	lc.SetMetrics(m)

	// Provisioning may already have opened tenant handles through the
	// cache, so a fatal bootstrap error closes those too, not just the
	// admin store.
	if err := p.ensureDefaultTenant(ctx); err != nil {
		p.Close()
		return nil, err
	}

	if err := p.migrateTenantStores(ctx); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// ensureDefaultTenant registers the bootstrap/demo tenant on first run so a
// fresh data directory is immediately usable.
func (p *Platform) ensureDefaultTenant(ctx context.Context) error {
	_, err := p.admin.GetTenantByStoreID(ctx, p.cfg.Data.DefaultTenantStore)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrTenantNotFound) {
		return fmt.Errorf("checking default tenant: %w", err)
	}

	tenant := &store.Tenant{
		Name:    "Default",
		StoreID: p.cfg.Data.DefaultTenantStore,
		Domain:  "default.localhost",
		Status:  store.TenantActive,
	}
	if err := p.lifecycle.Provision(ctx, "", tenant); err != nil {
		return fmt.Errorf("creating default tenant: %w", err)
	}
	p.logger.Info("created default tenant", "store_id", tenant.StoreID)
	return nil
}

// migrateTenantStores brings every registered, non-deleted tenant store to
// the current schema by opening it through the cache.
func (p *Platform) migrateTenantStores(ctx context.Context) error {
	tenants, err := p.admin.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	for _, t := range tenants {
		if t.Status == store.TenantDeleted {
			continue
		}
		if _, err := p.cache.Get(ctx, t.StoreID); err != nil {
			p.logger.Error("tenant store failed migration, marking degraded",
				"tenant", t.ID, "store_id", t.StoreID, "error", err)
			p.mu.Lock()
			p.degraded[t.StoreID] = err.Error()
			p.mu.Unlock()
			continue
		}
	}

	p.logger.Info("tenant stores migrated",
		"tenants", len(tenants), "open_handles", p.cache.Len(), "degraded", len(p.degraded))
	return nil
}

// StoreHandle resolves a store identifier to its open handle for the
// request path. A store that failed at bootstrap is retried here; success
// clears the degraded mark.
func (p *Platform) StoreHandle(ctx context.Context, storeID string) (*store.Handle, error) {
	h, err := p.cache.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	delete(p.degraded, storeID)
	p.mu.Unlock()
	return h, nil
}

// Degraded returns the store identifiers that failed their last migration
// attempt, for the readiness endpoint.
func (p *Platform) Degraded() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.degraded))
	for k, v := range p.degraded {
		out[k] = v
	}
	return out
}

// Lifecycle exposes the lifecycle manager for admin tooling.
func (p *Platform) Lifecycle() *lifecycle.Manager {
	return p.lifecycle
}

// Admin exposes the admin store for admin tooling.
func (p *Platform) Admin() *store.AdminStore {
	return p.admin
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully and closes every open store handle.
func (p *Platform) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    p.cfg.Server.HTTPAddr,
		Handler: p.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		p.logger.Info("http server listening", "addr", p.cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		p.Close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	p.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		p.logger.Warn("http shutdown", "error", err)
	}

	return p.Close()
}

// Close flushes and closes every open store handle, tenant stores first.
func (p *Platform) Close() error {
	var firstErr error
	if err := p.cache.CloseAll(); err != nil {
		firstErr = err
	}
	if err := p.admin.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
