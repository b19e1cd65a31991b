// ABOUTME: HTTP surface: login, tenant administration, and store routing middleware
// ABOUTME: Request handlers receive their tenant's handle resolved through the cache

package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wrenchworks/wrenchd/internal/auth"
	"github.com/wrenchworks/wrenchd/internal/lifecycle"
	"github.com/wrenchworks/wrenchd/internal/store"
)

type ctxKey int

const (
	ctxSession ctxKey = iota
	ctxHandle
)

func (p *Platform) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", p.handleHealth)
	r.Get("/health/ready", p.handleReady)
	if p.cfg.Metrics.Enabled {
		r.Handle(p.cfg.Metrics.Path, p.metrics.Handler())
	}

	r.Post("/api/login", p.handleLogin)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(p.requireSession)

		r.Get("/api/me", p.handleMe)

		// Tenant-scoped routes: the session's store identifier is resolved
		// through the cache before the handler runs.
		r.Group(func(r chi.Router) {
			r.Use(p.withTenantStore)
			r.Get("/api/store/ping", p.handleStorePing)
			r.Get("/api/modules", p.handleModules)

			r.Group(func(r chi.Router) {
				r.Use(p.requireModule("work_orders"))
				r.Get("/api/work-orders", p.handleListWorkOrders)
			})
		})

		// Platform administration.
		r.Group(func(r chi.Router) {
			r.Use(p.requirePlatformAdmin)

			r.Get("/api/tenants", p.handleListTenants)
			r.Post("/api/tenants", p.handleCreateTenant)
			r.Get("/api/tenants/{id}", p.handleGetTenant)
			r.Post("/api/tenants/{id}/suspend", p.handleSuspendTenant)
			r.Post("/api/tenants/{id}/activate", p.handleActivateTenant)
			r.Put("/api/tenants/{id}/license", p.handleUpdateLicense)
			r.Put("/api/tenants/{id}/modules", p.handleUpdateModules)
			r.Delete("/api/tenants/{id}", p.handleDeleteTenant)
			r.Get("/api/tenants/{id}/audit", p.handleTenantAudit)
			r.Post("/api/users", p.handleCreateUser)
		})
	})

	return r
}

// requireSession parses the bearer token and stashes the session.
func (p *Platform) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		session, err := p.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxSession, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePlatformAdmin restricts a route to sessions not bound to a tenant.
func (p *Platform) requirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFrom(r.Context())
		if session.TenantID != "" {
			writeError(w, http.StatusForbidden, "platform admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireModule blocks a tenant route when the module is outside the
// tenant's allow-list. An empty allow-list enables everything.
func (p *Platform) requireModule(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r.Context())
			if err := p.lifecycle.RequireModule(r.Context(), session.TenantID, module); err != nil {
				if errors.Is(err, lifecycle.ErrModuleDisabled) {
					writeError(w, http.StatusForbidden, "module disabled")
					return
				}
				p.logger.Error("checking module access", "module", module, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withTenantStore resolves the session's store identifier to an open handle
// and stashes it for the handler. This is the routing layer from the
// session's point of view: handlers below never choose a store themselves.
func (p *Platform) withTenantStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFrom(r.Context())
		if session.StoreID == "" {
			writeError(w, http.StatusForbidden, "no tenant store bound to session")
			return
		}

		h, err := p.StoreHandle(r.Context(), session.StoreID)
		if err != nil {
			p.logger.Error("resolving tenant store", "store_id", session.StoreID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), ctxHandle, h)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) auth.Session {
	s, _ := ctx.Value(ctxSession).(auth.Session)
	return s
}

func handleFrom(ctx context.Context) *store.Handle {
	h, _ := ctx.Value(ctxHandle).(*store.Handle)
	return h
}

func (p *Platform) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (p *Platform) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":    true,
		"degraded": p.Degraded(),
	})
}

func (p *Platform) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, session, err := p.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrLoginFailed) {
			// One shape for every rejection: bad password, unknown domain,
			// deleted or suspended tenant, expired license.
			writeError(w, http.StatusUnauthorized, "login failed")
			return
		}
		p.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"user_id":   session.UserID,
		"tenant_id": session.TenantID,
	})
}

func (p *Platform) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   session.UserID,
		"tenant_id": session.TenantID,
		"store_id":  session.StoreID,
	})
}

// handleStorePing exercises the routed handle with a trivial query.
func (p *Platform) handleStorePing(w http.ResponseWriter, r *http.Request) {
	h := handleFrom(r.Context())

	var one int
	if err := h.QueryRow(r.Context(), "SELECT 1").Scan(&one); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleModules reports the session tenant's module allow-list.
func (p *Platform) handleModules(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	tenant, err := p.admin.GetTenant(r.Context(), session.TenantID)
	if err != nil {
		p.logger.Error("getting tenant modules", "tenant", session.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled_modules": tenant.EnabledModules,
		"all_enabled":     len(tenant.EnabledModules) == 0,
	})
}

type workOrderResponse struct {
	ID       string  `json:"id"`
	Number   int64   `json:"number"`
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Priority string  `json:"priority"`
	Assignee *string `json:"assignee,omitempty"`
}

func (p *Platform) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	h := handleFrom(r.Context())

	rows, err := h.Query(r.Context(), `
		SELECT id, number, title, status, priority, assignee
		FROM work_orders
		ORDER BY number
		LIMIT 200`)
	if err != nil {
		p.logger.Error("listing work orders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	out := make([]workOrderResponse, 0)
	for rows.Next() {
		var wo workOrderResponse
		if err := rows.Scan(&wo.ID, &wo.Number, &wo.Title, &wo.Status, &wo.Priority, &wo.Assignee); err != nil {
			p.logger.Error("scanning work order", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out = append(out, wo)
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("listing work orders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type tenantResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	StoreID        string     `json:"store_id"`
	Domain         string     `json:"domain"`
	Status         string     `json:"status"`
	LicenseStart   *time.Time `json:"license_start,omitempty"`
	LicenseEnd     *time.Time `json:"license_end,omitempty"`
	EnabledModules []string   `json:"enabled_modules,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toTenantResponse(t *store.Tenant) tenantResponse {
	return tenantResponse{
		ID:             t.ID,
		Name:           t.Name,
		StoreID:        t.StoreID,
		Domain:         t.Domain,
		Status:         string(t.Status),
		LicenseStart:   t.LicenseStart,
		LicenseEnd:     t.LicenseEnd,
		EnabledModules: t.EnabledModules,
		DeletedAt:      t.DeletedAt,
		CreatedAt:      t.CreatedAt,
	}
}

func (p *Platform) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := p.admin.ListTenants(r.Context())
	if err != nil {
		p.logger.Error("listing tenants", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toTenantResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Platform) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Domain  string `json:"domain"`
		StoreID string `json:"store_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "name and domain are required")
		return
	}
	if req.StoreID == "" {
		req.StoreID = uuid.New().String() + ".db"
	}

	tenant := &store.Tenant{
		Name:    req.Name,
		Domain:  req.Domain,
		StoreID: req.StoreID,
	}

	session := sessionFrom(r.Context())
	if err := p.lifecycle.Provision(r.Context(), session.UserID, tenant); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateDomain), errors.Is(err, store.ErrDuplicateStoreID):
			writeError(w, http.StatusConflict, err.Error())
		default:
			p.logger.Error("creating tenant", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (p *Platform) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := p.admin.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		p.logger.Error("getting tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (p *Platform) handleSuspendTenant(w http.ResponseWriter, r *http.Request) {
	p.tenantAction(w, r, p.lifecycle.Suspend)
}

func (p *Platform) handleActivateTenant(w http.ResponseWriter, r *http.Request) {
	p.tenantAction(w, r, p.lifecycle.Activate)
}

func (p *Platform) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	p.tenantAction(w, r, p.lifecycle.SoftDelete)
}

func (p *Platform) tenantAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string, string) error) {
	session := sessionFrom(r.Context())
	err := action(r.Context(), session.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		p.logger.Error("tenant action", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleUpdateLicense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseStart *time.Time `json:"license_start"`
		LicenseEnd   *time.Time `json:"license_end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := sessionFrom(r.Context())
	err := p.lifecycle.UpdateLicense(r.Context(), session.UserID, chi.URLParam(r, "id"),
		req.LicenseStart, req.LicenseEnd)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		p.logger.Error("updating license", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleUpdateModules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnabledModules []string `json:"enabled_modules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := p.admin.UpdateTenantModules(r.Context(), chi.URLParam(r, "id"), req.EnabledModules)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		p.logger.Error("updating modules", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleTenantAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := p.admin.ListAuditByTarget(r.Context(), "tenant", chi.URLParam(r, "id"), 100)
	if err != nil {
		p.logger.Error("listing audit entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (p *Platform) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string  `json:"email"`
		Password    string  `json:"password"`
		DisplayName string  `json:"display_name"`
		TenantID    *string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if req.TenantID != nil {
		if _, err := p.admin.GetTenant(r.Context(), *req.TenantID); err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				writeError(w, http.StatusNotFound, "tenant not found")
				return
			}
			p.logger.Error("checking tenant for new user", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		p.logger.Error("hashing password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := &store.PlatformUser{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		TenantID:     req.TenantID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := p.admin.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already exists")
			return
		}
		p.logger.Error("creating user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	session := sessionFrom(r.Context())
	if err := p.admin.AppendAudit(r.Context(), &store.AuditEntry{
		ActorID:    session.UserID,
		Action:     store.AuditCreateUser,
		TargetType: "user",
		TargetID:   user.ID,
	}); err != nil {
		p.logger.Error("appending audit entry", "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": user.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
