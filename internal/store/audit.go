// ABOUTME: Audit log entity and store methods for tenant lifecycle actions
// ABOUTME: Records who did what to which tenant; rows are never removed

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable admin action.
type AuditAction string

const (
	AuditCreateTenant   AuditAction = "create_tenant"
	AuditSuspendTenant  AuditAction = "suspend_tenant"
	AuditActivateTenant AuditAction = "activate_tenant"
	AuditUpdateLicense  AuditAction = "update_license"
	AuditUpdateModules  AuditAction = "update_modules"
	AuditDeleteTenant   AuditAction = "delete_tenant"
	AuditPurgeTenant    AuditAction = "purge_tenant"
	AuditCreateUser     AuditAction = "create_user"
)

// AuditEntry is one row of the append-only audit trail in the admin store.
// Entries survive tenant purge; history is permanent.
type AuditEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"` // empty for jobs
	Action     AuditAction    `json:"action"`
	TargetType string         `json:"target_type"` // "tenant" or "user"
	TargetID   string         `json:"target_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// AppendAudit appends an entry to the audit log, generating ID and
// timestamp if unset.
func (s *AdminStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detail any
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("encoding audit detail: %w", err)
		}
		detail = string(data)
	}

	var actor any
	if e.ActorID != "" {
		actor = e.ActorID
	}

	_, err := s.h.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, actor, string(e.Action), e.TargetType, e.TargetID,
		e.Timestamp.UTC().Format(time.RFC3339), detail)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditByTarget returns entries for one target, newest first.
func (s *AdminStore) ListAuditByTarget(ctx context.Context, targetType, targetID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.h.Query(ctx, `
		SELECT id, actor_id, action, target_type, target_id, ts, detail_json
		FROM audit_log
		WHERE target_type = ? AND target_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, targetType, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var actor, detail sql.NullString
		var action, ts string

		if err := rows.Scan(&e.ID, &actor, &action, &e.TargetType, &e.TargetID, &ts, &detail); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Action = AuditAction(action)
		if actor.Valid {
			e.ActorID = actor.String
		}
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("parsing audit detail: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
