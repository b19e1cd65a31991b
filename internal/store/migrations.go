// ABOUTME: Ordered migration units for the maintenance-management schema
// ABOUTME: Applied uniformly to the admin store and every tenant store

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrations returns the shared migration sequence. Every store — the admin
// store, every existing tenant store, and every newly provisioned one —
// receives this full sequence, so route handlers can assume one shape
// everywhere.
func Migrations() []Migration {
	return []Migration{
		{ID: 1, Name: "base schema", Apply: migrateBaseSchema},
		{ID: 2, Name: "work order parts and stock movements", Apply: migrateWorkOrderParts},
		{ID: 3, Name: "preventive maintenance schedules", Apply: migratePMSchedules},
		{ID: 4, Name: "meters and readings", Apply: migrateMeters},
		{ID: 5, Name: "vendors", Apply: migrateVendors},
		{ID: 6, Name: "tenant users", Apply: migrateTenantUsers},
		{ID: 7, Name: "equipment criticality", Apply: migrateEquipmentCriticality},
		{ID: 8, Name: "work order completion timestamps", Apply: migrateWorkOrderCompletion},
		{ID: 9, Name: "seed work order priorities", Apply: migrateSeedPriorities},
		{ID: 10, Name: "stock reorder thresholds", Apply: migrateStockReorder},
		{ID: 11, Name: "optional equipment on work orders", Apply: migrateOptionalEquipment},
		{ID: 12, Name: "backfill equipment codes", Apply: migrateBackfillEquipmentCodes},
		{ID: 13, Name: "attachments", Apply: migrateAttachments},
		{ID: 14, Name: "stock movement adjustment type", Apply: migrateMovementAdjustment},
		{ID: 15, Name: "work order assignee index", Apply: migrateWorkOrderAssigneeIndex},
		{ID: 16, Name: "meter reading source", Apply: migrateMeterReadingSource},
	}
}

func migrateBaseSchema(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id TEXT REFERENCES locations(id),
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_locations_parent ON locations(parent_id);

		CREATE TABLE IF NOT EXISTS equipment (
			id TEXT PRIMARY KEY,
			code TEXT,
			name TEXT NOT NULL,
			location_id TEXT REFERENCES locations(id),
			manufacturer TEXT,
			model TEXT,
			serial_number TEXT,
			status TEXT NOT NULL DEFAULT 'in_service',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('in_service', 'out_of_service', 'retired'))
		);

		CREATE INDEX IF NOT EXISTS idx_equipment_location ON equipment(location_id);
		CREATE INDEX IF NOT EXISTS idx_equipment_status ON equipment(status);

		CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			equipment_id TEXT NOT NULL REFERENCES equipment(id),
			status TEXT NOT NULL DEFAULT 'open',
			priority TEXT NOT NULL DEFAULT 'medium',
			assignee TEXT,
			due_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			UNIQUE(number),
			CHECK (status IN ('open', 'in_progress', 'on_hold', 'completed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_work_orders_equipment ON work_orders(equipment_id);
		CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders(status);

		CREATE TABLE IF NOT EXISTS stock_items (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT 'ea',
			quantity REAL NOT NULL DEFAULT 0,
			location_id TEXT REFERENCES locations(id),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_stock_items_location ON stock_items(location_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateWorkOrderParts(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS work_order_parts (
			work_order_id TEXT NOT NULL REFERENCES work_orders(id),
			stock_item_id TEXT NOT NULL REFERENCES stock_items(id),
			quantity REAL NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (work_order_id, stock_item_id)
		);

		CREATE TABLE IF NOT EXISTS stock_movements (
			id TEXT PRIMARY KEY,
			stock_item_id TEXT NOT NULL REFERENCES stock_items(id),
			work_order_id TEXT REFERENCES work_orders(id),
			type TEXT NOT NULL,
			quantity REAL NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL,

			CHECK (type IN ('receipt', 'issue'))
		);

		CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(stock_item_id);
		CREATE INDEX IF NOT EXISTS idx_stock_movements_wo ON stock_movements(work_order_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migratePMSchedules(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS pm_schedules (
			id TEXT PRIMARY KEY,
			equipment_id TEXT NOT NULL REFERENCES equipment(id),
			title TEXT NOT NULL,
			interval_days INTEGER NOT NULL,
			last_generated_at TEXT,
			next_due_at TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pm_schedules_equipment ON pm_schedules(equipment_id);
		CREATE INDEX IF NOT EXISTS idx_pm_schedules_next_due ON pm_schedules(next_due_at);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateMeters(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS meters (
			id TEXT PRIMARY KEY,
			equipment_id TEXT NOT NULL REFERENCES equipment(id),
			name TEXT NOT NULL,
			unit TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_meters_equipment ON meters(equipment_id);

		CREATE TABLE IF NOT EXISTS meter_readings (
			id TEXT PRIMARY KEY,
			meter_id TEXT NOT NULL REFERENCES meters(id),
			value REAL NOT NULL,
			read_at TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_meter_readings_meter ON meter_readings(meter_id, read_at);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateVendors(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS vendors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_name TEXT,
			email TEXT,
			phone TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateTenantUsers(ctx context.Context, db *sql.DB) error {
	// Tenant end-users live inside the tenant's own store; the admin store
	// only tracks platform users.
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'technician',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,

			CHECK (role IN ('manager', 'technician', 'viewer'))
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateEquipmentCriticality(ctx context.Context, db *sql.DB) error {
	return addColumn(ctx, db, "equipment", "criticality", "TEXT NOT NULL DEFAULT 'normal'")
}

func migrateWorkOrderCompletion(ctx context.Context, db *sql.DB) error {
	if err := addColumn(ctx, db, "work_orders", "completed_at", "TEXT"); err != nil {
		return err
	}
	if err := addColumn(ctx, db, "work_orders", "completed_by", "TEXT"); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_completed ON work_orders(completed_at)`)
	return err
}

func migrateSeedPriorities(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS priorities (
			code TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			rank INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}

	has, err := tableHasRows(ctx, db, "priorities")
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	// INSERT OR IGNORE keeps a concurrent seed from failing on the
	// natural key.
	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO priorities (code, label, rank) VALUES
			('low', 'Low', 1),
			('medium', 'Medium', 2),
			('high', 'High', 3),
			('critical', 'Critical', 4)
	`)
	return err
}

func migrateStockReorder(ctx context.Context, db *sql.DB) error {
	if err := addColumn(ctx, db, "stock_items", "reorder_point", "REAL"); err != nil {
		return err
	}
	return addColumn(ctx, db, "stock_items", "reorder_quantity", "REAL")
}

// migrateOptionalEquipment relaxes work_orders.equipment_id from required to
// optional: general-facility work orders have no equipment attached. SQLite
// cannot drop a NOT NULL in place, so the table is rebuilt.
func migrateOptionalEquipment(ctx context.Context, db *sql.DB) error {
	required, err := columnIsNotNull(ctx, db, "work_orders", "equipment_id")
	if err != nil {
		return err
	}
	if !required {
		return nil
	}

	createSQL := `
		CREATE TABLE work_orders_rebuild (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			equipment_id TEXT REFERENCES equipment(id),
			status TEXT NOT NULL DEFAULT 'open',
			priority TEXT NOT NULL DEFAULT 'medium',
			assignee TEXT,
			due_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT,
			completed_by TEXT,

			UNIQUE(number),
			CHECK (status IN ('open', 'in_progress', 'on_hold', 'completed', 'cancelled'))
		)
	`
	copyColumns := "id, number, title, description, equipment_id, status, priority, " +
		"assignee, due_at, created_at, updated_at, completed_at, completed_by"
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_work_orders_equipment ON work_orders(equipment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_completed ON work_orders(completed_at)`,
	}
	return rebuildTable(ctx, db, "work_orders", createSQL, copyColumns, indexes)
}

// columnIsNotNull reports whether a column carries a NOT NULL constraint.
func columnIsNotNull(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var notnull int
	err := db.QueryRowContext(ctx,
		`SELECT "notnull" FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&notnull)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("column %s.%s not found", table, column)
	}
	if err != nil {
		return false, err
	}
	return notnull == 1, nil
}

// migrateBackfillEquipmentCodes derives a code for equipment rows created
// before codes existed. Only rows still missing a code are touched, so
// re-running is a no-op.
func migrateBackfillEquipmentCodes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		UPDATE equipment
		SET code = 'EQ-' || upper(substr(id, 1, 8))
		WHERE code IS NULL OR code = ''
	`)
	return err
}

func migrateAttachments(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT,
			size_bytes INTEGER,
			created_at TEXT NOT NULL,

			CHECK (entity_type IN ('equipment', 'work_order', 'stock_item'))
		);

		CREATE INDEX IF NOT EXISTS idx_attachments_entity ON attachments(entity_type, entity_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// migrateMovementAdjustment widens the stock movement CHECK constraint to
// admit manual adjustments. Changing a CHECK requires a rebuild.
func migrateMovementAdjustment(ctx context.Context, db *sql.DB) error {
	ok, err := checkConstraintAllows(ctx, db, "stock_movements", "'adjustment'")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	createSQL := `
		CREATE TABLE stock_movements_rebuild (
			id TEXT PRIMARY KEY,
			stock_item_id TEXT NOT NULL REFERENCES stock_items(id),
			work_order_id TEXT REFERENCES work_orders(id),
			type TEXT NOT NULL,
			quantity REAL NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL,

			CHECK (type IN ('receipt', 'issue', 'adjustment'))
		)
	`
	copyColumns := "id, stock_item_id, work_order_id, type, quantity, note, created_at"
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(stock_item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_wo ON stock_movements(work_order_id)`,
	}
	return rebuildTable(ctx, db, "stock_movements", createSQL, copyColumns, indexes)
}

// checkConstraintAllows inspects the table's stored DDL for a literal in its
// CHECK constraint. pragma output does not expose CHECK bodies, so the
// sqlite_master SQL text is the source of truth.
func checkConstraintAllows(ctx context.Context, db *sql.DB, table, literal string) (bool, error) {
	var ddl string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("table %s not found", table)
	}
	if err != nil {
		return false, err
	}
	return strings.Contains(ddl, literal), nil
}

func migrateWorkOrderAssigneeIndex(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_assignee ON work_orders(assignee)`)
	return err
}

func migrateMeterReadingSource(ctx context.Context, db *sql.DB) error {
	return addColumn(ctx, db, "meter_readings", "source", "TEXT NOT NULL DEFAULT 'manual'")
}
