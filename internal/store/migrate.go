// ABOUTME: Migration runner and idempotent schema-change helpers
// ABOUTME: Applies ordered migration units to any store regardless of its shape

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Migration is one ordered, idempotent schema-change unit. Applying a unit
// to a store that already reflects it must be a no-op: units use CREATE IF
// NOT EXISTS, pragma checks before ALTER TABLE, and guarded seeds rather
// than relying on a ledger of applied units.
type Migration struct {
	ID    int
	Name  string
	Apply func(ctx context.Context, db *sql.DB) error
}

// ApplyAll runs every migration against the handle in ascending ID order.
// The first failing unit aborts the run for this store: a store that cannot
// take a structural change must not serve requests with a partial shape.
func ApplyAll(ctx context.Context, h *Handle, migrations []Migration) error {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		if err := m.Apply(ctx, h.db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.ID, m.Name, err)
		}
		h.logger.Debug("applied migration", "id", m.ID, "name", m.Name)
	}
	return nil
}

// tableExists reports whether a table is present in the store.
func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return true, nil
}

// columnExists reports whether a column is present on a table.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return true, nil
}

// addColumn adds a column to an existing table if it is not already there.
// SQLite has no ADD COLUMN IF NOT EXISTS, so the column is checked via
// pragma_table_info first; a duplicate-column error from a concurrent add is
// still recognized and swallowed as a backstop. Any other failure is fatal
// for the run.
func addColumn(ctx context.Context, db *sql.DB, table, column, decl string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		if isDuplicateColumnError(err) {
			return nil
		}
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

// isDuplicateColumnError recognizes the engine's duplicate-column condition.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

// rebuildTable performs an irreversible structural change (dropping a
// column, relaxing a NOT NULL, changing a CHECK constraint) via the
// shadow-table sequence: disable foreign keys, create the new shape, copy
// rows, drop the original, rename the shadow into place, re-create indexes.
// Foreign key enforcement is re-enabled even if the copy fails.
//
// createSQL must create a table named <table>_rebuild with the new shape.
// copyColumns is the shared column list used for the row copy.
func rebuildTable(ctx context.Context, db *sql.DB, table, createSQL, copyColumns string, indexes []string) (err error) {
	shadow := table + "_rebuild"

	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer func() {
		if _, ferr := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); ferr != nil && err == nil {
			err = fmt.Errorf("re-enabling foreign keys: %w", ferr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rebuild: %w", err)
	}
	defer tx.Rollback()

	// A leftover shadow table from an interrupted rebuild is stale; drop it.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", shadow)); err != nil {
		return fmt.Errorf("dropping stale shadow table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("creating shadow table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s", shadow, copyColumns, copyColumns, table)); err != nil {
		return fmt.Errorf("copying rows: %w", err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table)); err != nil {
		return fmt.Errorf("dropping original table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		"ALTER TABLE %s RENAME TO %s", shadow, table)); err != nil {
		return fmt.Errorf("renaming shadow table: %w", err)
	}
	for _, idx := range indexes {
		if _, err = tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("recreating index: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing rebuild: %w", err)
	}
	return nil
}

// tableHasRows reports whether a table contains any data. Used by seed
// units to return early when reference data already exists.
func tableHasRows(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return false, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count > 0, nil
}
