package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"debtbook/internal/core"
)

// Object kinds tracked by the schema catalog.
const (
	KindTable  = "table"
	KindColumn = "column"
	KindIndex  = "index"
)

var errMissingTable = errors.New("table is missing and repair of missing tables is disabled")

type tableSpec struct {
	name string
	ddl  string
}

type columnSpec struct {
	table string
	name  string
	ddl   string
}

type indexSpec struct {
	name string
	ddl  string
}

// Tables are listed in foreign key order. The definitions match the baseline
// migration, so a recreated table is indistinguishable from a migrated one.
var ledgerTables = []tableSpec{
	{
		name: "admins",
		ddl: `CREATE TABLE IF NOT EXISTS admins (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    nickname TEXT
)`,
	},
	{
		name: "products",
		ddl: `CREATE TABLE IF NOT EXISTS products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    price INTEGER NOT NULL CHECK (price >= 0)
)`,
	},
	{
		name: "debt_lines",
		ddl: `CREATE TABLE IF NOT EXISTS debt_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    admin_id INTEGER NOT NULL REFERENCES admins(id) ON DELETE RESTRICT,
    product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    amount INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT 0
)`,
	},
}

// Columns added after the first production release. ADD COLUMN cannot use a
// non-constant default, so created_at defaults to 0 for historical rows.
var ledgerColumns = []columnSpec{
	{table: "admins", name: "nickname", ddl: "nickname TEXT"},
	{table: "debt_lines", name: "created_at", ddl: "created_at INTEGER NOT NULL DEFAULT 0"},
}

var ledgerIndexes = []indexSpec{
	{name: "idx_products_name", ddl: "CREATE UNIQUE INDEX IF NOT EXISTS idx_products_name ON products(name)"},
	{name: "idx_debt_lines_admin_id", ddl: "CREATE INDEX IF NOT EXISTS idx_debt_lines_admin_id ON debt_lines(admin_id)"},
	{name: "idx_debt_lines_product_id", ddl: "CREATE INDEX IF NOT EXISTS idx_debt_lines_product_id ON debt_lines(product_id)"},
}

// SchemaOptions controls reconciliation.
type SchemaOptions struct {
	// RepairMissingTables allows recreating a ledger table that vanished from
	// an otherwise initialized database. Rows of a dropped table are gone
	// either way; disabling repair turns the situation into a startup error.
	RepairMissingTables bool
	Logger              *slog.Logger
}

// SchemaObject names one structural object created during a run.
type SchemaObject struct {
	Kind string
	Name string
}

func (o SchemaObject) String() string {
	return o.Kind + " " + o.Name
}

// SchemaResult summarizes one EnsureSchema run.
type SchemaResult struct {
	Migration MigrationResult
	Created   []SchemaObject
	Repaired  []string
}

// Changed reports whether the run modified the database structure.
func (r SchemaResult) Changed() bool {
	return r.Migration.Applied || len(r.Created) > 0
}

// reconcile brings the database in line with the catalog: tables first, then
// columns, then indexes. Existing objects are skipped and a create that races
// with another runner is treated as success. The first failure stops the run;
// objects created before it are kept.
func reconcile(ctx context.Context, db *sql.DB, opts SchemaOptions) (SchemaResult, error) {
	res, err := ensureTables(ctx, db, opts, true)
	if err != nil {
		return res, err
	}

	for _, c := range ledgerColumns {
		cols, err := tableColumns(ctx, db, c.table)
		if err != nil {
			return res, &core.SchemaError{Object: c.table + "." + c.name, Err: err}
		}
		if cols[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.table, c.ddl)
		created, err := createObject(ctx, db, c.table+"."+c.name, stmt)
		if err != nil {
			return res, err
		}
		if created {
			res.Created = append(res.Created, SchemaObject{Kind: KindColumn, Name: c.table + "." + c.name})
		}
	}

	indexes, err := existingObjects(ctx, db, KindIndex)
	if err != nil {
		return res, &core.SchemaError{Object: "sqlite_master", Err: err}
	}
	for _, idx := range ledgerIndexes {
		if indexes[idx.name] {
			continue
		}
		created, err := createObject(ctx, db, idx.name, idx.ddl)
		if err != nil {
			return res, err
		}
		if created {
			res.Created = append(res.Created, SchemaObject{Kind: KindIndex, Name: idx.name})
		}
	}

	return res, nil
}

// ensureTables applies the repair policy to ledger tables missing from a
// partially initialized database. A database without any ledger table is
// fresh: its tables are created only when createFresh is set, and never count
// as repaired.
func ensureTables(ctx context.Context, db *sql.DB, opts SchemaOptions, createFresh bool) (SchemaResult, error) {
	var res SchemaResult
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	present, err := existingObjects(ctx, db, KindTable)
	if err != nil {
		return res, &core.SchemaError{Object: "sqlite_master", Err: err}
	}

	fresh := true
	for _, t := range ledgerTables {
		if present[t.name] {
			fresh = false
			break
		}
	}
	if fresh && !createFresh {
		return res, nil
	}

	for _, t := range ledgerTables {
		if present[t.name] {
			continue
		}
		if !fresh {
			if !opts.RepairMissingTables {
				return res, &core.SchemaError{Object: t.name, Err: errMissingTable}
			}
			logger.WarnContext(ctx, "Ledger table missing, recreating empty definition",
				"schema_object", t.name)
		}
		created, err := createObject(ctx, db, t.name, t.ddl)
		if err != nil {
			return res, err
		}
		if created {
			res.Created = append(res.Created, SchemaObject{Kind: KindTable, Name: t.name})
			if !fresh {
				res.Repaired = append(res.Repaired, t.name)
			}
		}
	}
	return res, nil
}

// createObject runs a single create statement. It returns false when the
// object turned out to exist already.
func createObject(ctx context.Context, db *sql.DB, name, stmt string) (bool, error) {
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		if isAlreadyExists(err) {
			return false, nil
		}
		return false, &core.SchemaError{Object: name, Err: err}
	}
	return true, nil
}

func existingObjects(ctx context.Context, db *sql.DB, kind string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%'", kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	// PRAGMA arguments cannot be bound; table names come from the catalog.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
