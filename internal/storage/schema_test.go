package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"debtbook/internal/core"
)

func openRawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", DSN(path, 5*time.Second))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for i := range 3 {
		res, err := repo.EnsureSchema(ctx)
		if err != nil {
			t.Fatalf("EnsureSchema() run %d error = %v", i, err)
		}
		if res.Changed() {
			t.Errorf("EnsureSchema() run %d changed schema: %+v", i, res)
		}
		if res.Migration.Version != 1 {
			t.Errorf("EnsureSchema() run %d version = %d, want 1", i, res.Migration.Version)
		}
	}
}

func TestEnsureSchemaConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	const runners = 6
	var wg sync.WaitGroup
	errs := make(chan error, runners)
	for range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.EnsureSchema(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent EnsureSchema() error = %v", err)
	}

	// The store is still fully usable afterwards.
	mustRegister(t, repo, 1, "Ivan")
	p := mustAddProduct(t, repo, "Cola", 5000)
	mustRecord(t, repo, 1, p.ID, 1)
}

func TestBaselineNeedsNoReconciliation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	if _, err := RunMigrations(DSN(path, 5*time.Second)); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	db := openRawDB(t, path)
	res, err := reconcile(context.Background(), db, SchemaOptions{Logger: testLogger()})
	if err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}
	if len(res.Created) != 0 {
		t.Errorf("reconcile() after baseline created %v, want nothing", res.Created)
	}
}

func TestReconcileFreshDatabaseIgnoresRepairPolicy(t *testing.T) {
	db := openRawDB(t, filepath.Join(t.TempDir(), "empty.db"))

	res, err := reconcile(context.Background(), db, SchemaOptions{RepairMissingTables: false, Logger: testLogger()})
	if err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}
	if len(res.Repaired) != 0 {
		t.Errorf("reconcile() repaired %v on a fresh database", res.Repaired)
	}

	var tables []string
	for _, obj := range res.Created {
		if obj.Kind == KindTable {
			tables = append(tables, obj.Name)
		}
	}
	if want := []string{"admins", "products", "debt_lines"}; !slices.Equal(tables, want) {
		t.Errorf("created tables = %v, want %v", tables, want)
	}
}

func TestEnsureSchemaUpgradesLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy := openRawDB(t, path)
	mustExec(t, legacy,
		`CREATE TABLE admins (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, price INTEGER NOT NULL)`,
		`CREATE TABLE debt_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			admin_id INTEGER NOT NULL REFERENCES admins(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			amount INTEGER NOT NULL)`,
		`INSERT INTO admins (id, name) VALUES (1, 'Ivan')`,
		`INSERT INTO products (name, price) VALUES ('RedBull', 7000)`,
		`INSERT INTO debt_lines (admin_id, product_id, quantity, amount) VALUES (1, 1, 2, 14000)`,
	)
	legacy.Close()

	repo := openTestRepo(t, path, true)
	defer repo.Close()

	admin, err := repo.GetAdmin(ctx, 1)
	if err != nil {
		t.Fatalf("GetAdmin() error = %v", err)
	}
	if admin.Name != "Ivan" || admin.Nickname != "" {
		t.Errorf("GetAdmin() = %+v, want legacy row preserved", admin)
	}

	lines, err := repo.ListDebtLines(ctx, 1)
	if err != nil {
		t.Fatalf("ListDebtLines() error = %v", err)
	}
	if len(lines) != 1 || lines[0].Amount.Cents != 14000 || !lines[0].CreatedAt.IsZero() {
		t.Errorf("ListDebtLines() = %+v, want legacy line with zero CreatedAt", lines)
	}

	if _, err := repo.SetNickname(ctx, 1, "Ваня"); err != nil {
		t.Fatalf("SetNickname() on upgraded table error = %v", err)
	}
	totals, err := repo.TotalsByAdmin(ctx)
	if err != nil {
		t.Fatalf("TotalsByAdmin() error = %v", err)
	}
	got := slices.Collect(totals)
	if len(got) != 1 || got[0].Name != "Ваня" || got[0].Total.Cents != 14000 {
		t.Errorf("TotalsByAdmin() = %+v, want [Ваня 14000]", got)
	}

	res, err := repo.EnsureSchema(ctx)
	if err != nil || res.Changed() {
		t.Errorf("EnsureSchema() after upgrade = %+v, %v; want no changes", res, err)
	}
}

func TestEnsureSchemaRepairsDroppedTable(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mustAddProduct(t, repo, "RedBull", 7000)

	mustExec(t, repo.db, "DROP TABLE debt_lines")

	res, err := repo.EnsureSchema(ctx)
	if err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if !slices.Equal(res.Repaired, []string{"debt_lines"}) {
		t.Errorf("Repaired = %v, want [debt_lines]", res.Repaired)
	}

	want := []SchemaObject{
		{Kind: KindTable, Name: "debt_lines"},
		{Kind: KindIndex, Name: "idx_debt_lines_admin_id"},
		{Kind: KindIndex, Name: "idx_debt_lines_product_id"},
	}
	if !slices.Equal(res.Created, want) {
		t.Errorf("Created = %v, want %v", res.Created, want)
	}

	if _, err := repo.GetProductByName(ctx, "RedBull"); err != nil {
		t.Errorf("GetProductByName() after repair error = %v", err)
	}
	mustRegister(t, repo, 1, "Ivan")
	p, _ := repo.GetProductByName(ctx, "RedBull")
	mustRecord(t, repo, 1, p.ID, 1)
}

func TestEnsureSchemaRefusesRepairWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	repo := openTestRepo(t, path, true)
	mustExec(t, repo.db, "DROP TABLE debt_lines")
	repo.Close()

	_, err := NewSQLiteRepository(context.Background(), Options{
		Path:                path,
		RepairMissingTables: false,
		Logger:              testLogger(),
	})

	var schemaErr *core.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("NewSQLiteRepository() error = %v, want *core.SchemaError", err)
	}
	if schemaErr.Object != "debt_lines" {
		t.Errorf("SchemaError.Object = %q, want debt_lines", schemaErr.Object)
	}
}

// legacyPartialDB creates a database from before versioned migrations that
// lost its debt_lines table.
func legacyPartialDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db := openRawDB(t, path)
	mustExec(t, db,
		`CREATE TABLE admins (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, price INTEGER NOT NULL)`,
		`INSERT INTO admins (id, name) VALUES (1, 'Ivan')`,
	)
	db.Close()
	return path
}

func TestEnsureSchemaRefusesLegacyPartialDatabase(t *testing.T) {
	path := legacyPartialDB(t)

	_, err := NewSQLiteRepository(context.Background(), Options{
		Path:                path,
		RepairMissingTables: false,
		Logger:              testLogger(),
	})

	var schemaErr *core.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("NewSQLiteRepository() error = %v, want *core.SchemaError", err)
	}
	if schemaErr.Object != "debt_lines" {
		t.Errorf("SchemaError.Object = %q, want debt_lines", schemaErr.Object)
	}

	tables, err := existingObjects(context.Background(), openRawDB(t, path), KindTable)
	if err != nil {
		t.Fatalf("existingObjects() error = %v", err)
	}
	if tables["debt_lines"] || tables["schema_migrations"] {
		t.Errorf("tables after refusal = %v, want debt_lines and schema_migrations absent", tables)
	}
}

func TestEnsureSchemaRepairsLegacyPartialDatabase(t *testing.T) {
	ctx := context.Background()
	path := legacyPartialDB(t)

	var logs bytes.Buffer
	repo, err := NewSQLiteRepository(ctx, Options{
		Path:                path,
		RepairMissingTables: true,
		Logger:              slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	defer repo.Close()

	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "schema_object=debt_lines") {
		t.Errorf("logs = %q, want a WARN naming debt_lines", logs.String())
	}

	if _, err := repo.GetAdmin(ctx, 1); err != nil {
		t.Errorf("GetAdmin() error = %v, want legacy admin kept", err)
	}
	p := mustAddProduct(t, repo, "Cola", 5000)
	mustRecord(t, repo, 1, p.ID, 1)

	res, err := repo.EnsureSchema(ctx)
	if err != nil || res.Changed() || len(res.Repaired) != 0 {
		t.Errorf("EnsureSchema() after repair = %+v, %v; want no changes", res, err)
	}
}

func TestEnsureTablesReportsRepair(t *testing.T) {
	db := openRawDB(t, legacyPartialDB(t))

	res, err := ensureTables(context.Background(), db, SchemaOptions{RepairMissingTables: true, Logger: testLogger()}, false)
	if err != nil {
		t.Fatalf("ensureTables() error = %v", err)
	}
	if !slices.Equal(res.Repaired, []string{"debt_lines"}) {
		t.Errorf("Repaired = %v, want [debt_lines]", res.Repaired)
	}
	if want := []SchemaObject{{Kind: KindTable, Name: "debt_lines"}}; !slices.Equal(res.Created, want) {
		t.Errorf("Created = %v, want %v", res.Created, want)
	}
}

func TestEnsureTablesLeavesFreshDatabaseToBaseline(t *testing.T) {
	db := openRawDB(t, filepath.Join(t.TempDir(), "empty.db"))

	res, err := ensureTables(context.Background(), db, SchemaOptions{Logger: testLogger()}, false)
	if err != nil {
		t.Fatalf("ensureTables() error = %v", err)
	}
	if len(res.Created) != 0 {
		t.Errorf("ensureTables() created %v on a fresh database", res.Created)
	}
}

func TestRunMigrationsRecoversDirtyVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty.db")
	dsn := DSN(path, 5*time.Second)

	if _, err := RunMigrations(dsn); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	db := openRawDB(t, path)
	mustExec(t, db, "UPDATE schema_migrations SET dirty = 1")

	res, err := RunMigrations(dsn)
	if err != nil {
		t.Fatalf("RunMigrations() on dirty database error = %v", err)
	}
	if !res.Recovered || res.Version != 1 {
		t.Errorf("RunMigrations() = %+v, want recovered at version 1", res)
	}

	var dirty bool
	if err := db.QueryRow("SELECT dirty FROM schema_migrations").Scan(&dirty); err != nil {
		t.Fatalf("read dirty flag: %v", err)
	}
	if dirty {
		t.Error("schema_migrations still dirty after recovery")
	}
}

func TestSchemaErrorNamesObject(t *testing.T) {
	err := &core.SchemaError{Object: "admins.nickname", Err: errors.New("disk I/O error")}
	if got := err.Error(); got != "schema object admins.nickname: disk I/O error" {
		t.Errorf("Error() = %q", got)
	}
}
