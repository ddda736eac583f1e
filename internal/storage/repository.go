package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"debtbook/internal/core"
	"debtbook/internal/metrics"

	_ "modernc.org/sqlite"
)

// Options configures NewSQLiteRepository.
type Options struct {
	Path                string
	BusyTimeout         time.Duration
	MaxOpenConns        int
	RepairMissingTables bool
	Logger              *slog.Logger
}

// SQLiteRepository is the ledger store. It holds no ledger state of its own;
// every operation is a single transaction against the database.
type SQLiteRepository struct {
	db     *sql.DB
	dsn    string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// DSN builds the modernc connection string: busy timeout first so the WAL
// switch waits for other connections, foreign keys on, and BEGIN IMMEDIATE
// for every read-write transaction.
func DSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// NewSQLiteRepository opens the database and ensures its schema. The
// repository is returned only once the schema is in place.
func NewSQLiteRepository(ctx context.Context, opts Options) (*SQLiteRepository, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(opts.Path, opts.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeErr("open sqlite database", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeErr("ping database", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		dsn:    dsn,
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}

	res, err := repo.EnsureSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if res.Changed() {
		repo.logger.InfoContext(ctx, "Schema ensured",
			"migration_version", res.Migration.Version,
			"migration_applied", res.Migration.Applied,
			"objects_created", len(res.Created))
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// EnsureSchema checks the ledger tables against the repair policy, applies
// the baseline migration and reconciles the catalog. Any failure is a
// *core.SchemaError.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) (SchemaResult, error) {
	opts := SchemaOptions{
		RepairMissingTables: r.opts.RepairMissingTables,
		Logger:              r.logger,
	}

	// The baseline creates tables unconditionally, so a partial database must
	// be judged before it runs.
	pre, err := ensureTables(ctx, r.db, opts, false)
	if err != nil {
		r.recordCreated(ctx, pre.Created)
		return pre, err
	}

	mres, err := RunMigrations(r.dsn)
	if err != nil {
		r.recordCreated(ctx, pre.Created)
		return SchemaResult{Migration: mres, Created: pre.Created, Repaired: pre.Repaired},
			&core.SchemaError{Object: "baseline migration", Err: err}
	}
	if mres.Recovered {
		r.logger.WarnContext(ctx, "Recovered dirty baseline migration", "version", mres.Version)
	}

	res, err := reconcile(ctx, r.db, opts)
	res.Migration = mres
	res.Created = append(pre.Created, res.Created...)
	res.Repaired = append(pre.Repaired, res.Repaired...)
	r.recordCreated(ctx, res.Created)
	return res, err
}

func (r *SQLiteRepository) recordCreated(ctx context.Context, objs []SchemaObject) {
	for _, obj := range objs {
		metrics.SchemaObjectsCreated.WithLabelValues(obj.Kind).Inc()
		r.logger.InfoContext(ctx, "Schema object created", "kind", obj.Kind, "schema_object", obj.Name)
	}
}

// withTx runs fn in a read-write transaction. fn returns already classified
// errors; only begin and commit failures are wrapped here.
func (r *SQLiteRepository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	return nil
}

// readTx runs fn in a read-only transaction so that every query in fn sees
// the same snapshot.
func (r *SQLiteRepository) readTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storeErr(op, err)
	}
	defer tx.Rollback()
	return fn(tx)
}

// Admins

// RegisterAdmin creates the admin or updates its canonical name. An existing
// nickname is left untouched.
func (r *SQLiteRepository) RegisterAdmin(ctx context.Context, id core.AdminID, name string) (core.Admin, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Admin{}, fmt.Errorf("register admin %d: %w", id, err)
	}

	var admin core.Admin
	err = r.withTx(ctx, "register admin", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO admins (id, name) VALUES (?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, int64(id), name)
		if err != nil {
			return storeErr("register admin", err)
		}
		admin, err = getAdmin(ctx, tx, id)
		return err
	})
	if err != nil {
		return core.Admin{}, err
	}

	r.logger.InfoContext(ctx, "Admin registered", "admin_id", admin.ID, "name", admin.Name)
	return admin, nil
}

func (r *SQLiteRepository) GetAdmin(ctx context.Context, id core.AdminID) (core.Admin, error) {
	var admin core.Admin
	err := r.readTx(ctx, "get admin", func(tx *sql.Tx) error {
		var err error
		admin, err = getAdmin(ctx, tx, id)
		return err
	})
	return admin, err
}

// ListAdmins returns all admins ordered by id.
func (r *SQLiteRepository) ListAdmins(ctx context.Context) ([]core.Admin, error) {
	var admins []core.Admin
	err := r.readTx(ctx, "list admins", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, name, nickname FROM admins ORDER BY id")
		if err != nil {
			return storeErr("list admins", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAdmin(rows)
			if err != nil {
				return storeErr("scan admin", err)
			}
			admins = append(admins, a)
		}
		if err := rows.Err(); err != nil {
			return storeErr("list admins", err)
		}
		return nil
	})
	return admins, err
}

// SetNickname stores a trimmed nickname. changed is false when the stored
// value was already equal.
func (r *SQLiteRepository) SetNickname(ctx context.Context, id core.AdminID, nickname string) (changed bool, err error) {
	nickname, err = core.ValidateNickname(nickname)
	if err != nil {
		return false, fmt.Errorf("set nickname for admin %d: %w", id, err)
	}

	err = r.withTx(ctx, "set nickname", func(tx *sql.Tx) error {
		admin, err := getAdmin(ctx, tx, id)
		if err != nil {
			return err
		}
		if admin.Nickname == nickname {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "UPDATE admins SET nickname = ? WHERE id = ?", nickname, int64(id)); err != nil {
			return storeErr("set nickname", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		r.logger.InfoContext(ctx, "Nickname set", "admin_id", id, "nickname", nickname)
	}
	return changed, nil
}

// ClearNickname removes the nickname so the admin displays under its
// canonical name again.
func (r *SQLiteRepository) ClearNickname(ctx context.Context, id core.AdminID) (changed bool, err error) {
	err = r.withTx(ctx, "clear nickname", func(tx *sql.Tx) error {
		admin, err := getAdmin(ctx, tx, id)
		if err != nil {
			return err
		}
		if admin.Nickname == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "UPDATE admins SET nickname = NULL WHERE id = ?", int64(id)); err != nil {
			return storeErr("clear nickname", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

// GetNickname returns the stored nickname. ok is false when none is set or
// the admin is unknown.
func (r *SQLiteRepository) GetNickname(ctx context.Context, id core.AdminID) (string, bool, error) {
	var nickname sql.NullString
	err := r.readTx(ctx, "get nickname", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT nickname FROM admins WHERE id = ?", int64(id)).Scan(&nickname)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storeErr("get nickname", err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if !nickname.Valid || nickname.String == "" {
		return "", false, nil
	}
	return nickname.String, true, nil
}

// Products

func (r *SQLiteRepository) AddProduct(ctx context.Context, name string, price core.Money) (core.Product, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Product{}, fmt.Errorf("add product: %w", err)
	}
	if err := core.ValidatePrice(price); err != nil {
		return core.Product{}, fmt.Errorf("add product %q: %w", name, err)
	}

	product := core.Product{Name: name, Price: price}
	err = r.withTx(ctx, "add product", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM products WHERE name = ?", name).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("add product %q: %w", name, core.ErrDuplicateName)
		case !errors.Is(err, sql.ErrNoRows):
			return storeErr("add product", err)
		}

		res, err := tx.ExecContext(ctx, "INSERT INTO products (name, price) VALUES (?, ?)", name, price.Cents)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("add product %q: %w", name, core.ErrDuplicateName)
			}
			return storeErr("add product", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return storeErr("add product", err)
		}
		product.ID = core.ProductID(id)
		return nil
	})
	if err != nil {
		return core.Product{}, err
	}

	r.logger.InfoContext(ctx, "Product added",
		"product_id", product.ID,
		"product_name", product.Name,
		"price_cents", product.Price.Cents)
	return product, nil
}

func (r *SQLiteRepository) GetProduct(ctx context.Context, id core.ProductID) (core.Product, error) {
	var p core.Product
	err := r.readTx(ctx, "get product", func(tx *sql.Tx) error {
		var err error
		p, err = getProduct(ctx, tx, id)
		return err
	})
	return p, err
}

// GetProductByName looks a product up by its exact, case-sensitive name.
func (r *SQLiteRepository) GetProductByName(ctx context.Context, name string) (core.Product, error) {
	var p core.Product
	err := r.readTx(ctx, "get product by name", func(tx *sql.Tx) error {
		var id, cents int64
		err := tx.QueryRowContext(ctx, "SELECT id, name, price FROM products WHERE name = ?", name).
			Scan(&id, &p.Name, &cents)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %q: %w", name, core.ErrNotFound)
		}
		if err != nil {
			return storeErr("get product by name", err)
		}
		p.ID = core.ProductID(id)
		p.Price = core.Money{Cents: cents}
		return nil
	})
	return p, err
}

// ListProducts returns all products ordered by name.
func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]core.Product, error) {
	var products []core.Product
	err := r.readTx(ctx, "list products", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, name, price FROM products ORDER BY name")
		if err != nil {
			return storeErr("list products", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id, cents int64
			var name string
			if err := rows.Scan(&id, &name, &cents); err != nil {
				return storeErr("scan product", err)
			}
			products = append(products, core.Product{
				ID:    core.ProductID(id),
				Name:  name,
				Price: core.Money{Cents: cents},
			})
		}
		if err := rows.Err(); err != nil {
			return storeErr("list products", err)
		}
		return nil
	})
	return products, err
}

// UpdateProductPrice changes the unit price used by future debt lines.
// Amounts already recorded keep their snapshot.
func (r *SQLiteRepository) UpdateProductPrice(ctx context.Context, id core.ProductID, price core.Money) (core.Product, error) {
	if err := core.ValidatePrice(price); err != nil {
		return core.Product{}, fmt.Errorf("update price of product %d: %w", id, err)
	}

	var p core.Product
	err := r.withTx(ctx, "update product price", func(tx *sql.Tx) error {
		var err error
		p, err = getProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE products SET price = ? WHERE id = ?", price.Cents, int64(id)); err != nil {
			return storeErr("update product price", err)
		}
		p.Price = price
		return nil
	})
	if err != nil {
		return core.Product{}, err
	}

	r.logger.InfoContext(ctx, "Product price updated", "product_id", id, "price_cents", price.Cents)
	return p, nil
}

// DeleteProduct removes a product that no debt line references.
func (r *SQLiteRepository) DeleteProduct(ctx context.Context, id core.ProductID) error {
	err := r.withTx(ctx, "delete product", func(tx *sql.Tx) error {
		if _, err := getProduct(ctx, tx, id); err != nil {
			return err
		}

		var refs int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM debt_lines WHERE product_id = ?", int64(id)).Scan(&refs)
		if err != nil {
			return storeErr("delete product", err)
		}
		if refs > 0 {
			return fmt.Errorf("delete product %d: %w", id, core.ErrProductInUse)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", int64(id)); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("delete product %d: %w", id, core.ErrProductInUse)
			}
			return storeErr("delete product", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Product deleted", "product_id", id)
	return nil
}

// Debt lines

// RecordDebt stores an immutable debt line priced at the product's current
// unit price.
func (r *SQLiteRepository) RecordDebt(ctx context.Context, adminID core.AdminID, productID core.ProductID, quantity int) (core.DebtLine, error) {
	if err := core.ValidateQuantity(quantity); err != nil {
		return core.DebtLine{}, fmt.Errorf("record debt: %w", err)
	}

	line := core.DebtLine{
		AdminID:   adminID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: r.now().UTC().Truncate(time.Second),
	}
	err := r.withTx(ctx, "record debt", func(tx *sql.Tx) error {
		if _, err := getAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		product, err := getProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		amount, ok := product.Price.Times(quantity)
		if !ok {
			return fmt.Errorf("record debt: amount overflows for quantity %d: %w", quantity, core.ErrInvalidQuantity)
		}
		line.Amount = amount

		res, err := tx.ExecContext(ctx,
			`INSERT INTO debt_lines (admin_id, product_id, quantity, amount, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			int64(adminID), int64(productID), quantity, amount.Cents, line.CreatedAt.Unix())
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("record debt: %w", core.ErrNotFound)
			}
			return storeErr("record debt", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return storeErr("record debt", err)
		}
		line.ID = core.DebtLineID(id)
		return nil
	})
	if err != nil {
		return core.DebtLine{}, err
	}

	r.logger.InfoContext(ctx, "Debt recorded",
		"debt_line_id", line.ID,
		"admin_id", line.AdminID,
		"product_id", line.ProductID,
		"quantity", line.Quantity,
		"amount_cents", line.Amount.Cents)
	return line, nil
}

func (r *SQLiteRepository) GetDebtLine(ctx context.Context, id core.DebtLineID) (core.DebtLine, error) {
	var line core.DebtLine
	err := r.readTx(ctx, "get debt line", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT id, admin_id, product_id, quantity, amount, created_at FROM debt_lines WHERE id = ?", int64(id))
		var err error
		line, err = scanDebtLine(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("debt line %d: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return storeErr("get debt line", err)
		}
		return nil
	})
	return line, err
}

// ListDebtLines returns the admin's debt lines in recording order.
func (r *SQLiteRepository) ListDebtLines(ctx context.Context, adminID core.AdminID) ([]core.DebtLine, error) {
	var lines []core.DebtLine
	err := r.readTx(ctx, "list debt lines", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, admin_id, product_id, quantity, amount, created_at
			 FROM debt_lines WHERE admin_id = ? ORDER BY id`, int64(adminID))
		if err != nil {
			return storeErr("list debt lines", err)
		}
		defer rows.Close()

		for rows.Next() {
			line, err := scanDebtLine(rows)
			if err != nil {
				return storeErr("scan debt line", err)
			}
			lines = append(lines, line)
		}
		if err := rows.Err(); err != nil {
			return storeErr("list debt lines", err)
		}
		return nil
	})
	return lines, err
}

// SettleAdmin deletes every debt line of the admin and reports what was
// removed. Settling an admin without debts returns a zero settlement.
func (r *SQLiteRepository) SettleAdmin(ctx context.Context, adminID core.AdminID) (core.Settlement, error) {
	s := core.Settlement{AdminID: adminID}
	err := r.withTx(ctx, "settle admin", func(tx *sql.Tx) error {
		if _, err := getAdmin(ctx, tx, adminID); err != nil {
			return err
		}

		var total int64
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM debt_lines WHERE admin_id = ?", int64(adminID)).
			Scan(&s.Lines, &total)
		if err != nil {
			return storeErr("settle admin", err)
		}
		s.Total = core.Money{Cents: total}

		if _, err := tx.ExecContext(ctx, "DELETE FROM debt_lines WHERE admin_id = ?", int64(adminID)); err != nil {
			return storeErr("settle admin", err)
		}
		return nil
	})
	if err != nil {
		return core.Settlement{}, err
	}

	r.logger.InfoContext(ctx, "Admin settled",
		"admin_id", adminID,
		"lines", s.Lines,
		"amount_cents", s.Total.Cents)
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row rowScanner) (core.Admin, error) {
	var (
		id       int64
		name     string
		nickname sql.NullString
	)
	if err := row.Scan(&id, &name, &nickname); err != nil {
		return core.Admin{}, err
	}
	return core.Admin{ID: core.AdminID(id), Name: name, Nickname: nickname.String}, nil
}

func scanDebtLine(row rowScanner) (core.DebtLine, error) {
	var id, adminID, productID, amount, createdAt int64
	var quantity int
	if err := row.Scan(&id, &adminID, &productID, &quantity, &amount, &createdAt); err != nil {
		return core.DebtLine{}, err
	}
	line := core.DebtLine{
		ID:        core.DebtLineID(id),
		AdminID:   core.AdminID(adminID),
		ProductID: core.ProductID(productID),
		Quantity:  quantity,
		Amount:    core.Money{Cents: amount},
	}
	// Lines recorded before created_at existed carry 0.
	if createdAt > 0 {
		line.CreatedAt = time.Unix(createdAt, 0).UTC()
	}
	return line, nil
}

func getAdmin(ctx context.Context, tx *sql.Tx, id core.AdminID) (core.Admin, error) {
	row := tx.QueryRowContext(ctx, "SELECT id, name, nickname FROM admins WHERE id = ?", int64(id))
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Admin{}, fmt.Errorf("admin %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Admin{}, storeErr("get admin", err)
	}
	return a, nil
}

func getProduct(ctx context.Context, tx *sql.Tx, id core.ProductID) (core.Product, error) {
	var name string
	var cents int64
	err := tx.QueryRowContext(ctx, "SELECT name, price FROM products WHERE id = ?", int64(id)).Scan(&name, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, fmt.Errorf("product %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Product{}, storeErr("get product", err)
	}
	return core.Product{ID: id, Name: name, Price: core.Money{Cents: cents}}, nil
}
