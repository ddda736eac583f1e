package storage

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"debtbook/internal/core"
	"debtbook/internal/metrics"
)

// Report names used for metrics and logging.
const (
	ReportByAdmin    = "by_admin"
	ReportByProduct  = "by_product"
	ReportDetail     = "detail"
	ReportGrandTotal = "grand_total"
	ReportSnapshot   = "snapshot"
)

// TotalsByAdmin yields one entry per admin with debt lines, labelled with the
// admin's display name, by descending total and then name.
func (r *SQLiteRepository) TotalsByAdmin(ctx context.Context) (iter.Seq[core.AdminTotal], error) {
	defer metrics.ObserveReport(ReportByAdmin, time.Now())

	var totals []core.AdminTotal
	err := r.readTx(ctx, "totals by admin", func(tx *sql.Tx) error {
		var err error
		totals, err = adminTotals(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slices.Values(totals), nil
}

// TotalsByProduct yields quantity and amount per product across all admins.
func (r *SQLiteRepository) TotalsByProduct(ctx context.Context) (iter.Seq[core.ProductTotal], error) {
	defer metrics.ObserveReport(ReportByProduct, time.Now())

	var totals []core.ProductTotal
	err := r.readTx(ctx, "totals by product", func(tx *sql.Tx) error {
		var err error
		totals, err = productTotals(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slices.Values(totals), nil
}

// DetailByAdmin yields each admin's debt broken down by product.
func (r *SQLiteRepository) DetailByAdmin(ctx context.Context) (iter.Seq[core.AdminDetail], error) {
	defer metrics.ObserveReport(ReportDetail, time.Now())

	var details []core.AdminDetail
	err := r.readTx(ctx, "detail by admin", func(tx *sql.Tx) error {
		var err error
		details, err = adminDetails(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slices.Values(details), nil
}

// GrandTotal sums every recorded amount.
func (r *SQLiteRepository) GrandTotal(ctx context.Context) (core.Money, error) {
	defer metrics.ObserveReport(ReportGrandTotal, time.Now())

	var total core.Money
	err := r.readTx(ctx, "grand total", func(tx *sql.Tx) error {
		var err error
		total, err = grandTotal(ctx, tx)
		return err
	})
	return total, err
}

// Snapshot computes every report from a single read transaction, so the
// sections always agree with each other.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (core.Report, error) {
	defer metrics.ObserveReport(ReportSnapshot, time.Now())

	rep := core.Report{GeneratedAt: r.now().UTC()}
	err := r.readTx(ctx, "report snapshot", func(tx *sql.Tx) error {
		var err error
		if rep.ByAdmin, err = adminTotals(ctx, tx); err != nil {
			return err
		}
		if rep.ByProduct, err = productTotals(ctx, tx); err != nil {
			return err
		}
		if rep.Detail, err = adminDetails(ctx, tx); err != nil {
			return err
		}
		rep.GrandTotal, err = grandTotal(ctx, tx)
		return err
	})
	if err != nil {
		return core.Report{}, err
	}
	return rep, nil
}

func adminTotals(ctx context.Context, tx *sql.Tx) ([]core.AdminTotal, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT a.id, a.name, a.nickname, SUM(d.amount)
		FROM debt_lines d
		JOIN admins a ON a.id = d.admin_id
		GROUP BY a.id`)
	if err != nil {
		return nil, storeErr("totals by admin", err)
	}
	defer rows.Close()

	var totals []core.AdminTotal
	for rows.Next() {
		var (
			admin core.Admin
			id    int64
			nick  sql.NullString
			sum   int64
		)
		if err := rows.Scan(&id, &admin.Name, &nick, &sum); err != nil {
			return nil, storeErr("scan admin total", err)
		}
		admin.ID = core.AdminID(id)
		admin.Nickname = nick.String
		totals = append(totals, core.AdminTotal{
			AdminID: admin.ID,
			Name:    core.DisplayName(admin),
			Total:   core.Money{Cents: sum},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("totals by admin", err)
	}

	core.SortAdminTotals(totals)
	return totals, nil
}

func productTotals(ctx context.Context, tx *sql.Tx) ([]core.ProductTotal, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.id, p.name, SUM(d.quantity), SUM(d.amount)
		FROM debt_lines d
		JOIN products p ON p.id = d.product_id
		GROUP BY p.id`)
	if err != nil {
		return nil, storeErr("totals by product", err)
	}
	defer rows.Close()

	var totals []core.ProductTotal
	for rows.Next() {
		var (
			id  int64
			t   core.ProductTotal
			sum int64
		)
		if err := rows.Scan(&id, &t.Name, &t.Quantity, &sum); err != nil {
			return nil, storeErr("scan product total", err)
		}
		t.ProductID = core.ProductID(id)
		t.Total = core.Money{Cents: sum}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("totals by product", err)
	}

	core.SortProductTotals(totals)
	return totals, nil
}

func adminDetails(ctx context.Context, tx *sql.Tx) ([]core.AdminDetail, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT a.id, a.name, a.nickname, p.id, p.name, SUM(d.quantity), SUM(d.amount)
		FROM debt_lines d
		JOIN admins a ON a.id = d.admin_id
		JOIN products p ON p.id = d.product_id
		GROUP BY a.id, p.id
		ORDER BY a.id`)
	if err != nil {
		return nil, storeErr("detail by admin", err)
	}
	defer rows.Close()

	var details []core.AdminDetail
	index := make(map[core.AdminID]int)
	for rows.Next() {
		var (
			adminID, productID int64
			admin              core.Admin
			nick               sql.NullString
			line               core.ProductLine
			amount             int64
		)
		if err := rows.Scan(&adminID, &admin.Name, &nick, &productID, &line.Name, &line.Quantity, &amount); err != nil {
			return nil, storeErr("scan detail line", err)
		}
		admin.ID = core.AdminID(adminID)
		admin.Nickname = nick.String
		line.ProductID = core.ProductID(productID)
		line.Amount = core.Money{Cents: amount}

		i, ok := index[admin.ID]
		if !ok {
			i = len(details)
			index[admin.ID] = i
			details = append(details, core.AdminDetail{AdminID: admin.ID, Name: core.DisplayName(admin)})
		}
		if details[i].Total.Cents > math.MaxInt64-line.Amount.Cents {
			return nil, fmt.Errorf("detail by admin %d: %w", admin.ID, core.ErrAmountOverflow)
		}
		details[i].Lines = append(details[i].Lines, line)
		details[i].Total = details[i].Total.Add(line.Amount)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("detail by admin", err)
	}

	core.SortAdminDetails(details)
	return details, nil
}

func grandTotal(ctx context.Context, tx *sql.Tx) (core.Money, error) {
	var sum int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(SUM(amount), 0) FROM debt_lines").Scan(&sum); err != nil {
		return core.Money{}, storeErr("grand total", err)
	}
	return core.Money{Cents: sum}, nil
}
