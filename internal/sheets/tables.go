package sheets

import (
	"time"

	"debtbook/internal/core"
)

// Table names shared by every sink.
const (
	TableAdmins   = "Admins"
	TableProducts = "Products"
	TableDetail   = "Detail"
)

// Table is one sheet worth of report data. Cells are strings, ints or
// float64 amounts in major units.
type Table struct {
	Name   string
	Header []any
	Rows   [][]any
}

// Tables lays a report out as the three sheets written by every sink. The
// admins table ends with the grand total and the generation time; the detail
// table closes each admin block with that admin's total.
func Tables(rep core.Report) []Table {
	admins := Table{Name: TableAdmins, Header: []any{"Admin", "Total"}}
	for _, a := range rep.ByAdmin {
		admins.Rows = append(admins.Rows, []any{a.Name, amount(a.Total)})
	}
	admins.Rows = append(admins.Rows,
		[]any{"Total", amount(rep.GrandTotal)},
		[]any{"Generated", rep.GeneratedAt.UTC().Format(time.RFC3339)},
	)

	products := Table{Name: TableProducts, Header: []any{"Product", "Quantity", "Total"}}
	for _, p := range rep.ByProduct {
		products.Rows = append(products.Rows, []any{p.Name, p.Quantity, amount(p.Total)})
	}

	detail := Table{Name: TableDetail, Header: []any{"Admin", "Product", "Quantity", "Amount"}}
	for _, d := range rep.Detail {
		for i, l := range d.Lines {
			name := ""
			if i == 0 {
				name = d.Name
			}
			detail.Rows = append(detail.Rows, []any{name, l.Name, l.Quantity, amount(l.Amount)})
		}
		detail.Rows = append(detail.Rows, []any{"", "Total", "", amount(d.Total)})
	}

	return []Table{admins, products, detail}
}

func amount(m core.Money) float64 {
	return m.Decimal().InexactFloat64()
}
