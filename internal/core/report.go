package core

import (
	"cmp"
	"slices"
	"time"
)

// AdminTotal is one row of the per-admin report.
type AdminTotal struct {
	AdminID AdminID
	Name    string
	Total   Money
}

// ProductTotal is one row of the per-product report.
type ProductTotal struct {
	ProductID ProductID
	Name      string
	Quantity  int
	Total     Money
}

// ProductLine is one product inside an admin's detail entry.
type ProductLine struct {
	ProductID ProductID
	Name      string
	Quantity  int
	Amount    Money
}

// AdminDetail is an admin's debt broken down by product.
type AdminDetail struct {
	AdminID AdminID
	Name    string
	Lines   []ProductLine
	Total   Money
}

// Report bundles every aggregation taken from one consistent read.
type Report struct {
	GeneratedAt time.Time
	ByAdmin     []AdminTotal
	ByProduct   []ProductTotal
	Detail      []AdminDetail
	GrandTotal  Money
}

// compareAmountThenName orders by descending amount, then ascending name.
func compareAmountThenName(a Money, aName string, b Money, bName string) int {
	if c := cmp.Compare(b.Cents, a.Cents); c != 0 {
		return c
	}
	return cmp.Compare(aName, bName)
}

func SortAdminTotals(ts []AdminTotal) {
	slices.SortStableFunc(ts, func(a, b AdminTotal) int {
		return compareAmountThenName(a.Total, a.Name, b.Total, b.Name)
	})
}

func SortProductTotals(ts []ProductTotal) {
	slices.SortStableFunc(ts, func(a, b ProductTotal) int {
		return compareAmountThenName(a.Total, a.Name, b.Total, b.Name)
	})
}

func SortProductLines(ls []ProductLine) {
	slices.SortStableFunc(ls, func(a, b ProductLine) int {
		return compareAmountThenName(a.Amount, a.Name, b.Amount, b.Name)
	})
}

// SortAdminDetails orders entries like SortAdminTotals and sorts each
// entry's lines as well.
func SortAdminDetails(ds []AdminDetail) {
	for i := range ds {
		SortProductLines(ds[i].Lines)
	}
	slices.SortStableFunc(ds, func(a, b AdminDetail) int {
		return compareAmountThenName(a.Total, a.Name, b.Total, b.Name)
	})
}
