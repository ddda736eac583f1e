package sheets

import (
	"testing"
	"time"

	"debtbook/internal/core"
)

func sampleReport() core.Report {
	return core.Report{
		GeneratedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		ByAdmin: []core.AdminTotal{
			{AdminID: 1, Name: "Ваня", Total: core.Money{Cents: 28000}},
			{AdminID: 2, Name: "Маша", Total: core.Money{Cents: 21000}},
		},
		ByProduct: []core.ProductTotal{
			{ProductID: 1, Name: "RedBull", Quantity: 5, Total: core.Money{Cents: 35000}},
			{ProductID: 2, Name: "Горилла", Quantity: 4, Total: core.Money{Cents: 14000}},
		},
		Detail: []core.AdminDetail{
			{AdminID: 1, Name: "Ваня", Total: core.Money{Cents: 28000}, Lines: []core.ProductLine{
				{ProductID: 1, Name: "RedBull", Quantity: 2, Amount: core.Money{Cents: 14000}},
				{ProductID: 2, Name: "Горилла", Quantity: 4, Amount: core.Money{Cents: 14000}},
			}},
			{AdminID: 2, Name: "Маша", Total: core.Money{Cents: 21000}, Lines: []core.ProductLine{
				{ProductID: 1, Name: "RedBull", Quantity: 3, Amount: core.Money{Cents: 21000}},
			}},
		},
		GrandTotal: core.Money{Cents: 49000},
	}
}

func TestTables(t *testing.T) {
	tables := Tables(sampleReport())
	if len(tables) != 3 {
		t.Fatalf("Tables() returned %d tables, want 3", len(tables))
	}

	admins := tables[0]
	if admins.Name != TableAdmins || len(admins.Rows) != 4 {
		t.Fatalf("admins table = %+v", admins)
	}
	if admins.Rows[0][0] != "Ваня" || admins.Rows[0][1] != 280.0 {
		t.Errorf("first admin row = %v, want [Ваня 280]", admins.Rows[0])
	}
	if admins.Rows[2][0] != "Total" || admins.Rows[2][1] != 490.0 {
		t.Errorf("grand total row = %v, want [Total 490]", admins.Rows[2])
	}
	if admins.Rows[3][1] != "2026-10-18T09:00:00Z" {
		t.Errorf("generated row = %v", admins.Rows[3])
	}

	products := tables[1]
	if products.Rows[1][0] != "Горилла" || products.Rows[1][1] != 4 || products.Rows[1][2] != 140.0 {
		t.Errorf("second product row = %v", products.Rows[1])
	}

	detail := tables[2]
	// Two lines and a total for Ваня, one line and a total for Маша.
	if len(detail.Rows) != 5 {
		t.Fatalf("detail rows = %d, want 5", len(detail.Rows))
	}
	if detail.Rows[0][0] != "Ваня" || detail.Rows[1][0] != "" {
		t.Errorf("admin name should only label the first line: %v / %v", detail.Rows[0], detail.Rows[1])
	}
	if detail.Rows[2][1] != "Total" || detail.Rows[2][3] != 280.0 {
		t.Errorf("admin total row = %v", detail.Rows[2])
	}
}

func TestTablesEmptyReport(t *testing.T) {
	tables := Tables(core.Report{})
	if got := len(tables[0].Rows); got != 2 {
		t.Errorf("admins rows = %d, want total and generated rows only", got)
	}
	if len(tables[1].Rows) != 0 || len(tables[2].Rows) != 0 {
		t.Errorf("expected empty product and detail tables, got %v / %v", tables[1].Rows, tables[2].Rows)
	}
}
