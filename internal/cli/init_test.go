package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"debtbook/internal/config"
	"debtbook/internal/core"
	"debtbook/internal/log"
)

func TestStoreOptions(t *testing.T) {
	cfg := &config.Config{
		SQLiteDBPath:              "/tmp/ledger.db",
		SQLiteBusyTimeout:         3 * time.Second,
		SQLiteMaxOpenConns:        2,
		SchemaRepairMissingTables: false,
	}

	opts := StoreOptions(cfg, log.Nop())
	if opts.Path != cfg.SQLiteDBPath || opts.BusyTimeout != 3*time.Second || opts.MaxOpenConns != 2 {
		t.Errorf("StoreOptions() = %+v", opts)
	}
	if opts.RepairMissingTables {
		t.Error("StoreOptions() enabled table repair")
	}
	if opts.Logger == nil {
		t.Error("StoreOptions() logger is nil")
	}
}

func TestLogStoreErrorNamesSchemaObject(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Format: "text", Output: &buf, Component: log.ComponentCLI})

	err := &core.SchemaError{Object: "admins.nickname", Err: errors.New("disk I/O error")}
	LogStoreError(context.Background(), logger, err, "ledger.db")

	out := buf.String()
	for _, want := range []string{"Schema reconciliation failed", "schema_object=admins.nickname", "error_type=schema_error"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLogStoreErrorGeneric(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Format: "json", Output: &buf})

	LogStoreError(context.Background(), logger, errors.New("unable to open database file"), "ledger.db")

	if out := buf.String(); !strings.Contains(out, `"error_type":"database_error"`) {
		t.Errorf("log output = %s, want database_error", out)
	}
}
