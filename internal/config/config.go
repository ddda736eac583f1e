package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Report backends
const (
	ReportBackendMemory = "memory"
	ReportBackendSheets = "sheets"
	ReportBackendXLSX   = "xlsx"
)

var validReportBackends = []string{ReportBackendMemory, ReportBackendSheets, ReportBackendXLSX}

var validLogFormats = []string{"text", "json", "tint"}

type Config struct {
	// Database
	SQLiteDBPath              string
	SQLiteBusyTimeout         time.Duration
	SQLiteMaxOpenConns        int
	SchemaRepairMissingTables bool

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Report mirror
	ReportBackend  string
	ReportXLSXPath string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetPrefix        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	ResyncInterval time.Duration
	MetricsAddr    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath:              getEnv("SQLITE_DB_PATH", "./data/debtbook.db"),
		SQLiteBusyTimeout:         getEnvDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second),
		SQLiteMaxOpenConns:        getEnvInt("SQLITE_MAX_OPEN_CONNS", 4),
		SchemaRepairMissingTables: getEnvBool("SCHEMA_REPAIR_MISSING_TABLES", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "debtbook"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		ReportBackend:  getEnv("REPORT_BACKEND", ReportBackendMemory),
		ReportXLSXPath: getEnv("REPORT_XLSX_PATH", "./data/report.xlsx"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetPrefix:        getEnv("GOOGLE_SHEET_PREFIX", "Debts"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		ResyncInterval: getEnvDuration("RESYNC_INTERVAL", 5*time.Minute),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SQLiteBusyTimeout < 0 || c.SQLiteBusyTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid SQLite busy timeout %v: must be between 0 and 1 minute", c.SQLiteBusyTimeout))
	}
	if c.SQLiteMaxOpenConns < 1 || c.SQLiteMaxOpenConns > 64 {
		errors = append(errors, fmt.Sprintf("invalid SQLite max open connections %d: must be between 1 and 64", c.SQLiteMaxOpenConns))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate report backend
	if !slices.Contains(validReportBackends, c.ReportBackend) {
		errors = append(errors, fmt.Sprintf("invalid report backend '%s': must be one of %v", c.ReportBackend, validReportBackends))
	}

	switch c.ReportBackend {
	case ReportBackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetPrefix == "" {
			errors = append(errors, "Google sheet prefix is required when using sheets backend")
		}
		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if !hasJSON && hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	case ReportBackendXLSX:
		if c.ReportXLSXPath == "" {
			errors = append(errors, "xlsx report path is required when using xlsx backend")
		} else if !strings.EqualFold(filepath.Ext(c.ReportXLSXPath), ".xlsx") {
			errors = append(errors, fmt.Sprintf("invalid xlsx report path '%s': must end in .xlsx", c.ReportXLSXPath))
		}
	}

	// Validate worker configuration
	if c.ResyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid resync interval %v: must be at least 1 second", c.ResyncInterval))
	} else if c.ResyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid resync interval %v: must be at most 24 hours", c.ResyncInterval))
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid metrics address '%s': %v", c.MetricsAddr, err))
		}
	}

	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
