package backend

import (
	"fmt"

	"debtbook/internal/config"
)

// FromAppConfig converts the application config to sink config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	sinkType := SinkType(appConfig.ReportBackend)
	if !sinkType.IsValid() {
		return Config{}, fmt.Errorf("invalid report backend in config: %s", appConfig.ReportBackend)
	}

	return Config{
		Type: sinkType,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetPrefix:        appConfig.GoogleSheetPrefix,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		XLSXPath: appConfig.ReportXLSXPath,
	}, nil
}

// Validate validates the sink configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid report backend: %s", c.Type)
	}

	switch c.Type {
	case SheetsSink:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("either GoogleServiceAccountJSON or GoogleServiceAccountFile must be provided for sheets backend")
		}
	case XLSXSink:
		if c.XLSXPath == "" {
			return fmt.Errorf("xlsx path is required for xlsx backend")
		}
	case MemorySink:
		// Nothing to configure
	}

	return nil
}

// SinkTypes returns all valid sink types
func SinkTypes() []SinkType {
	return []SinkType{MemorySink, SheetsSink, XLSXSink}
}
