package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldAdminID     = "admin_id"
	FieldProductID   = "product_id"
	FieldDebtLineID  = "debt_line_id"
	FieldProductName = "product_name"
	FieldQuantity    = "quantity"
	FieldAmountCents = "amount_cents"
	FieldNickname    = "nickname"
	FieldObject      = "schema_object"
	FieldEventKind   = "event_kind"
	FieldEventID     = "event_id"
	FieldReportRef   = "report_ref"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentSchema  = "schema"
	ComponentReport  = "report"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentMetrics = "metrics"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpRegisterAdmin = "register_admin"
	OpAddProduct    = "add_product"
	OpUpdatePrice   = "update_price"
	OpDeleteProduct = "delete_product"
	OpRecordDebt    = "record_debt"
	OpSettle        = "settle"
	OpSetNickname   = "set_nickname"
	OpClearNickname = "clear_nickname"
	OpEnsureSchema  = "ensure_schema"
	OpReport        = "report"
	OpSync          = "sync"
	OpShutdown      = "shutdown"
	OpStartup       = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeSchema        = "schema_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithDebt adds debt line fields
func (f LogFields) WithDebt(adminID, productID int64, quantity int, amountCents int64) LogFields {
	f[FieldAdminID] = adminID
	f[FieldProductID] = productID
	f[FieldQuantity] = quantity
	f[FieldAmountCents] = amountCents
	return f
}

// WithProduct adds product fields
func (f LogFields) WithProduct(productID int64, name string) LogFields {
	f[FieldProductID] = productID
	f[FieldProductName] = name
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
