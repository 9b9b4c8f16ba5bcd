package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldCurrency      = "currency"
	FieldPair          = "pair"
	FieldDate          = "date"
	FieldFrom          = "from"
	FieldTo            = "to"
	FieldObservations  = "observations"
	FieldReport        = "report"
	FieldRows          = "rows"
	FieldStore         = "store"
	FieldSheet         = "sheet"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentFX      = "fx"
	ComponentSource  = "rate_source"
	ComponentStorage = "storage"
	ComponentLedger  = "ledger"
	ComponentReport  = "report"
	ComponentAMQP    = "amqp"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentTrace   = "trace"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpFetch    = "fetch"
	OpRefresh  = "refresh"
	OpSave     = "save"
	OpResolve  = "resolve"
	OpReport   = "report"
	OpExport   = "export"
	OpReload   = "reload"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithReport adds the report name, its target currency and row count.
func (f LogFields) WithReport(name, currency string, rows int) LogFields {
	f[FieldReport] = name
	f[FieldCurrency] = currency
	f[FieldRows] = rows
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
