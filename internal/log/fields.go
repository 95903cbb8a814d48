package log

import "github.com/shopspring/decimal"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldLedgerID   = "ledger_id"
	FieldItemCount  = "item_count"
	FieldAmount     = "amount"
	FieldProvenance = "provenance"
	FieldGeneration = "generation"
	FieldSource     = "source"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentLedger    = "ledger"
	ComponentRegistry  = "registry"
	ComponentBudget    = "budget"
	ComponentMerge     = "merge"
	ComponentAggregate = "aggregate"
	ComponentGateway   = "gateway"
	ComponentSession   = "session"
	ComponentNotify    = "notify"
	ComponentHTTP      = "http"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentCache     = "cache"
)

// Operations name the gateway and console calls in log records.
const (
	OpListYears    = "list_years"
	OpFetchBudget  = "fetch_budget"
	OpCreateBudget = "create_budget"
	OpUpdateBudget = "update_budget"
	OpFetchMonthly = "fetch_monthly"
	OpSaveBatch    = "save_batch"
	OpSelectYear   = "select_year"
	OpStartup      = "startup"
	OpShutdown     = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithYear adds the fiscal year.
func (f LogFields) WithYear(year int) LogFields {
	f[FieldYear] = year
	return f
}

// WithMonth adds a one-based month number, the form humans read in logs.
func (f LogFields) WithMonth(month int) LogFields {
	f[FieldMonth] = month
	return f
}

func (f LogFields) WithLedgerID(id string) LogFields {
	f[FieldLedgerID] = id
	return f
}

func (f LogFields) WithItemCount(n int) LogFields {
	f[FieldItemCount] = n
	return f
}

func (f LogFields) WithAmount(d decimal.Decimal) LogFields {
	f[FieldAmount] = d.String()
	return f
}

func (f LogFields) WithGeneration(gen uint64) LogFields {
	f[FieldGeneration] = gen
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, clientIP string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldClientIP] = clientIP
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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
