package log

import (
	"slices"
	"time"
)

// Field names shared by every component.
const (
	FieldComponent    = "component"
	FieldOperation    = "operation"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldExpenseID    = "expense_id"
	FieldAmount       = "amount"
	FieldCurrency     = "currency"
	FieldCategory     = "category"
	FieldDate         = "date"
	FieldEntryCount   = "entry_count"
	FieldTextLength   = "text_length"
	FieldProvider     = "provider"
	FieldModel        = "model"
	FieldUpstreamCode = "upstream_status"
	FieldAttempt      = "attempt"
	FieldSheetsRef    = "sheets_ref"
)

// Component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentExpense = "expense"
	ComponentExtract = "extract"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operation names.
const (
	OpCreate   = "create"
	OpParse    = "parse"
	OpExtract  = "extract"
	OpSync     = "sync"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields collects attributes for one log line.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError sets the error field. A nil error leaves f unchanged.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithExpense adds the saved expense. The amount is its decimal string so no
// precision is lost.
func (f LogFields) WithExpense(id, amount, currency, category, date string) LogFields {
	f[FieldExpenseID] = id
	f[FieldAmount] = amount
	f[FieldCurrency] = currency
	f[FieldCategory] = category
	f[FieldDate] = date
	return f
}

// WithExtraction adds the per-call summary of one extraction. The input text
// itself is never logged, only its length.
func (f LogFields) WithExtraction(provider string, textLength int, took time.Duration) LogFields {
	f[FieldProvider] = provider
	f[FieldTextLength] = textLength
	f[FieldDuration] = took.Milliseconds()
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// ToSlice flattens f into slog key/value pairs, sorted by key so lines are
// stable across runs.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
