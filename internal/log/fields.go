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
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldDate          = "date"
	FieldCurrency      = "currency"
	FieldAmount        = "amount"
	FieldRate          = "rate"
	FieldAmountLocal   = "amount_local"
	FieldAttempt       = "attempt"
	FieldDelay         = "delay_ms"
	FieldQuarter       = "quarter"
	FieldInputField    = "field"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentRates     = "rates"
	ComponentProxy     = "proxy"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentTemplate  = "template"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpList      = "list"
	OpSummarize = "summarize"
	OpFetchRate = "fetch_rate"
	OpForward   = "forward"
	OpPublish   = "publish"
	OpSync      = "sync"
	OpValidate  = "validate"
	OpRender    = "render"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeUpstream      = "upstream_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields collects key/value pairs in insertion order so records keep a
// stable layout.
type LogFields []any

func NewFields() LogFields {
	return make(LogFields, 0, 16)
}

func (f LogFields) WithClientIP(ip string) LogFields {
	return append(f, FieldClientIP, ip)
}

func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

func (f LogFields) WithOperation(op string) LogFields {
	return append(f, FieldOperation, op)
}

func (f LogFields) WithTransaction(id int64, date, currency string, amount, rate, amountLocal float64) LogFields {
	return append(f,
		FieldTransactionID, id,
		FieldDate, date,
		FieldCurrency, currency,
		FieldAmount, amount,
		FieldRate, rate,
		FieldAmountLocal, amountLocal)
}

// WithHTTPRequest skips empty user agent and referer values.
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f = append(f, FieldMethod, method, FieldPath, path)
	if query != "" {
		f = append(f, FieldQuery, query)
	}
	if userAgent != "" {
		f = append(f, FieldUserAgent, userAgent)
	}
	if referer != "" {
		f = append(f, FieldReferer, referer)
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	return append(f,
		FieldStatusCode, statusCode,
		FieldDuration, durationMs,
		FieldSuccess, success)
}

func (f LogFields) ToSlice() []any {
	return []any(f)
}
