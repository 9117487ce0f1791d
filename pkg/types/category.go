package types

// ErrorCategory classifies a failed interaction, tool call, or stress-test
// question. The set is closed; [ErrorCategory.Valid] reports membership.
type ErrorCategory string

const (
	CategoryToolNotFound        ErrorCategory = "tool-not-found"
	CategoryToolExecutionFailed ErrorCategory = "tool-execution-failed"
	CategoryToolMissingParams   ErrorCategory = "tool-missing-params"
	CategoryNoFunctionCall      ErrorCategory = "no-function-call"
	CategoryIncompleteResponse  ErrorCategory = "incomplete-response"
	CategoryDataNotFound        ErrorCategory = "data-not-found"
	CategoryAPIRateLimit        ErrorCategory = "api-rate-limit"
	CategoryAPIError            ErrorCategory = "api-error"
	CategoryResponseTooLong     ErrorCategory = "response-too-long"
	CategoryResponseTooVague    ErrorCategory = "response-too-vague"
	CategoryCancelled           ErrorCategory = "cancelled"
)

// AllCategories lists every ErrorCategory in a stable order.
var AllCategories = []ErrorCategory{
	CategoryToolNotFound,
	CategoryToolExecutionFailed,
	CategoryToolMissingParams,
	CategoryNoFunctionCall,
	CategoryIncompleteResponse,
	CategoryDataNotFound,
	CategoryAPIRateLimit,
	CategoryAPIError,
	CategoryResponseTooLong,
	CategoryResponseTooVague,
	CategoryCancelled,
}

// Valid reports whether c is one of the known categories.
func (c ErrorCategory) Valid() bool {
	for _, k := range AllCategories {
		if c == k {
			return true
		}
	}
	return false
}

// IsWarning reports whether c describes a quality issue that never fails a run.
func (c ErrorCategory) IsWarning() bool {
	return c == CategoryResponseTooLong || c == CategoryResponseTooVague
}

// ErrorInfo is the error attached to a failed record.
type ErrorInfo struct {
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category"`
}
