package tools

// Status indicates whether a tool invocation succeeded.
type Status string

// Tool invocation statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorCode classifies tool errors so the model can understand and correct them.
type ErrorCode string

// Tool error codes.
const (
	ErrCodeSecurity    ErrorCode = "SecurityError"
	ErrCodeNotFound    ErrorCode = "NotFound"
	ErrCodePermission  ErrorCode = "PermissionDenied"
	ErrCodeIO          ErrorCode = "IOError"
	ErrCodeExecution   ErrorCode = "ExecutionError"
	ErrCodeTimeout     ErrorCode = "TimeoutError"
	ErrCodeValidation  ErrorCode = "ValidationError"
	ErrCodeRateLimited ErrorCode = "RateLimited"
)

// Result is the uniform envelope every tool handler returns. Failures are
// reported in-band via Status and Error rather than as Go errors, so the
// model sees a structured, correctable message instead of a broken call.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error carries the structured failure detail inside a Result.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface.
// Uses pointer receiver to avoid unnecessary copying and ensure consistency.
func (e *Error) Error() string {
	if e == nil {
		return "<nil Error>"
	}
	if e.Code == "" && e.Message == "" {
		return "<empty Error>"
	}
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// errorResult builds an error Result with matching top-level message.
func errorResult(code ErrorCode, message string, details any) Result {
	return Result{
		Status:  StatusError,
		Message: message,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
