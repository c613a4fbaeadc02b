package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes double as the machine-readable "error" value in webhook responses.
var (
	ErrMissingHeaders   = NewError("missing_headers", "required signature headers are missing", http.StatusBadRequest)
	ErrInvalidSignature = NewError("invalid_signature", "request signature is invalid or expired", http.StatusUnauthorized)
	ErrInvalidJSON      = NewError("invalid_json", "request body is not valid JSON", http.StatusBadRequest)
	ErrInvalidPayload   = NewError("invalid_payload", "request payload is missing required fields", http.StatusBadRequest)
	ErrPayloadTooLarge  = NewError("payload_too_large", "request body exceeds the size limit", http.StatusRequestEntityTooLarge)
	ErrInvalidState     = NewError("invalid_state", "oauth state is invalid or expired", http.StatusBadRequest)
	ErrAccessDenied     = NewError("access_denied", "the installation was not authorized", http.StatusBadRequest)
	ErrNotFound         = NewError("not_found", "resource not found", http.StatusNotFound)
	ErrValidation       = NewError("validation_error", "validation failed", http.StatusBadRequest)
	ErrUnauthorized     = NewError("unauthorized", "unauthorized", http.StatusUnauthorized)
	ErrBadGateway       = NewError("provider_error", "upstream provider rejected the request", http.StatusBadGateway)
	ErrInternal         = NewError("internal_error", "internal server error", http.StatusInternalServerError)
	ErrUnavailable      = NewError("service_unavailable", "service unavailable", http.StatusServiceUnavailable)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that errors.Is(err, ErrInvalidJSON) holds for
// copies produced by the With* builders.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.Status >= http.StatusInternalServerError
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders the client-facing body. Causes and details are
// never included; they may carry internal state.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal
	}

	return map[string]interface{}{
		"ok":    false,
		"error": appErr.Code,
	}
}
