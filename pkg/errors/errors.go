package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
	CodeTooManyRequests     = "TOO_MANY_REQUESTS"
	CodeConflict            = "CONFLICT"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeResolutionFailed    = "RESOLUTION_FAILED"
	CodeEmptyMessage        = "EMPTY_MESSAGE"
	CodeSendFailed          = "SEND_FAILED"
	CodeSubscriptionDropped = "SUBSCRIPTION_DROPPED"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string, waitTime interface{}) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
		Details: map[string]interface{}{"wait": fmt.Sprint(waitTime)},
	}
}

// Conflict reports a uniqueness violation in a store. The resolver absorbs it;
// it should never reach an end user.
func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// StoreUnavailable is transient and safe to retry with backoff.
func StoreUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func ResolutionFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeResolutionFailed,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func EmptyMessage() *AppError {
	return &AppError{
		Code:    CodeEmptyMessage,
		Message: "Message text cannot be empty",
		Status:  http.StatusBadRequest,
	}
}

// SendFailed keeps the unsent text in Details so the caller can restore the input.
func SendFailed(text string, err error) *AppError {
	return &AppError{
		Code:    CodeSendFailed,
		Message: "Failed to send message",
		Status:  http.StatusBadGateway,
		Details: map[string]interface{}{"text": text},
		Err:     err,
	}
}

func SubscriptionDropped(message string, err error) *AppError {
	return &AppError{
		Code:    CodeSubscriptionDropped,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code returns the AppError code of err, or CodeInternal for foreign errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// WithDetail attaches a detail that is rendered alongside the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// UnsentText extracts the message text carried by a failed send, so the
// caller can put it back into the input.
func UnsentText(err error) (string, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "", false
	}
	text, ok := appErr.Details["text"].(string)
	return text, ok
}
