package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
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

// Network marks a transient failure reaching the store; callers are expected
// to offer a retry.
func Network(message string, err error) *AppError {
	return &AppError{
		Code:    "NETWORK_ERROR",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func ConversationNotFound(message string, err error) *AppError {
	return &AppError{
		Code:    "CONVERSATION_NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// MessageSend covers both invalid message content and a failed atomic
// append+patch; the compose box content is never discarded on this error.
func MessageSend(message string, err error) *AppError {
	return &AppError{
		Code:    "MESSAGE_SEND_ERROR",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func OperationFailed(message string, err error) *AppError {
	return &AppError{
		Code:    "OPERATION_FAILED",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Unauthenticated(message string, err error) *AppError {
	return &AppError{
		Code:    "USER_NOT_AUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

// InsufficientPermissions is returned when the caller is not a participant of
// the conversation it is trying to read or write.
func InsufficientPermissions(message string, err error) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_PERMISSIONS",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    "TOO_MANY_REQUESTS",
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     nil,
	}
}

func Unknown(message string, err error) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
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
