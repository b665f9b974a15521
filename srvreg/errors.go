package srvreg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ahmadzakiakmal/medichain/repository"
)

// AppError is an error with the HTTP status and message to show the client
type AppError struct {
	StatusCode int
	Message    string
	// Err is logged but never sent to the client
	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func BadRequest(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Message: message}
}

func PayloadTooLarge(message string) *AppError {
	return &AppError{StatusCode: http.StatusRequestEntityTooLarge, Message: message}
}

// Internal hides err behind message
func Internal(message string, err error) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}

// fromRepositoryError maps repository error codes to HTTP statuses
func fromRepositoryError(repoErr *repository.RepositoryError) *AppError {
	switch repoErr.Code {
	case repository.ErrCodeNotFound:
		return NotFound(repoErr.Message)
	case repository.ErrCodeForbidden:
		return Forbidden(repoErr.Message)
	case repository.ErrCodeInvalidState:
		return Conflict(repoErr.Message)
	case repository.ErrCodeInvalidInput, repository.ErrCodeDuplicate:
		return BadRequest(repoErr.Message)
	case repository.PgErrUniqueViolation:
		return &AppError{StatusCode: http.StatusConflict, Message: "Resource already exists", Err: repoErr}
	case repository.PgErrForeignKeyViolation,
		repository.PgErrCheckViolation,
		repository.PgErrNotNullViolation,
		repository.PgErrNumericValueOutOfRange,
		repository.PgErrInvalidDatetimeFormat:
		return &AppError{StatusCode: http.StatusBadRequest, Message: "Invalid data", Err: repoErr}
	default:
		return Internal("Internal server error", repoErr)
	}
}

// errorResponse renders err as the error envelope. Unknown errors become a 500.
func (sr *ServiceRegistry) errorResponse(err error) *Response {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal("Internal server error", err)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		sr.logger.Error("Request failed", "status", appErr.StatusCode, "message", appErr.Message, "err", appErr.Err)
	}

	return errorEnvelope(appErr.StatusCode, appErr.Message)
}
