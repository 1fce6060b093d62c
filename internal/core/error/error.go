package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SupabaseErrorMessage describes datastore REST failures.
	SupabaseErrorMessage = "datastore request failed"
	// UpstreamUnavailableMessage is returned when the language model cannot be reached.
	UpstreamUnavailableMessage = "agent unavailable"
	// PersistenceErrorMessage describes session persistence failures.
	PersistenceErrorMessage = "session persistence failed"
	// ParseErrorMessage describes model output that could not be parsed.
	ParseErrorMessage = "could not parse model output"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Validation reports a bad request. Never retried.
func Validation(message string) *AppError {
	return New(nil, http.StatusBadRequest, message)
}

// UpstreamUnavailable reports that the language model or classifier call failed or timed out.
func UpstreamUnavailable(err error) *AppError {
	return New(err, http.StatusBadGateway, UpstreamUnavailableMessage)
}

// Persistence reports a datastore failure. Callers usually recover from it locally.
func Persistence(err error) *AppError {
	return New(err, http.StatusBadGateway, PersistenceErrorMessage)
}

// Parse reports model output without a usable structured fragment.
func Parse(err error) *AppError {
	return New(err, http.StatusUnprocessableEntity, ParseErrorMessage)
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError {
	return New(nil, http.StatusNotFound, message)
}

// Unavailable reports a feature whose configuration is absent.
func Unavailable(message string) *AppError {
	return New(nil, http.StatusServiceUnavailable, message)
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapSupabase wraps a datastore REST error with a consistent status code and message.
func WrapSupabase(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, SupabaseErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err, or the system message.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

// IsUpstreamUnavailable reports whether err is an upstream-unavailable AppError.
func IsUpstreamUnavailable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Message == UpstreamUnavailableMessage
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
