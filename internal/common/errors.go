package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// Staging protocol errors.
	ErrAuthenticationRequired = errors.New("credentials must be supplied to stage data")
	ErrMalformedDocument      = errors.New("malformed document")
	ErrUnresolvedService      = errors.New("service not resolved in datalink document")
	ErrNoTokens               = errors.New("no authenticated id tokens to stage")
	ErrEndpointMismatch       = errors.New("datalink documents resolved different service endpoints")
	ErrPollTimeout            = errors.New("job did not reach a terminal phase in time")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// MalformedDocumentf builds an ErrMalformedDocument with detail.
func MalformedDocumentf(format string, args ...any) error {
	return NewAppError("MALFORMED_DOCUMENT", fmt.Sprintf(format, args...), ErrMalformedDocument)
}

// ToStatus maps application errors onto gRPC status codes.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoTokens), errors.Is(err, ErrEndpointMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnresolvedService), errors.Is(err, ErrMalformedDocument):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrPollTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// HTTPStatus mirrors ToStatus for the REST surface.
func HTTPStatus(err error) int {
	switch status.Code(ToStatus(err)) {
	case codes.OK:
		return 200
	case codes.Unauthenticated:
		return 401
	case codes.NotFound:
		return 404
	case codes.InvalidArgument:
		return 400
	case codes.FailedPrecondition:
		return 422
	case codes.DeadlineExceeded:
		return 504
	default:
		return 500
	}
}
