package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"nodue/internal/attendance"
	"nodue/internal/auth"
	"nodue/internal/recognizer"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string             { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError         { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrUnavailable(msg string) *APIError     { return &APIError{Code: CodeUnavailable, Message: msg} }
func ErrUnauthenticated(msg string) *APIError { return &APIError{Code: CodeUnauthenticated, Message: msg} }

// fromError maps domain errors onto API errors. Unknown errors are logged and
// reported without detail.
func fromError(err error) *APIError {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	switch {
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrFutureDate),
		errors.Is(err, attendance.ErrInvalidSlot),
		errors.Is(err, attendance.ErrEmptyImport),
		errors.Is(err, attendance.ErrSubjectRequired),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, recognizer.ErrEmptyExtraction):
		return &APIError{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, attendance.ErrNoProfile),
		errors.Is(err, attendance.ErrSlotNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, auth.ErrAccountExists):
		return &APIError{Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, auth.ErrAccountNotFound),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrWrongTokenType):
		return &APIError{Code: CodeUnauthenticated, Message: err.Error()}
	case errors.Is(err, recognizer.ErrDisabled):
		return &APIError{Code: CodeUnavailable, Message: err.Error()}
	}
	log.Printf("internal error: %v", err)
	return &APIError{Code: CodeInternal, Message: "internal error"}
}

func toHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errDTO struct {
	Error *APIError `json:"error"`
}
