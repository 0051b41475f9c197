package attendance

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeUnprocessable   Code = "UNPROCESSABLE"
	CodeInternal        Code = "INTERNAL"
)

// APIError is the error body returned by every handler.
type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrForbidden(msg string) *APIError { return &APIError{Code: CodeForbidden, Message: msg} }
func ErrInternal(msg string) *APIError  { return &APIError{Code: CodeInternal, Message: msg} }

// NotEnrolledError lists submitted students without an active enrollment.
type NotEnrolledError struct {
	StudentIDs []int64
}

func (e *NotEnrolledError) Error() string {
	return fmt.Sprintf("students not enrolled in this course: %v", e.StudentIDs)
}

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeForbidden:
			return http.StatusForbidden
		case CodeUnprocessable:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// errorBody hides internal details from clients.
func errorBody(err error) *APIError {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	return ErrInternal("internal error")
}
