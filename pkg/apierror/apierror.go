package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for callers that need to branch on the failure category
// rather than on a specific code.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindDelivery    Kind = "delivery"
	KindConflict    Kind = "conflict"
	KindInvalidLink Kind = "invalid_link"
	KindInternal    Kind = "internal"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeWrongPassword      = "WRONG_PASSWORD"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
	CodeConflict           = "CONFLICT"
	CodeInvalidLink        = "INVALID_LINK"
	CodeInternal           = "INTERNAL_ERROR"
)

type APIError struct {
	Kind       Kind                `json:"-"`
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Details    string              `json:"details,omitempty"`
	Fields     map[string][]string `json:"fields,omitempty"`
	HTTPStatus int                 `json:"-"`

	cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.FieldNames(), ","))
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}

	return msg
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// FieldNames returns the keys of Fields in sorted order.
func (e *APIError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Kind: kindForStatus(status), Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Validation builds a field-keyed validation error. Empty message lists are dropped.
func Validation(fields map[string][]string) *APIError {
	cleaned := make(map[string][]string, len(fields))
	for field, messages := range fields {
		if len(messages) > 0 {
			cleaned[field] = messages
		}
	}

	return &APIError{
		Kind:       KindValidation,
		Code:       CodeValidation,
		Message:    "validation failed",
		Fields:     cleaned,
		HTTPStatus: http.StatusBadRequest,
	}
}

func FieldError(field string, messages ...string) *APIError {
	return Validation(map[string][]string{field: messages})
}

// Conflict reports a uniqueness violation. It is answered with 400 and a field map
// so clients render it like any other registration validation failure.
func Conflict(field string, message string) *APIError {
	return &APIError{
		Kind:       KindConflict,
		Code:       CodeConflict,
		Message:    message,
		Fields:     map[string][]string{field: {message}},
		HTTPStatus: http.StatusBadRequest,
	}
}

func InvalidCredentials() *APIError {
	return &APIError{
		Kind:       KindAuth,
		Code:       CodeInvalidCredentials,
		Message:    "no active account found with the given credentials",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func WrongPassword() *APIError {
	return &APIError{
		Kind:       KindAuth,
		Code:       CodeWrongPassword,
		Message:    "wrong password",
		Fields:     map[string][]string{"old_password": {"Wrong password."}},
		HTTPStatus: http.StatusBadRequest,
	}
}

func InvalidToken() *APIError {
	return &APIError{
		Kind:       KindAuth,
		Code:       CodeInvalidToken,
		Message:    "token is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func TokenExpired() *APIError {
	return &APIError{
		Kind:       KindAuth,
		Code:       CodeTokenExpired,
		Message:    "token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Unauthorized(message string) *APIError {
	return &APIError{
		Kind:       KindAuth,
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NotFound(message string, details string) *APIError {
	return &APIError{
		Kind:       KindNotFound,
		Code:       CodeNotFound,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusNotFound,
	}
}

// Delivery wraps a downstream notification failure. The cause is kept for logging
// and never rendered to clients.
func Delivery(message string, cause error) *APIError {
	return &APIError{
		Kind:       KindDelivery,
		Code:       CodeDeliveryFailed,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		cause:      cause,
	}
}

func InvalidLink() *APIError {
	return &APIError{
		Kind:       KindInvalidLink,
		Code:       CodeInvalidLink,
		Message:    "invalid reset link",
		HTTPStatus: http.StatusBadRequest,
	}
}

// KindOf reports the Kind of err, or KindInternal when err carries no APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind != "" {
		return apiErr.Kind
	}
	return KindInternal
}

// CodeOf reports the Code of err, or CodeInternal when err carries no APIError.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeInternal
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindInternal
	}
}
