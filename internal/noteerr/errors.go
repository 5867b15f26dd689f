// Package noteerr defines the structured error taxonomy shared by every
// layer of the bridge. Errors carry a category, an optional subcategory,
// a user-facing message, and an HTTP-style status used to derive JSON-RPC
// error codes at the protocol boundary.
package noteerr

import (
	"errors"
	"fmt"
)

// Category is the top-level error discriminant.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryBackend    Category = "backend"
	CategoryTimeout    Category = "timeout"
	CategoryDb         Category = "db"
	CategoryInternal   Category = "internal"
)

// Subcategory refines Backend errors.
type Subcategory string

const (
	SubConflict        Subcategory = "conflict"
	SubRateLimit       Subcategory = "rate_limit"
	SubValidationError Subcategory = "validation_error"
	SubUnavailable     Subcategory = "unavailable"
	SubTimeout         Subcategory = "timeout"
	SubUnknown         Subcategory = "unknown"
)

// Error is the tagged error type used across the bridge.
type Error struct {
	Category    Category
	Subcategory Subcategory
	Message     string // user-facing
	Hint        string // optional resolution hint
	HTTPStatus  int    // originating HTTP status, 0 when not HTTP-borne
	Data        map[string]any
	Err         error // wrapped cause
}

func (e *Error) Error() string {
	if e.Subcategory != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Subcategory, e.Message, e.Err)
		}
		return fmt.Sprintf("%s/%s: %s", e.Category, e.Subcategory, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is supports errors.Is matching on category (and subcategory when the
// target sets one).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	return t.Subcategory == "" || t.Subcategory == e.Subcategory
}

// JSONRPC maps the error to a JSON-RPC error code, message, and data.
func (e *Error) JSONRPC() (int, string, map[string]any) {
	code := -32000
	switch e.Category {
	case CategoryValidation:
		code = -32602
	case CategoryNotFound:
		code = -32602
	}

	data := map[string]any{
		"category": string(e.Category),
	}
	if e.Subcategory != "" {
		data["subcategory"] = string(e.Subcategory)
	}
	if e.Hint != "" {
		data["hint"] = e.Hint
	}
	if e.HTTPStatus != 0 {
		data["httpStatus"] = e.HTTPStatus
	}
	for k, v := range e.Data {
		data[k] = v
	}
	return code, e.Message, data
}

// Auth builds a credential-failure error. Not retried.
func Auth(message string, cause error) *Error {
	return &Error{Category: CategoryAuth, Message: message, HTTPStatus: 401, Err: cause}
}

// Validation builds a payload-validation error carrying the field path.
func Validation(message string) *Error {
	return &Error{Category: CategoryValidation, Message: message, HTTPStatus: 400}
}

// Validationf builds a formatted validation error.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// NotFound builds a missing-note error carrying the identifier.
func NotFound(id string) *Error {
	return &Error{
		Category:   CategoryNotFound,
		Message:    fmt.Sprintf("Note not found: %s", id),
		HTTPStatus: 404,
		Data:       map[string]any{"id": id},
	}
}

// Backend builds a remote-originated error.
func Backend(sub Subcategory, message string, httpStatus int, cause error) *Error {
	e := &Error{
		Category:    CategoryBackend,
		Subcategory: sub,
		Message:     message,
		HTTPStatus:  httpStatus,
		Err:         cause,
	}
	if sub == SubConflict {
		e.Hint = "re-fetch and re-apply"
	}
	return e
}

// Timeout builds a transport-layer timeout error.
func Timeout(message string, cause error) *Error {
	return &Error{Category: CategoryTimeout, Message: message, HTTPStatus: 504, Err: cause}
}

// Db builds a local-store error.
func Db(message string, cause error) *Error {
	return &Error{Category: CategoryDb, Message: message, HTTPStatus: 500, Err: cause}
}

// Internal builds an invariant-violation error.
func Internal(message string, cause error) *Error {
	return &Error{Category: CategoryInternal, Message: message, HTTPStatus: 500, Err: cause}
}

// As extracts a *Error from err, or wraps err as Internal when it is not one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err.Error(), err)
}

// IsCategory reports whether err is a *Error with the given category.
func IsCategory(err error, c Category) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == c
}

// IsConflict reports whether err is a Backend conflict.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == CategoryBackend && e.Subcategory == SubConflict
}
