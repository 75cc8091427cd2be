// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package params

import (
	"net/http"

	"github.com/juju/errors"
)

// Error is the wire form of any request failure. The code selects the HTTP
// status and lets clients translate back to a typed error.
type Error struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorCode returns the wire code.
func (e *Error) ErrorCode() string {
	return e.Code
}

// The set of wire error codes. They partition the error taxonomy of the
// whole service; everything unlisted is an internal error.
const (
	CodeBadRequest     = "bad request"
	CodeNotFound       = "not found"
	CodeNotImplemented = "not implemented"
	CodeUnauthorized   = "unauthorized access"
	CodeTimeout        = "timeout"
	CodeAlreadyExists  = "already exists"
	CodeUnavailable    = "unavailable"
)

// ErrCode returns the wire code of an error, traversing Trace/Annotate
// wrappers, or "" for errors without one.
func ErrCode(err error) string {
	type coder interface {
		ErrorCode() string
	}
	if e, ok := errors.Cause(err).(coder); ok {
		return e.ErrorCode()
	}
	return ""
}

// ServerError converts any error into its wire form. Typed errors keep their
// identity through the code; everything else becomes a plain internal error.
func ServerError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := errors.Cause(err).(*Error); ok {
		return e
	}
	var code string
	switch {
	case errors.Is(err, errors.BadRequest), errors.Is(err, errors.NotValid):
		code = CodeBadRequest
	case errors.Is(err, errors.NotFound):
		code = CodeNotFound
	case errors.Is(err, errors.NotImplemented), errors.Is(err, errors.NotSupported):
		code = CodeNotImplemented
	case errors.Is(err, errors.Unauthorized), errors.Is(err, errors.Forbidden):
		code = CodeUnauthorized
	case errors.Is(err, errors.Timeout):
		code = CodeTimeout
	case errors.Is(err, errors.AlreadyExists):
		code = CodeAlreadyExists
	case errors.Is(err, errors.NotYetAvailable):
		code = CodeUnavailable
	}
	return &Error{
		Message: err.Error(),
		Code:    code,
	}
}

// ErrorStatus maps a wire code to the HTTP status the handler responds with.
func ErrorStatus(code string) int {
	switch code {
	case CodeBadRequest, CodeNotFound, CodeNotImplemented:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// TranslateWellKnownError turns a wire error back into the typed error it
// was built from, where one exists.
func TranslateWellKnownError(err error) error {
	code := ErrCode(err)
	switch code {
	case CodeBadRequest:
		return errors.NewBadRequest(nil, err.Error())
	case CodeNotFound:
		return errors.NewNotFound(nil, err.Error())
	case CodeNotImplemented:
		return errors.NewNotImplemented(nil, err.Error())
	case CodeUnauthorized:
		return errors.NewUnauthorized(nil, err.Error())
	case CodeTimeout:
		return errors.NewTimeout(nil, err.Error())
	case CodeAlreadyExists:
		return errors.NewAlreadyExists(nil, err.Error())
	case CodeUnavailable:
		return errors.NewNotYetAvailable(nil, err.Error())
	}
	return err
}
