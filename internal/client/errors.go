package client

import (
	"fmt"
	"net/http"

	"github.com/xxxsen/pagenote/internal/pkg/errcode"
	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
)

// APIError is a non-zero code in the response envelope. It unwraps to the
// matching sentinel from internal/pkg/errors.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case errcode.ErrUnauthorized:
		return appErr.ErrUnauthorized
	case errcode.ErrForbidden:
		return appErr.ErrForbidden
	case errcode.ErrNotFound:
		return appErr.ErrNotFound
	case errcode.ErrInvalid, errcode.ErrInvalidFile:
		return appErr.ErrInvalid
	case errcode.ErrConflict:
		return appErr.ErrConflict
	case errcode.ErrTooMany:
		return appErr.ErrTooMany
	}
	return appErr.ErrInternal
}

// StatusError is a non-2xx HTTP answer.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Message, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) HTTPStatus() int {
	return e.Status
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return appErr.ErrUnauthorized
	case http.StatusForbidden:
		return appErr.ErrForbidden
	case http.StatusNotFound:
		return appErr.ErrNotFound
	}
	return nil
}

func expectOK(res *http.Response, msg string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	return &StatusError{Status: res.StatusCode, Message: msg}
}
