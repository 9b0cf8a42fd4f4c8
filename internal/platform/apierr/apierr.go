package apierr

import (
	"fmt"
	"net/http"
)

// Error pins an HTTP status and code onto err. Transport layers check for it
// before falling back to sentinel mapping.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Unavailable marks a dependency that is not configured or not reachable.
func Unavailable(code string, err error) *Error {
	return New(http.StatusServiceUnavailable, code, err)
}
