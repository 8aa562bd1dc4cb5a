package raptapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNetworkUnreachable wraps transport failures: DNS, refused connections,
// timeouts, truncated bodies.
var ErrNetworkUnreachable = errors.New("rapt api unreachable")

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rapt api: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// newError parses {"detail":{"message":...}}, {"detail":"..."} and falls
// back to the status text.
func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}

	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Detail) == 0 {
		return e
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(env.Detail, &obj) == nil && obj.Message != "" {
		e.Message = obj.Message
		return e
	}
	var s string
	if json.Unmarshal(env.Detail, &s) == nil && s != "" {
		e.Message = s
	}
	return e
}
