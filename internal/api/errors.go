package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/jobson/jobson-cli/internal/models"
)

// ErrSubscriptionClosed ends a websocket subscription the server closed for
// any reason other than an idle timeout. Callers offer to reconnect.
var ErrSubscriptionClosed = errors.New("subscription closed")

// connectionErrorMessage is reported when no HTTP response was received.
const connectionErrorMessage = "Connection error"

// Error is an unsuccessful API call. Code is the HTTP status, or 0 when the
// server could not be reached.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == nethttp.StatusNotFound
}

// IsConnectionError reports whether err means the server was unreachable.
func IsConnectionError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == 0
}

// errorFromResponse builds an Error from a non-2xx response. Bodies that are
// not an API error document become the generic "Error" message.
func errorFromResponse(resp *nethttp.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var msg models.APIErrorMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.Message == "" {
		return &Error{Code: resp.StatusCode, Message: "Error"}
	}
	return &Error{Code: resp.StatusCode, Message: msg.Message}
}
