package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrOperatorReadOnly is returned before any network call when an operator
	// issues PUT or DELETE. The backend still has to enforce this itself.
	ErrOperatorReadOnly = errors.New("operators are not allowed to modify or delete records")
	ErrSessionExpired   = errors.New("session expired, please log in again")
	ErrNoAccessToken    = errors.New("response did not contain an access token")
	ErrNotJSONObject    = errors.New("payload must encode to a JSON object")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("request failed: %s %s (status: %d %s)", e.Method, e.Path, e.StatusCode, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// SessionError means the session can't be recovered by refreshing. The client
// has already cleared credentials and navigated to the login page.
type SessionError struct {
	StatusCode int
	Err        error
}

func (e *SessionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token refresh failed (status: %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.StatusCode
	}
	return 0
}

func newHTTPError(method, path string, res *resty.Response) *HTTPError {
	code := res.StatusCode()
	status := http.StatusText(code)
	body := strings.TrimSpace(string(res.Body()))
	if body == "" {
		body = status
	}
	return &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: code,
		Status:     status,
		Body:       body,
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
