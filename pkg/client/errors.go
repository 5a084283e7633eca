package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a failed API call. Message is the server's explanation when it sent one and the
// operation's default message otherwise.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *Error

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// errorBody covers the error shapes the API and its proxies answer with.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func newError(op string, status int, raw []byte, fallback string) *Error {
	return &Error{Op: op, StatusCode: status, Message: messageOf(raw, fallback)}
}

// messageOf picks detail, then message, then error from a JSON error body.
func messageOf(raw []byte, fallback string) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fallback
	}

	for _, candidate := range []string{body.Detail, body.Message, stringOf(body.Error)} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}

	return fallback
}

func stringOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if message, ok := v["message"].(string); ok {
			return message
		}
	}

	return ""
}
