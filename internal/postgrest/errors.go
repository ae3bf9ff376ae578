package postgrest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error is the error body PostgREST returns for failed requests.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func parseError(status int, body []byte) error {
	e := &Error{StatusCode: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}
