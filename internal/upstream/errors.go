// README: Typed errors for non-2xx travel backend answers.
package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx answer from the travel backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the backend's own explanation, empty if it gave none.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// UserMessage is the text to surface to the caller.
func (e *APIError) UserMessage() string { return e.Message }

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    extractMessage(body),
	}
}

// extractMessage pulls "error", "message" or "detail" out of a JSON error body.
// DRF-style field errors ({"field": ["msg"]}) yield their first message.
func extractMessage(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, k := range []string{"error", "message", "detail"} {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	for _, v := range obj {
		if list, ok := v.([]any); ok && len(list) > 0 {
			if s, ok := list[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
