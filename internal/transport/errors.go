package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches every error that tore the session down:
	// 401/403 responses, deactivation and local token expiry.
	ErrUnauthorized = errors.New("transport: unauthorized")
	// ErrDeactivated matches responses whose message says the account is off.
	ErrDeactivated = errors.New("transport: account deactivated")
	// ErrSessionExpired is returned without a network call when the held
	// token has already expired.
	ErrSessionExpired = fmt.Errorf("transport: session expired: %w", ErrUnauthorized)
)

const maxBodyInError = 300

// APIError is a non-2xx backend response.
type APIError struct {
	Method      string
	Path        string
	Status      int
	Message     string
	Body        string
	Deactivated bool
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("vetclinic API %s %s returned %d: %s", e.Method, e.Path, e.Status, msg)
}

// Is lets callers use errors.Is with ErrUnauthorized and ErrDeactivated.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrDeactivated:
		return e.Deactivated
	case ErrUnauthorized:
		return e.Deactivated || IsAuthStatus(e.Status)
	}
	return false
}

// IsAuthStatus reports 401 and 403.
func IsAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// NotFound reports a 404 response.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// ServerMessage extracts the user-facing message from err, or returns
// fallback when err carries none.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

// extractMessage pulls the message out of an error body. JSON bodies are
// searched for the usual keys; anything else is used as plain text.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "mensaje", "error", "detail", "msg"} {
			if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	if len(trimmed) > maxBodyInError {
		trimmed = trimmed[:maxBodyInError]
	}
	return trimmed
}

// DeactivationMatcher recognizes "account deactivated" messages from a
// configurable phrase set, case-insensitively.
type DeactivationMatcher struct {
	phrases []string
}

// NewDeactivationMatcher normalizes phrases; blank entries are ignored.
func NewDeactivationMatcher(phrases []string) DeactivationMatcher {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return DeactivationMatcher{phrases: out}
}

// Matches reports whether msg contains any deny phrase.
func (m DeactivationMatcher) Matches(msg string) bool {
	msg = strings.ToLower(msg)
	if msg == "" {
		return false
	}
	for _, p := range m.phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
