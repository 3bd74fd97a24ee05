package apiclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phillip-england/staffsuite/internal/form"
)

var (
	// ErrUnauthenticated means there is no usable bearer token, or the remote
	// API refused the one that was sent.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError carries the field failures the remote API reported.
type ValidationError struct {
	Status int
	Fields []form.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Rule)
	}
	return fmt.Sprintf("validation failed (%d): %s", e.Status, strings.Join(parts, ", "))
}

// UpstreamError covers transport failures and unexpected remote statuses.
// Status is zero when the request never got a response.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return "upstream unavailable: " + e.Err.Error()
	case e.Message != "":
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("upstream status %d", e.Status)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// UserMessage returns text that is safe to show in the dashboard.
func UserMessage(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials. Check them and try again."
	case errors.As(err, &upstream):
		if upstream.Status == 0 {
			return "The employee service is unavailable. Try again shortly."
		}
		if strings.TrimSpace(upstream.Message) != "" {
			return upstream.Message
		}
		return "The employee service returned an unexpected error."
	default:
		return "Something went wrong. Try again."
	}
}
