package form

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// GeneralKey holds messages that cannot be attached to a single field.
const GeneralKey = "_"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// FieldError is a validation failure reported by the remote API.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Errors maps a form field name to the message shown next to it.
type Errors map[string]string

func (e Errors) Add(field, message string) {
	if field == "" {
		field = GeneralKey
	}
	if _, exists := e[field]; exists {
		return
	}
	e[field] = message
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e Errors) Get(field string) string {
	return e[field]
}

func (e Errors) Any() bool {
	return len(e) > 0
}

func (e Errors) General() string {
	return e[GeneralKey]
}

// Fields returns the field names in a stable order.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func ValidEmail(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 254 {
		return false
	}
	return emailPattern.MatchString(value)
}

func MinLen(value string, n int) bool {
	return utf8.RuneCountInString(value) >= n
}
