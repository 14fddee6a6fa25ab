package validate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Schema is a set of declarative per-field rules, interpreted by Validate.
// It replaces ad-hoc per-handler checks so that all form endpoints share
// one validation mechanism.
type Schema []Field

type Field struct {
	Name     string
	Required bool
	MinLen   int
	MaxLen   int
	Pattern  *regexp.Regexp
	// PatternMessage is used when Pattern does not match
	PatternMessage string
	// Checks run after the built-in rules, only on non-empty values
	Checks []Check
}

type Check struct {
	Fn      func(value string) bool
	Message string
}

// FieldErrors maps a field name to its validation messages.
// It implements error and marshals to field-level JSON.
type FieldErrors map[string][]string

func (fe FieldErrors) Error() string {
	var sb strings.Builder
	for field, messages := range fe {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", field, strings.Join(messages, ", ")))
	}
	return sb.String()
}

func (fe FieldErrors) JSON() []byte {
	resp, err := json.Marshal(map[string]FieldErrors{"errors": fe})
	if err != nil {
		// a map of strings always marshals
		return []byte(`{"errors":{}}`)
	}
	return resp
}

func (fe FieldErrors) add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Validate interprets the schema against form / query values and
// returns nil when every rule passes.
func (s Schema) Validate(values url.Values) FieldErrors {
	fieldErrs := FieldErrors{}

	for _, f := range s {
		value := values.Get(f.Name)

		if value == "" {
			if f.Required {
				fieldErrs.add(f.Name, fmt.Sprintf("%s is required", f.Name))
			}
			continue
		}

		if f.MinLen > 0 && len(value) < f.MinLen {
			fieldErrs.add(f.Name, fmt.Sprintf("%s must be at least %d characters", f.Name, f.MinLen))
		}
		if f.MaxLen > 0 && len(value) > f.MaxLen {
			fieldErrs.add(f.Name, fmt.Sprintf("%s must be less than %d characters", f.Name, f.MaxLen))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(value) {
			msg := f.PatternMessage
			if msg == "" {
				msg = fmt.Sprintf("%s is invalid", f.Name)
			}
			fieldErrs.add(f.Name, msg)
		}

		for _, check := range f.Checks {
			if !check.Fn(value) {
				fieldErrs.add(f.Name, check.Message)
			}
		}
	}

	if len(fieldErrs) == 0 {
		return nil
	}
	return fieldErrs
}
