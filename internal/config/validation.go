// validation.go - Environment validation for Moard.
//
// Collects every configuration problem at startup so the process fails
// once with a complete list instead of one variable at a time.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// AddError records a validation error for field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any error was recorded.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the recorded errors in order.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Err returns nil when valid, otherwise a single error listing every problem.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// Required records an error when value is empty.
func (v *Validator) Required(key, value string) {
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// MongoURI checks the connection string scheme.
func (v *Validator) MongoURI(key, value string) {
	if value == "" {
		return
	}
	if !strings.HasPrefix(value, "mongodb://") && !strings.HasPrefix(value, "mongodb+srv://") {
		v.AddError(key, "must be a mongodb:// or mongodb+srv:// connection string")
	}
}

// Port validates a TCP port number, with or without a leading colon.
func (v *Validator) Port(key, value string) int {
	port, err := strconv.Atoi(strings.TrimPrefix(value, ":"))
	if err != nil {
		v.AddError(key, "port must be a number")
		return 0
	}
	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
		return 0
	}
	return port
}

// MinLength validates a minimum string length.
func (v *Validator) MinLength(key, value string, minLen int) {
	if value == "" {
		return
	}
	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

// Enum validates that value is one of allowed.
func (v *Validator) Enum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// PositiveInt parses a positive integer.
func (v *Validator) PositiveInt(key, value string) int64 {
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return 0
	}
	if num <= 0 {
		v.AddError(key, "must be a positive integer")
		return 0
	}
	return num
}

// NonNegativeInt parses an integer that may be zero.
func (v *Validator) NonNegativeInt(key, value string) int64 {
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return 0
	}
	if num < 0 {
		v.AddError(key, "must not be negative")
		return 0
	}
	return num
}

// Duration parses a Go duration string such as "336h".
func (v *Validator) Duration(key, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.AddError(key, "must be a valid duration (e.g. 336h, 30m)")
		return 0
	}
	if d <= 0 {
		v.AddError(key, "must be a positive duration")
		return 0
	}
	return d
}

// Bool parses a boolean.
func (v *Validator) Bool(key, value string) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		v.AddError(key, "must be true or false")
		return false
	}
	return b
}
