package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError is one problem with one configuration key.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects every problem so they can be reported together.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Err returns nil when nothing was recorded.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s", v.ErrorString())
}

func (v *Validator) ValidateRequired(key, value string) {
	if value == "" {
		v.AddError(key, "required setting not set")
	}
}

func (v *Validator) ValidateURL(key, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
}

// ValidateAddr accepts ":port" or "host:port".
func (v *Validator) ValidateAddr(key, value string) {
	if value == "" {
		return
	}

	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.AddError(key, "must be host:port or :port")
		return
	}
	port, err := strconv.Atoi(value[i+1:])
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// ValidateAddrOrPrefix accepts an IP address or a CIDR range.
func (v *Validator) ValidateAddrOrPrefix(key, value string) {
	if value == "" {
		return
	}
	if strings.Contains(value, "/") {
		if _, err := netip.ParsePrefix(value); err != nil {
			v.AddError(key, fmt.Sprintf("%q is not a CIDR range", value))
		}
		return
	}
	if _, err := netip.ParseAddr(value); err != nil {
		v.AddError(key, fmt.Sprintf("%q is not an IP address", value))
	}
}

func (v *Validator) ValidateMinLength(key, value string, minLen int) {
	if value == "" {
		return
	}

	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *Validator) ValidatePositive(key string, value int64) {
	if value <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

func (v *Validator) ValidateEmailAddress(key, value string) {
	if value == "" {
		return
	}

	if !strings.Contains(value, "@") || !strings.Contains(value, ".") {
		v.AddError(key, "must be a valid email address")
	}
}
