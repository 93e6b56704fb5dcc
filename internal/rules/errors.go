package rules

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	ErrCodeInvalidThreshold      ErrorCode = "INVALID_THRESHOLD"
	ErrCodeInvalidPenalty        ErrorCode = "INVALID_PENALTY"
	ErrCodeInvalidRateTable      ErrorCode = "INVALID_RATE_TABLE"
	ErrCodeConflictingRatePolicy ErrorCode = "CONFLICTING_RATE_POLICY"
	ErrCodeMissingRules          ErrorCode = "MISSING_RULES"
	ErrCodeCUE                   ErrorCode = "CUE_ERROR"
)

// ConfigError is a rule table problem detected at load time.
type ConfigError struct {
	Code    ErrorCode
	Field   string
	Message string

	// Pos is set when the error came from a CUE source file.
	Pos token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newConfigError(code ErrorCode, field, message string) *ConfigError {
	return &ConfigError{Code: code, Field: field, Message: message}
}

// IsConflictingRatePolicy reports whether err (or anything it wraps) is the
// fast-rate policy conflict.
func IsConflictingRatePolicy(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeConflictingRatePolicy
	}
	return false
}
