package model

import (
	"errors"
	"fmt"
	"strings"
)

// RetryConfig represents retry configuration for detached remote calls
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms" yaml:"max_delay_ms"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier"`
}

// SetDefaults sets default values for retry configuration
func (rc *RetryConfig) SetDefaults() {
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialDelayMs == 0 {
		rc.InitialDelayMs = 500
	}
	if rc.MaxDelayMs == 0 {
		rc.MaxDelayMs = 10000
	}
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
}

// AckRule is a JSONPath check applied to a post-processing response body
type AckRule struct {
	Expression    string      `json:"expression" yaml:"expression"` // JSONPath expression
	Operator      string      `json:"operator" yaml:"operator"`     // eq, ne, contains, exists, regex
	ExpectedValue interface{} `json:"expected_value" yaml:"expected_value"`
}

// Enabled reports whether a rule was configured
func (r *AckRule) Enabled() bool {
	return r.Expression != ""
}

// Validate validates ack rule configuration
func (r *AckRule) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if !strings.HasPrefix(r.Expression, "$") {
		return errors.New("ack expression must start with $")
	}

	if r.Operator == "" {
		r.Operator = "exists"
	}
	validOperators := map[string]bool{
		"eq": true, "ne": true, "contains": true, "exists": true, "regex": true,
	}
	if !validOperators[strings.ToLower(r.Operator)] {
		return fmt.Errorf("invalid ack operator: %s", r.Operator)
	}
	r.Operator = strings.ToLower(r.Operator)

	return nil
}
