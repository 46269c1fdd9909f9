// Package evaluator checks JSON replies against a configured acknowledgement rule.
package evaluator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"github.com/oliveagle/jsonpath"
)

// Result is the outcome of checking one reply
type Result struct {
	Expression     string      `json:"expression"`
	Operator       string      `json:"operator"`
	ExpectedValue  interface{} `json:"expected_value,omitempty"`
	ExtractedValue interface{} `json:"extracted_value,omitempty"`
	Matched        bool        `json:"matched"`
	Error          string      `json:"error,omitempty"`
}

// Evaluator evaluates ack rules against reply bodies
type Evaluator struct{}

// NewEvaluator creates a new evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate applies rule to a JSON body. A disabled rule always matches.
func (e *Evaluator) Evaluate(rule model.AckRule, body []byte) Result {
	result := Result{
		Expression:    rule.Expression,
		Operator:      rule.Operator,
		ExpectedValue: rule.ExpectedValue,
	}
	if !rule.Enabled() {
		result.Matched = true
		return result
	}

	var jsonData interface{}
	if err := json.Unmarshal(body, &jsonData); err != nil {
		result.Error = fmt.Sprintf("failed to parse JSON reply: %v", err)
		return result
	}

	extracted, err := extractValue(jsonData, rule.Expression)
	if err != nil {
		// a missing path is an answer for "exists", not a failure
		if rule.Operator == "exists" {
			return result
		}
		result.Error = err.Error()
		return result
	}
	result.ExtractedValue = extracted

	matched, err := EvaluateOperator(rule.Operator, extracted, rule.ExpectedValue)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Matched = matched

	slog.Debug("Ack rule evaluated",
		"expression", rule.Expression,
		"operator", rule.Operator,
		"extracted_value", extracted,
		"matched", matched,
	)
	return result
}

func extractValue(jsonData interface{}, expression string) (interface{}, error) {
	pattern, err := jsonpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression '%s': %w", expression, err)
	}

	value, err := pattern.Lookup(jsonData)
	if err != nil {
		return nil, fmt.Errorf("JSONPath expression '%s' returned no results: %w", expression, err)
	}
	return value, nil
}
