package evaluator

import (
	"fmt"
	"regexp"
	"strings"
)

// EvaluateOperator compares an extracted value with the expected one
func EvaluateOperator(operator string, extracted, expected interface{}) (bool, error) {
	switch strings.ToLower(operator) {
	case "eq":
		return AreEqual(extracted, expected), nil
	case "ne":
		return !AreEqual(extracted, expected), nil
	case "contains":
		return contains(extracted, expected), nil
	case "exists", "":
		return extracted != nil, nil
	case "regex":
		return matchRegex(extracted, expected)
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

// contains checks array membership, or substring for anything else
func contains(extracted, expected interface{}) bool {
	if arr, ok := extracted.([]interface{}); ok {
		for _, item := range arr {
			if AreEqual(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(CoerceToString(extracted), CoerceToString(expected))
}

func matchRegex(extracted, expected interface{}) (bool, error) {
	pattern := CoerceToString(expected)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern '%s': %w", pattern, err)
	}
	return re.MatchString(CoerceToString(extracted)), nil
}
