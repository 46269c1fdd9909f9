package evaluator

import (
	"fmt"
	"strconv"
	"strings"
)

// CoerceToString converts any value to string
func CoerceToString(value interface{}) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", value)
}

// CoerceToNumber attempts to convert a value to float64
func CoerceToNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string '%s' to number", v)
		}
		return num, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

func coerceToBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no", "":
			return false
		}
		return true
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}

// AreEqual compares two values, treating "200" and 200 as equal and "true" and true as equal
func AreEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	numA, errA := CoerceToNumber(a)
	numB, errB := CoerceToNumber(b)
	if errA == nil && errB == nil {
		return numA == numB
	}

	if boolA, ok := a.(bool); ok {
		return boolA == coerceToBool(b)
	}
	if boolB, ok := b.(bool); ok {
		return coerceToBool(a) == boolB
	}

	return CoerceToString(a) == CoerceToString(b)
}
