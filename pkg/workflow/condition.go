package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// EvaluateCondition applies a branch condition to the customer's current
// attributes. Unknown fields and incomparable values evaluate to false, so a
// misconfigured branch routes down the false edge instead of failing the run.
func EvaluateCondition(cfg *models.BranchConfig, customer *models.Customer) bool {
	field, ok := customer.Field(cfg.Field)
	if !ok {
		return false
	}

	switch cfg.Operator {
	case models.OperatorEquals:
		return equalsValue(field, cfg.Value)
	case models.OperatorContains:
		return strings.Contains(stringify(field), stringify(cfg.Value))
	case models.OperatorGt:
		left, leftOK := coerceNumber(field)
		right, rightOK := coerceNumber(cfg.Value)

		return leftOK && rightOK && left > right
	case models.OperatorLt:
		left, leftOK := coerceNumber(field)
		right, rightOK := coerceNumber(cfg.Value)

		return leftOK && rightOK && left < right
	case models.OperatorIn:
		values, ok := cfg.Value.([]any)
		if !ok {
			return false
		}

		for _, value := range values {
			if equalsValue(field, value) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// equalsValue compares strictly: numbers against numbers, strings against
// strings. Mixed types are never equal.
func equalsValue(field, want any) bool {
	fieldNum, fieldIsNum := asNumber(field)
	wantNum, wantIsNum := asNumber(want)

	if fieldIsNum && wantIsNum {
		return fieldNum == wantNum
	}

	fieldStr, fieldIsStr := field.(string)
	wantStr, wantIsStr := want.(string)

	if fieldIsStr && wantIsStr {
		return fieldStr == wantStr
	}

	return false
}

// asNumber accepts numeric types only.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// coerceNumber additionally parses numeric strings, matching how ordering
// comparisons coerce their operands.
func coerceNumber(v any) (float64, bool) {
	if n, ok := asNumber(v); ok {
		return n, true
	}

	if s, ok := v.(string); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return n, true
		}
	}

	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
