package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

func TestEvaluateCondition(t *testing.T) {
	customer := &models.Customer{
		Name:            "Priya",
		Phone:           "+919876543210",
		Email:           "priya@example.com",
		LeadStage:       models.LeadStageInterested,
		LeadTemperature: models.LeadTemperatureHot,
		LeadScore:       70,
		TotalSpent:      1499.50,
	}

	tests := []struct {
		name     string
		field    string
		operator models.BranchOperator
		value    any
		want     bool
	}{
		{"equals string match", "leadStage", models.OperatorEquals, "INTERESTED", true},
		{"equals string mismatch", "leadStage", models.OperatorEquals, "NEW", false},
		{"equals number match", "leadScore", models.OperatorEquals, float64(70), true},
		{"equals mixed types never match", "leadScore", models.OperatorEquals, "70", false},
		{"contains substring", "email", models.OperatorContains, "example", true},
		{"contains missing substring", "email", models.OperatorContains, "gmail", false},
		{"gt true", "leadScore", models.OperatorGt, float64(50), true},
		{"gt false", "leadScore", models.OperatorGt, float64(90), false},
		{"gt coerces numeric string", "leadScore", models.OperatorGt, "50", true},
		{"gt unparseable string", "leadScore", models.OperatorGt, "high", false},
		{"lt true", "totalSpent", models.OperatorLt, float64(2000), true},
		{"lt false", "totalSpent", models.OperatorLt, float64(1000), false},
		{"in match", "leadTemperature", models.OperatorIn, []any{"HOT", "WARM"}, true},
		{"in no match", "leadTemperature", models.OperatorIn, []any{"COLD", "DEAD"}, false},
		{"in non-list value", "leadTemperature", models.OperatorIn, "HOT", false},
		{"unknown field", "favoriteColor", models.OperatorEquals, "blue", false},
		{"unknown operator", "leadScore", models.BranchOperator("matches"), float64(70), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &models.BranchConfig{Field: tt.field, Operator: tt.operator, Value: tt.value}

			assert.Equal(t, tt.want, EvaluateCondition(cfg, customer))
		})
	}
}
