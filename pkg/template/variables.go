// Package template renders customer field placeholders in automation text.
package template

import (
	"strconv"
	"strings"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// Substitute replaces the {{name}}, {{phone}}, {{email}}, {{stage}} and
// {{score}} placeholders with the customer's current values. A missing name
// becomes the literal "there" so greetings stay natural; a missing email
// becomes empty. Placeholders outside the fixed set are left untouched.
func Substitute(text string, customer *models.Customer) string {
	if customer == nil {
		return text
	}

	name := customer.Name
	if name == "" {
		name = "there"
	}

	return strings.NewReplacer(
		"{{name}}", name,
		"{{phone}}", customer.Phone,
		"{{email}}", customer.Email,
		"{{stage}}", string(customer.LeadStage),
		"{{score}}", strconv.Itoa(customer.LeadScore),
	).Replace(text)
}
