// Package models defines the core domain models for the CRM automation engine.
package models

import "time"

// LeadStage is the sales lifecycle classification of a customer.
type LeadStage string

const (
	LeadStageNew         LeadStage = "NEW"
	LeadStageEngaged     LeadStage = "ENGAGED"
	LeadStageInterested  LeadStage = "INTERESTED"
	LeadStageNegotiation LeadStage = "NEGOTIATION"
	LeadStageConverted   LeadStage = "CONVERTED"
	LeadStageChurned     LeadStage = "CHURNED"
)

// LeadTemperature is the urgency classification assigned by AI analysis.
type LeadTemperature string

const (
	LeadTemperatureHot  LeadTemperature = "HOT"
	LeadTemperatureWarm LeadTemperature = "WARM"
	LeadTemperatureCold LeadTemperature = "COLD"
	LeadTemperatureDead LeadTemperature = "DEAD"
)

// LeadSource identifies the channel a customer arrived from.
type LeadSource string

const (
	LeadSourceWhatsApp LeadSource = "WHATSAPP"
	LeadSourceRazorpay LeadSource = "RAZORPAY"
	LeadSourceManual   LeadSource = "MANUAL"
	LeadSourceWebsite  LeadSource = "WEBSITE"
)

// ValidLeadStage reports whether s is one of the known lead stages.
func ValidLeadStage(s LeadStage) bool {
	switch s {
	case LeadStageNew, LeadStageEngaged, LeadStageInterested,
		LeadStageNegotiation, LeadStageConverted, LeadStageChurned:
		return true
	}

	return false
}

type Customer struct {
	ID              string          `json:"id"`
	Phone           string          `json:"phone"           validate:"required"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Source          LeadSource      `json:"source"`
	LeadStage       LeadStage       `json:"leadStage"`
	LeadTemperature LeadTemperature `json:"leadTemperature"`
	LeadScore       int             `json:"leadScore"`
	AISummary       string          `json:"aiSummary,omitempty"`
	TotalMessages   int             `json:"totalMessages"`
	TotalSpent      float64         `json:"totalSpent"`
	LastMessageAt   *time.Time      `json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Field returns the value of a branchable customer attribute by its JSON
// name. The second return is false for attributes branch conditions cannot
// target.
func (c *Customer) Field(name string) (any, bool) {
	switch name {
	case "name":
		return c.Name, true
	case "phone":
		return c.Phone, true
	case "email":
		return c.Email, true
	case "source":
		return string(c.Source), true
	case "leadStage":
		return string(c.LeadStage), true
	case "leadTemperature":
		return string(c.LeadTemperature), true
	case "leadScore":
		return c.LeadScore, true
	case "totalMessages":
		return c.TotalMessages, true
	case "totalSpent":
		return c.TotalSpent, true
	default:
		return nil, false
	}
}
