package models

import "time"

// MessageDirection distinguishes inbound customer messages from outbound ones.
type MessageDirection string

const (
	MessageInbound  MessageDirection = "INBOUND"
	MessageOutbound MessageDirection = "OUTBOUND"
)

// MessageType is the WhatsApp payload kind of a message.
type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeTemplate MessageType = "TEMPLATE"
	MessageTypeImage    MessageType = "IMAGE"
	MessageTypeDocument MessageType = "DOCUMENT"
)

// MessageStatus is the delivery state reported by the transport.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
	MessageStatusFailed    MessageStatus = "FAILED"
)

type Message struct {
	ID            string           `json:"id"`
	CustomerID    string           `json:"customer_id"`
	Direction     MessageDirection `json:"direction"`
	Type          MessageType      `json:"type"`
	Content       string           `json:"content"`
	TemplateName  string           `json:"template_name,omitempty"`
	WhatsAppMsgID string           `json:"whatsapp_msg_id,omitempty"`
	Status        MessageStatus    `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

type Tag struct {
	ID            string    `json:"id"`
	Name          string    `json:"name" validate:"required,max=50"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at"`
}

// FollowUpType is the kind of scheduled follow-up reminder.
type FollowUpType string

const (
	FollowUpWhatsAppMessage FollowUpType = "WHATSAPP_MESSAGE"
	FollowUpCallReminder    FollowUpType = "CALL_REMINDER"
)

type ScheduledFollowUp struct {
	ID          string       `json:"id"`
	CustomerID  string       `json:"customer_id"`
	Type        FollowUpType `json:"type"`
	Content     string       `json:"content"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActivityType classifies entries in the operational activity feed.
type ActivityType string

const (
	ActivityCustomerCreated   ActivityType = "CUSTOMER_CREATED"
	ActivityMessageReceived   ActivityType = "MESSAGE_RECEIVED"
	ActivityMessageSent       ActivityType = "MESSAGE_SENT"
	ActivityAdminNotification ActivityType = "ADMIN_NOTIFICATION"
	ActivityAIAnalysis        ActivityType = "AI_ANALYSIS"
	ActivityStageChanged      ActivityType = "STAGE_CHANGED"
	ActivityTagAdded          ActivityType = "TAG_ADDED"
)

type Activity struct {
	ID          string       `json:"id"`
	CustomerID  string       `json:"customer_id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AnalysisResult is the verdict produced by AI conversation analysis.
type AnalysisResult struct {
	LeadScore           int             `json:"leadScore"`
	Temperature         LeadTemperature `json:"temperature"`
	StageRecommendation LeadStage       `json:"stageRecommendation"`
	Tags                []string        `json:"tags,omitempty"`
	Sentiment           string          `json:"sentiment,omitempty"`
	Summary             string          `json:"summary,omitempty"`
	RecommendedAction   string          `json:"recommendedAction,omitempty"`
}
