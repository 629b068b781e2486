package models

import "time"

type EmailStatus string

const (
	StatusPending   EmailStatus = "pending"
	StatusSending   EmailStatus = "sending"
	StatusSent      EmailStatus = "sent"
	StatusCancelled EmailStatus = "cancelled"
	StatusFailed    EmailStatus = "failed"
)

// Terminal reports whether a status may never change again.
func (s EmailStatus) Terminal() bool {
	return s == StatusSent || s == StatusCancelled || s == StatusFailed
}

// ScheduledEmail is one planned send: one row per conversation per follow-up day.
// Day 0 is the initial outreach and carries pre-composed content; later days are
// composed at send time from the product template so the wording stays fresh.
type ScheduledEmail struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	Recipient   string `json:"recipient"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`

	Subject string `json:"subject"`
	Body    string `json:"body"`

	// Product plus the lead fields below are the rendering context for
	// follow-ups composed at send time.
	Product     string `json:"product"`
	LeadName    string `json:"lead_name"`
	LeadCompany string `json:"lead_company"`

	FollowupDay   int       `json:"followup_day"`
	ScheduledTime time.Time `json:"scheduled_time"`

	Status    EmailStatus `json:"status"`
	Responded bool        `json:"responded"`
	ErrorMsg  string      `json:"error_msg,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
