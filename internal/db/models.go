package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is a persisted in-app notification. Title, message and type
// are fixed at creation; only the read state and the active flag mutate
// afterwards.
type Notification struct {
	ID                   uuid.UUID       `json:"id"`
	RecipientID          uuid.UUID       `json:"recipient_id"`
	RecipientKind        string          `json:"recipient_kind"`
	SenderID             *uuid.UUID      `json:"sender_id,omitempty"`
	SenderKind           string          `json:"sender_kind"`
	Type                 string          `json:"type"`
	Title                string          `json:"title"`
	Message              string          `json:"message"`
	RelatedJobID         *uuid.UUID      `json:"related_job_id,omitempty"`
	RelatedApplicationID *uuid.UUID      `json:"related_application_id,omitempty"`
	RelatedData          json.RawMessage `json:"related_data,omitempty"`
	IsRead               bool            `json:"is_read"`
	ReadAt               *time.Time      `json:"read_at,omitempty"`
	Priority             string          `json:"priority"`
	ActionURL            string          `json:"action_url,omitempty"`
	ActionText           string          `json:"action_text,omitempty"`
	IsActive             bool            `json:"is_active"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Recipient/sender kinds. A notification is addressed to an account or an
// organization; the sender may additionally be the platform itself.
const (
	KindAccount      = "account"
	KindOrganization = "organization"
	KindSystem       = "system"
)

// Notification types
const (
	TypeStatusUpdate         = "status_update"
	TypeNewApplication       = "new_application"
	TypeApplicationWithdrawn = "application_withdrawn"
	TypeJobPosted            = "job_posted"
	TypeJobDeadlineReminder  = "job_deadline_reminder"
	TypeProfileView          = "profile_view"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Application statuses used as sub-keys for status_update notifications.
const (
	StatusUnderReview        = "under_review"
	StatusShortlisted        = "shortlisted"
	StatusInterviewScheduled = "interview_scheduled"
	StatusJobOffered         = "job_offered"
	StatusRejected           = "rejected"
)

// ValidKind reports whether k names a recipient/sender kind.
func ValidKind(k string) bool {
	return k == KindAccount || k == KindOrganization || k == KindSystem
}

// ValidType reports whether t names a notification type.
func ValidType(t string) bool {
	switch t {
	case TypeStatusUpdate, TypeNewApplication, TypeApplicationWithdrawn,
		TypeJobPosted, TypeJobDeadlineReminder, TypeProfileView:
		return true
	}
	return false
}

// ValidPriority reports whether p names a priority level.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Escalation is a queued out-of-band delivery (email or SMS) for an urgent
// notification. Rows are processed by the escalation worker with retries;
// the in-app notification itself is already durable by the time an
// escalation row exists.
type Escalation struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	Channel        string     `json:"channel"`
	Target         string     `json:"target"` // email address or E.164 phone number
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Escalation channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Escalation statuses
const (
	EscalationPending    = "pending"
	EscalationProcessing = "processing"
	EscalationSent       = "sent"
	EscalationFailed     = "failed"
)
