// Package notify is the single entry point for producing notifications.
// It resolves templates, persists through the record store, and fans out
// over the live channel. Persistence is durable; fan-out is best-effort
// and never fails the calling operation.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/metrics"
	"github.com/talentpool/herald/internal/realtime"
	"github.com/talentpool/herald/internal/template"
)

const (
	maxTitleLen   = 200
	maxMessageLen = 1000

	// summaryMessageLen bounds the message in REST summaries.
	summaryMessageLen = 100

	// deadlineReminderTTL is the default expiry for deadline reminders.
	deadlineReminderTTL = 30 * 24 * time.Hour
)

var (
	// ErrInvalidRequest indicates a create request missing its recipient,
	// recipient kind, or type.
	ErrInvalidRequest = errors.New("recipient, recipient kind and notification type are required")

	// ErrUpstreamLookup indicates a convenience method could not resolve
	// its related application or job. No notification is created.
	ErrUpstreamLookup = errors.New("upstream lookup failed")
)

// Store is the persistence surface the service depends on.
type Store interface {
	CreateNotification(ctx context.Context, n *db.Notification) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, opts db.ListOptions) ([]*db.Notification, int64, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error)
	MarkUnread(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	SoftDelete(ctx context.Context, id, recipientID uuid.UUID) error
	PurgeOld(ctx context.Context, olderThanDays int) (int64, error)
	StatsForRecipient(ctx context.Context, recipientID uuid.UUID) (*db.Stats, error)
	CreateEscalation(ctx context.Context, e *db.Escalation) error
}

// Channel is the live push surface. The hub implements it; tests use a
// recording fake.
type Channel interface {
	EmitToRecipient(recipientID uuid.UUID, event string, payload any) error
}

// ApplicationContext is what the platform's application store resolves
// for a convenience notification.
type ApplicationContext struct {
	ApplicationID  uuid.UUID
	JobID          uuid.UUID
	ApplicantID    uuid.UUID
	OrganizationID uuid.UUID
	ApplicantName  string
	JobTitle       string
	CompanyName    string
}

// JobContext is the denormalized job lookup result.
type JobContext struct {
	JobID          uuid.UUID
	OrganizationID uuid.UUID
	JobTitle       string
	CompanyName    string
}

// Contact carries the out-of-band delivery addresses for a recipient.
type Contact struct {
	Email string
	Phone string
}

// Directory resolves related entities from the platform's domain
// services. Implementations must return ErrUpstreamLookup-wrapped errors
// for missing entities.
type Directory interface {
	ApplicationContext(ctx context.Context, applicationID uuid.UUID) (*ApplicationContext, error)
	JobContext(ctx context.Context, jobID uuid.UUID) (*JobContext, error)
	Contact(ctx context.Context, id uuid.UUID, kind string) (*Contact, error)
}

// Service orchestrates notification creation and fan-out.
//
// The live channel is optional and late-bound: the hub is constructed
// after the service during startup and injected via SetChannel. Every
// publish path checks for presence and degrades to persistence-only.
type Service struct {
	store     Store
	directory Directory
	logger    *zap.Logger

	mu      sync.RWMutex
	channel Channel
}

// NewService creates a notification service. directory may be nil when no
// domain lookups are available (convenience methods then fail, escalation
// is skipped).
func NewService(store Store, directory Directory, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

// SetChannel injects the live delivery channel once it exists.
func (s *Service) SetChannel(ch Channel) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

func (s *Service) liveChannel() Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// CreateRequest describes a notification to produce. Title, message and
// priority are never supplied by callers; the template engine owns them.
type CreateRequest struct {
	RecipientID          uuid.UUID
	RecipientKind        string
	SenderID             *uuid.UUID
	SenderKind           string
	Type                 string
	StatusSubKey         string
	TemplateData         map[string]string
	RelatedJobID         *uuid.UUID
	RelatedApplicationID *uuid.UUID
	RelatedData          map[string]any
	ExpiresAt            *time.Time
}

// CreateNotification renders, persists and fans out one notification.
// The entity is durable before any live event is emitted, so a client
// can never see a pushed notification that is not yet queryable.
func (s *Service) CreateNotification(ctx context.Context, req CreateRequest) (*db.Notification, error) {
	if req.RecipientID == uuid.Nil || req.Type == "" ||
		(req.RecipientKind != db.KindAccount && req.RecipientKind != db.KindOrganization) {
		return nil, ErrInvalidRequest
	}

	tpl := template.Render(template.Resolve(req.Type, req.StatusSubKey), req.TemplateData)

	senderKind := req.SenderKind
	if senderKind == "" {
		senderKind = db.KindSystem
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.Type == db.TypeJobDeadlineReminder {
		t := time.Now().Add(deadlineReminderTTL)
		expiresAt = &t
	}

	var relatedData json.RawMessage
	if len(req.RelatedData) > 0 {
		data, err := json.Marshal(req.RelatedData)
		if err != nil {
			return nil, fmt.Errorf("marshal related data: %w", err)
		}
		relatedData = data
	}

	n := &db.Notification{
		ID:                   uuid.New(),
		RecipientID:          req.RecipientID,
		RecipientKind:        req.RecipientKind,
		SenderID:             req.SenderID,
		SenderKind:           senderKind,
		Type:                 req.Type,
		Title:                truncate(tpl.Title, maxTitleLen),
		Message:              truncate(tpl.Message, maxMessageLen),
		RelatedJobID:         req.RelatedJobID,
		RelatedApplicationID: req.RelatedApplicationID,
		RelatedData:          relatedData,
		Priority:             tpl.Priority,
		ActionURL:            template.BuildActionURL(req.RelatedApplicationID, req.RelatedJobID),
		ActionText:           tpl.ActionText,
		IsActive:             true,
		ExpiresAt:            expiresAt,
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	metrics.RecordNotificationCreated(n.Type, n.Priority)

	s.publishNew(ctx, n)
	s.publishUnreadCount(ctx, n.RecipientID)

	if n.Priority == db.PriorityUrgent {
		s.enqueueEscalations(ctx, n)
	}

	return n, nil
}

// publishNew pushes the new_notification event. Failures degrade to
// "client sees it on next poll".
func (s *Service) publishNew(ctx context.Context, n *db.Notification) {
	ch := s.liveChannel()
	if ch == nil {
		return
	}

	payload := map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"priority":   n.Priority,
		"isRead":     false,
		"createdAt":  n.CreatedAt,
		"actionUrl":  n.ActionURL,
		"actionText": n.ActionText,
	}
	if len(n.RelatedData) > 0 {
		payload["relatedData"] = n.RelatedData
	}

	if err := ch.EmitToRecipient(n.RecipientID, realtime.EventNewNotification, payload); err != nil {
		s.logger.Warn("live delivery degraded",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
	}
}

// publishUnreadCount recomputes and pushes the recipient's unread count.
func (s *Service) publishUnreadCount(ctx context.Context, recipientID uuid.UUID) {
	ch := s.liveChannel()
	if ch == nil {
		return
	}

	count, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		s.logger.Warn("unread count recompute failed",
			zap.Error(err),
			zap.String("recipient_id", recipientID.String()),
		)
		return
	}

	if err := ch.EmitToRecipient(recipientID, realtime.EventUnreadCountUpdate, map[string]any{"count": count}); err != nil {
		s.logger.Warn("live delivery degraded",
			zap.Error(err),
			zap.String("recipient_id", recipientID.String()),
		)
	}
}

// enqueueEscalations queues email/SMS deliveries for an urgent
// notification. Escalation is additive: failures here never surface to
// the caller.
func (s *Service) enqueueEscalations(ctx context.Context, n *db.Notification) {
	if s.directory == nil {
		return
	}

	contact, err := s.directory.Contact(ctx, n.RecipientID, n.RecipientKind)
	if err != nil {
		s.logger.Warn("contact lookup failed, skipping escalation",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return
	}

	if contact.Email != "" {
		e := &db.Escalation{
			ID:             uuid.New(),
			NotificationID: n.ID,
			Channel:        db.ChannelEmail,
			Target:         contact.Email,
			Subject:        n.Title,
			Body:           n.Message,
			Status:         db.EscalationPending,
		}
		if err := s.store.CreateEscalation(ctx, e); err != nil {
			s.logger.Warn("failed to queue email escalation", zap.Error(err))
		}
	}

	if contact.Phone != "" {
		e := &db.Escalation{
			ID:             uuid.New(),
			NotificationID: n.ID,
			Channel:        db.ChannelSMS,
			Target:         contact.Phone,
			Subject:        n.Title,
			Body:           n.Title + ": " + n.Message,
			Status:         db.EscalationPending,
		}
		if err := s.store.CreateEscalation(ctx, e); err != nil {
			s.logger.Warn("failed to queue sms escalation", zap.Error(err))
		}
	}
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
