package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/metrics"
)

// Summary is the redacted projection returned by the REST query path.
// The related-data payload is never exposed here and the message is
// truncated for list rendering.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"isRead"`
	Priority   string    `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
	ActionURL  string    `json:"actionUrl,omitempty"`
	ActionText string    `json:"actionText,omitempty"`
}

// Pagination describes the page returned by GetNotifications.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	UnreadCount int64 `json:"unreadCount"`
}

// Page is a page of notification summaries.
type Page struct {
	Notifications []Summary  `json:"notifications"`
	Pagination    Pagination `json:"pagination"`
}

// Summarize projects a notification into its REST summary.
func Summarize(n *db.Notification) Summary {
	msg := n.Message
	if len(msg) > summaryMessageLen {
		msg = truncate(msg, summaryMessageLen) + "..."
	}

	return Summary{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    msg,
		IsRead:     n.IsRead,
		Priority:   n.Priority,
		CreatedAt:  n.CreatedAt,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
	}
}

// GetNotifications returns a recipient's notifications newest-first with
// pagination metadata and the current unread count.
func (s *Service) GetNotifications(ctx context.Context, recipientID uuid.UUID, opts db.ListOptions) (*Page, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}

	notifications, total, err := s.store.ListForRecipient(ctx, recipientID, opts)
	if err != nil {
		return nil, err
	}

	unread, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(notifications))
	for _, n := range notifications {
		summaries = append(summaries, Summarize(n))
	}

	return &Page{
		Notifications: summaries,
		Pagination: Pagination{
			Page:        opts.Page,
			Limit:       opts.Limit,
			Total:       total,
			UnreadCount: unread,
		},
	}, nil
}

// UnreadCount returns the recipient's active unread count.
func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.store.CountUnread(ctx, recipientID)
}

// Stats aggregates a recipient's notifications by read state and type.
func (s *Service) Stats(ctx context.Context, recipientID uuid.UUID) (*db.Stats, error) {
	return s.store.StatsForRecipient(ctx, recipientID)
}

// MarkAsRead marks a notification read on behalf of its owner, then
// refreshes the live unread count.
func (s *Service) MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error) {
	n, err := s.store.MarkRead(ctx, id, recipientID)
	if err != nil {
		return nil, err
	}

	s.publishUnreadCount(ctx, recipientID)
	return n, nil
}

// MarkAsUnread reverts a notification to unread, then refreshes the live
// unread count.
func (s *Service) MarkAsUnread(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error) {
	n, err := s.store.MarkUnread(ctx, id, recipientID)
	if err != nil {
		return nil, err
	}

	s.publishUnreadCount(ctx, recipientID)
	return n, nil
}

// MarkAllAsRead marks every unread notification of the recipient read and
// returns the number modified.
func (s *Service) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	modified, err := s.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if modified > 0 {
		s.publishUnreadCount(ctx, recipientID)
	}
	return modified, nil
}

// DeleteNotification soft-deletes a notification owned by the recipient,
// then refreshes the live unread count (deleting an unread notification
// lowers it).
func (s *Service) DeleteNotification(ctx context.Context, id, recipientID uuid.UUID) error {
	if err := s.store.SoftDelete(ctx, id, recipientID); err != nil {
		return err
	}

	s.publishUnreadCount(ctx, recipientID)
	return nil
}

// PurgeOld physically removes read notifications past the retention
// threshold. Driven by the maintenance sweep.
func (s *Service) PurgeOld(ctx context.Context, olderThanDays int) (int64, error) {
	deleted, err := s.store.PurgeOld(ctx, olderThanDays)
	if err != nil {
		return 0, err
	}

	metrics.RecordNotificationsPurged(deleted)
	return deleted, nil
}
