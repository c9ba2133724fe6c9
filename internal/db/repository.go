package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a mutating operation targets a notification
// that either does not exist or does not belong to the caller. The two
// cases are deliberately indistinguishable so one recipient cannot probe
// for another recipient's notifications.
var ErrNotFound = errors.New("notification not found")

// Repository handles database operations for notifications and escalations.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const notificationColumns = `
	id, recipient_id, recipient_kind, sender_id, sender_kind, type,
	title, message, related_job_id, related_application_id, related_data,
	is_read, read_at, priority, action_url, action_text, is_active,
	expires_at, created_at, updated_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.RecipientKind,
		&n.SenderID,
		&n.SenderKind,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.RelatedJobID,
		&n.RelatedApplicationID,
		&n.RelatedData,
		&n.IsRead,
		&n.ReadAt,
		&n.Priority,
		&n.ActionURL,
		&n.ActionText,
		&n.IsActive,
		&n.ExpiresAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts a new notification and fills in the
// database-generated timestamps.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient_id, recipient_kind, sender_id, sender_kind, type,
			title, message, related_job_id, related_application_id, related_data,
			is_read, priority, action_url, action_text, is_active, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		n.ID,
		n.RecipientID,
		n.RecipientKind,
		n.SenderID,
		n.SenderKind,
		n.Type,
		n.Title,
		n.Message,
		n.RelatedJobID,
		n.RelatedApplicationID,
		n.RelatedData,
		n.IsRead,
		n.Priority,
		n.ActionURL,
		n.ActionText,
		n.IsActive,
		n.ExpiresAt,
	).Scan(&n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("recipient_id", n.RecipientID.String()),
		zap.String("type", n.Type),
		zap.String("priority", n.Priority),
	)

	return nil
}

// ListOptions narrows a recipient-scoped notification listing. All
// provided filters compose with AND semantics.
type ListOptions struct {
	Page            int
	Limit           int
	Type            string
	Priority        string
	IsRead          *bool
	IncludeInactive bool
}

// ListForRecipient returns a recipient's notifications newest-first along
// with the total count matching the filters. Inactive (soft-deleted)
// notifications are excluded unless IncludeInactive is set.
func (r *Repository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, opts ListOptions) ([]*Notification, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}

	conds := []string{"recipient_id = $1"}
	args := []any{recipientID}

	if !opts.IncludeInactive {
		conds = append(conds, "is_active = TRUE")
	}
	if opts.Type != "" {
		args = append(args, opts.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if opts.Priority != "" {
		args = append(args, opts.Priority)
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}
	if opts.IsRead != nil {
		args = append(args, *opts.IsRead)
		conds = append(conds, fmt.Sprintf("is_read = $%d", len(args)))
	}

	where := strings.Join(conds, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM notifications WHERE " + where
	if err := r.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, notificationColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, total, nil
}

// CountUnread returns the number of active unread notifications for a
// recipient.
func (r *Repository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient_id = $1 AND is_active = TRUE AND is_read = FALSE
	`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead marks a notification as read. The update is conditional and
// idempotent: marking an already-read notification leaves read_at
// untouched and returns the current state. Returns ErrNotFound when no
// active notification with that id belongs to the recipient.
func (r *Repository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*Notification, error) {
	query := fmt.Sprintf(`
		UPDATE notifications
		SET is_read = TRUE,
		    read_at = COALESCE(read_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND recipient_id = $2 AND is_active = TRUE
		RETURNING %s
	`, notificationColumns)

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, recipientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	return n, nil
}

// MarkUnread reverts a notification to unread and clears read_at.
// Returns ErrNotFound when the ownership check fails.
func (r *Repository) MarkUnread(ctx context.Context, id, recipientID uuid.UUID) (*Notification, error) {
	query := fmt.Sprintf(`
		UPDATE notifications
		SET is_read = FALSE,
		    read_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND recipient_id = $2 AND is_active = TRUE
		RETURNING %s
	`, notificationColumns)

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, recipientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark unread: %w", err)
	}

	return n, nil
}

// MarkAllRead marks every active unread notification of a recipient as
// read in a single conditional update and returns the number modified.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE recipient_id = $1 AND is_active = TRUE AND is_read = FALSE
	`

	result, err := r.db.Pool().Exec(ctx, query, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}

	r.logger.Info("notifications marked read",
		zap.String("recipient_id", recipientID.String()),
		zap.Int64("modified", result.RowsAffected()),
	)

	return result.RowsAffected(), nil
}

// SoftDelete flips a notification's active flag off. The record stays in
// the store; listings and counts exclude it. Returns ErrNotFound when the
// ownership check fails or the notification is already inactive.
func (r *Repository) SoftDelete(ctx context.Context, id, recipientID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND recipient_id = $2 AND is_active = TRUE
	`

	result, err := r.db.Pool().Exec(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("soft delete notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PurgeOld physically deletes read notifications older than the given
// number of days and returns the count deleted. Unread rows are never
// purged, including soft-deleted ones.
func (r *Repository) PurgeOld(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE created_at < NOW() - make_interval(days => $1)
		  AND is_read = TRUE
	`

	result, err := r.db.Pool().Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}

	if result.RowsAffected() > 0 {
		r.logger.Info("old notifications purged",
			zap.Int("older_than_days", olderThanDays),
			zap.Int64("deleted", result.RowsAffected()),
		)
	}

	return result.RowsAffected(), nil
}

// Stats aggregates a recipient's active notifications by read state and
// type.
type Stats struct {
	Total  int64            `json:"total"`
	Unread int64            `json:"unread"`
	Read   int64            `json:"read"`
	ByType map[string]int64 `json:"byType"`
}

// StatsForRecipient computes notification counts for a recipient.
func (r *Repository) StatsForRecipient(ctx context.Context, recipientID uuid.UUID) (*Stats, error) {
	query := `
		SELECT type,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE is_read = FALSE)
		FROM notifications
		WHERE recipient_id = $1 AND is_active = TRUE
		GROUP BY type
	`

	rows, err := r.db.Pool().Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query notification stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByType: make(map[string]int64)}
	for rows.Next() {
		var typ string
		var total, unread int64
		if err := rows.Scan(&typ, &total, &unread); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByType[typ] = total
		stats.Total += total
		stats.Unread += unread
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}

	stats.Read = stats.Total - stats.Unread
	return stats, nil
}

// CreateEscalation queues an out-of-band delivery for a notification.
func (r *Repository) CreateEscalation(ctx context.Context, e *Escalation) error {
	query := `
		INSERT INTO escalations (
			id, notification_id, channel, target, subject, body, status, attempt
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		e.ID,
		e.NotificationID,
		e.Channel,
		e.Target,
		e.Subject,
		e.Body,
		e.Status,
		e.Attempt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}

	return nil
}

// PendingEscalations returns escalations due for delivery, oldest first.
func (r *Repository) PendingEscalations(ctx context.Context, limit int) ([]*Escalation, error) {
	query := `
		SELECT id, notification_id, channel, target, subject, body,
		       status, attempt, error_message, next_retry_at,
		       created_at, updated_at
		FROM escalations
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*Escalation
	for rows.Next() {
		var e Escalation
		err := rows.Scan(
			&e.ID,
			&e.NotificationID,
			&e.Channel,
			&e.Target,
			&e.Subject,
			&e.Body,
			&e.Status,
			&e.Attempt,
			&e.ErrorMessage,
			&e.NextRetryAt,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		escalations = append(escalations, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalation rows: %w", err)
	}

	return escalations, nil
}

// UpdateEscalationStatus records the outcome of a delivery attempt.
func (r *Repository) UpdateEscalationStatus(
	ctx context.Context,
	id uuid.UUID,
	status string,
	attempt int,
	errorMsg *string,
	nextRetryAt *time.Time,
) error {
	query := `
		UPDATE escalations
		SET status = $1, attempt = $2, error_message = $3, next_retry_at = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, status, attempt, errorMsg, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("update escalation status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("escalation not found: %s", id)
	}

	return nil
}
