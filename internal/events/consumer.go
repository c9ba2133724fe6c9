// Package events consumes platform domain events from SQS and turns them
// into notifications. Delivery from the queue is at-least-once; a Redis
// reservation per event id keeps handling effectively once.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/metrics"
)

// Event types produced by the platform's job, application and profile
// services.
const (
	EventStatusChanged        = "application_status_changed"
	EventApplicationSubmitted = "application_submitted"
	EventApplicationWithdrawn = "application_withdrawn"
	EventJobPosted            = "job_posted"
	EventDeadlineApproaching  = "job_deadline_approaching"
	EventProfileViewed        = "profile_viewed"
)

// Event is the wire payload on the queue. Only the fields relevant to the
// event type are populated.
type Event struct {
	ID             string     `json:"event_id"`
	Type           string     `json:"type"`
	ApplicationID  string     `json:"application_id,omitempty"`
	JobID          string     `json:"job_id,omitempty"`
	NewStatus      string     `json:"new_status,omitempty"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	RecipientIDs   []string   `json:"recipient_ids,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	ViewedID       string     `json:"viewed_id,omitempty"`
	ViewerID       string     `json:"viewer_id,omitempty"`
	ViewerKind     string     `json:"viewer_kind,omitempty"`
	ViewerName     string     `json:"viewer_name,omitempty"`
}

// Notifier is the slice of the notification service the consumer drives.
type Notifier interface {
	SendStatusUpdate(ctx context.Context, applicationID uuid.UUID, newStatus, previousStatus string) (*db.Notification, error)
	SendNewApplication(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error)
	SendApplicationWithdrawal(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error)
	SendJobPosted(ctx context.Context, jobID, recipientID uuid.UUID) (*db.Notification, error)
	SendDeadlineReminder(ctx context.Context, jobID, recipientID uuid.UUID, deadline time.Time) (*db.Notification, error)
	SendProfileView(ctx context.Context, recipientID uuid.UUID, viewerID *uuid.UUID, viewerKind, viewerName string) (*db.Notification, error)
}

// Deduper reserves event ids so redelivered messages are not reprocessed.
// nil-safe at the Consumer level: without one, every delivery is handled.
type Deduper interface {
	Reserve(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Config holds SQS consumer configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Consumer long-polls the platform event queue.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	notifier Notifier
	dedup    Deduper
	logger   *zap.Logger
}

// NewConsumer creates an SQS-backed event consumer. dedup may be nil when
// Redis is unavailable; handling then relies on the queue's own
// visibility semantics.
func NewConsumer(ctx context.Context, cfg Config, notifier Notifier, dedup Deduper, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("event consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Consumer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		notifier: notifier,
		dedup:    dedup,
		logger:   logger,
	}, nil
}

// Run polls the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("event consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("event consumer stopping")
			return
		default:
		}

		if err := c.poll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("event poll failed", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("sqs receive failed: %w", err)
	}

	for _, msg := range result.Messages {
		var event Event
		if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
			c.logger.Error("malformed event, discarding",
				zap.Error(err),
				zap.String("message_id", aws.ToString(msg.MessageId)),
			)
			// Unparseable payloads never become parseable; drop them.
			c.delete(ctx, *msg.ReceiptHandle)
			continue
		}

		if err := c.Handle(ctx, &event); err != nil {
			c.logger.Error("event handling failed, leaving for redelivery",
				zap.Error(err),
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
			)
			metrics.RecordEventConsumed(event.Type, "error")
			continue
		}

		metrics.RecordEventConsumed(event.Type, "ok")
		c.delete(ctx, *msg.ReceiptHandle)
	}

	return nil
}

func (c *Consumer) delete(ctx context.Context, receiptHandle string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		c.logger.Warn("sqs delete failed", zap.Error(err))
	}
}

// Handle dispatches one event to the notification service. Exposed
// separately from the poll loop so it can be driven directly in tests.
func (c *Consumer) Handle(ctx context.Context, event *Event) error {
	if c.dedup != nil && event.ID != "" {
		fresh, err := c.dedup.Reserve(ctx, event.ID)
		if err != nil {
			// Dedup is an optimization; at-least-once still holds without it.
			c.logger.Warn("dedup reservation failed, handling anyway", zap.Error(err))
		} else if !fresh {
			return nil
		}
	}

	err := c.dispatch(ctx, event)
	if err != nil && c.dedup != nil && event.ID != "" {
		if relErr := c.dedup.Release(ctx, event.ID); relErr != nil {
			c.logger.Warn("dedup release failed", zap.Error(relErr))
		}
	}

	return err
}

func (c *Consumer) dispatch(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventStatusChanged:
		appID, err := uuid.Parse(event.ApplicationID)
		if err != nil {
			return fmt.Errorf("invalid application_id: %w", err)
		}
		_, err = c.notifier.SendStatusUpdate(ctx, appID, event.NewStatus, event.PreviousStatus)
		return err

	case EventApplicationSubmitted:
		appID, err := uuid.Parse(event.ApplicationID)
		if err != nil {
			return fmt.Errorf("invalid application_id: %w", err)
		}
		_, err = c.notifier.SendNewApplication(ctx, appID)
		return err

	case EventApplicationWithdrawn:
		appID, err := uuid.Parse(event.ApplicationID)
		if err != nil {
			return fmt.Errorf("invalid application_id: %w", err)
		}
		_, err = c.notifier.SendApplicationWithdrawal(ctx, appID)
		return err

	case EventJobPosted:
		return c.fanOutToRecipients(ctx, event, func(jobID, recipientID uuid.UUID) error {
			_, err := c.notifier.SendJobPosted(ctx, jobID, recipientID)
			return err
		})

	case EventDeadlineApproaching:
		if event.Deadline == nil {
			return fmt.Errorf("deadline event missing deadline")
		}
		return c.fanOutToRecipients(ctx, event, func(jobID, recipientID uuid.UUID) error {
			_, err := c.notifier.SendDeadlineReminder(ctx, jobID, recipientID, *event.Deadline)
			return err
		})

	case EventProfileViewed:
		viewedID, err := uuid.Parse(event.ViewedID)
		if err != nil {
			return fmt.Errorf("invalid viewed_id: %w", err)
		}
		var viewerID *uuid.UUID
		if event.ViewerID != "" {
			id, err := uuid.Parse(event.ViewerID)
			if err != nil {
				return fmt.Errorf("invalid viewer_id: %w", err)
			}
			viewerID = &id
		}
		_, err = c.notifier.SendProfileView(ctx, viewedID, viewerID, event.ViewerKind, event.ViewerName)
		return err

	default:
		// Unknown types are the platform's future; log and move on.
		c.logger.Warn("unknown event type, skipping",
			zap.String("type", event.Type),
			zap.String("event_id", event.ID),
		)
		return nil
	}
}

func (c *Consumer) fanOutToRecipients(ctx context.Context, event *Event, send func(jobID, recipientID uuid.UUID) error) error {
	jobID, err := uuid.Parse(event.JobID)
	if err != nil {
		return fmt.Errorf("invalid job_id: %w", err)
	}

	var firstErr error
	for _, raw := range event.RecipientIDs {
		recipientID, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Warn("invalid recipient id in event",
				zap.String("recipient_id", raw),
				zap.String("event_id", event.ID),
			)
			continue
		}
		if err := send(jobID, recipientID); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
