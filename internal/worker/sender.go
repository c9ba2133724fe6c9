package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

// Sender delivers one escalation over its out-of-band channel.
// Implementations: email (SES), SMS (SNS).
type Sender interface {
	Send(ctx context.Context, e *db.Escalation) error
	SupportsChannel(channel string) bool
}

// MultiSender routes escalations to the first sender supporting their
// channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over multiple channel senders.
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Send routes the escalation to the appropriate sender.
func (m *MultiSender) Send(ctx context.Context, e *db.Escalation) error {
	for _, sender := range m.senders {
		if sender.SupportsChannel(e.Channel) {
			return sender.Send(ctx, e)
		}
	}

	return fmt.Errorf("no sender found for channel: %s", e.Channel)
}

// SupportsChannel checks if any underlying sender supports the channel.
func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender logs escalations instead of delivering them. Used in
// development when no AWS credentials are configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a development sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the escalation.
func (s *LogSender) Send(ctx context.Context, e *db.Escalation) error {
	s.logger.Info("escalation delivered (development mode)",
		zap.String("id", e.ID.String()),
		zap.String("channel", e.Channel),
		zap.String("target", e.Target),
		zap.String("subject", e.Subject),
	)
	return nil
}

// SupportsChannel reports support for every channel.
func (s *LogSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail || channel == db.ChannelSMS
}
