package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

// SNSSender delivers SMS escalations via AWS SNS.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

// SNSConfig holds SNS settings.
type SNSConfig struct {
	Region string
}

// NewSNSSender creates an SNS SMS sender.
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send delivers one SMS escalation.
func (s *SNSSender) Send(ctx context.Context, e *db.Escalation) error {
	if e.Channel != db.ChannelSMS {
		return fmt.Errorf("sns sender only supports sms, got: %s", e.Channel)
	}
	if e.Target == "" {
		return fmt.Errorf("escalation missing phone number target")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(e.Target),
		Message:     aws.String(e.Body),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("escalation sms sent",
		zap.String("id", e.ID.String()),
		zap.String("phone_number", e.Target),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// SupportsChannel reports support for the sms channel.
func (s *SNSSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelSMS
}
