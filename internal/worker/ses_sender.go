package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

// SESSender delivers email escalations via AWS SES.
type SESSender struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

// SESConfig holds SES settings.
type SESConfig struct {
	Region    string
	FromEmail string
}

// NewSESSender creates an SES email sender.
func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send delivers one email escalation.
func (s *SESSender) Send(ctx context.Context, e *db.Escalation) error {
	if e.Channel != db.ChannelEmail {
		return fmt.Errorf("ses sender only supports email, got: %s", e.Channel)
	}
	if e.Target == "" {
		return fmt.Errorf("escalation missing email target")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{e.Target},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(e.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(e.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("escalation email sent",
		zap.String("id", e.ID.String()),
		zap.String("to", e.Target),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// SupportsChannel reports support for the email channel.
func (s *SESSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail
}
