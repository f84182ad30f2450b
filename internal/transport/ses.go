// Package transport delivers composed messages through AWS SES.
package transport

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/proshano/kcru-mailer/internal/config"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
)

// SESSender sends emails via AWS SES using the SDK v2. With no
// credentials configured it stays up but reports every send as skipped,
// so a development environment runs the full dispatch loop without
// touching a provider.
type SESSender struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
}

// NewSESSender creates an SES sender. The client is initialized only when
// credentials are present.
func NewSESSender(cfg appconfig.SESConfig) *SESSender {
	sender := &SESSender{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}

	if cfg.Configured() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: failed to initialize AWS config: %v", err)
		} else {
			sender.client = sesv2.NewFromConfig(awsCfg)
		}
	}

	return sender
}

// Send delivers a single message. A nil client is a skip, not an error:
// the dispatch loop counts it and moves on without writing a marker.
func (s *SESSender) Send(ctx context.Context, msg domain.EmailMessage) (domain.SendOutcome, error) {
	if s.client == nil {
		return domain.SendOutcome{Skipped: true, SkipReason: "email provider not configured"}, nil
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return domain.SendOutcome{}, fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Debug("ses delivered", "recipient", msg.To, "message_id", messageID)

	return domain.SendOutcome{Delivered: true, MessageID: messageID}, nil
}
