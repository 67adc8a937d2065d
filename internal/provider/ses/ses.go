// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/bermail/internal/email"
	"github.com/shineum/bermail/internal/provider"
)

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// SESProvider sends emails via the AWS SES v2 API. SES is stateless over
// HTTPS, so a session is only a handle on the shared client.
type SESProvider struct {
	sender string
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration. Static
// credentials are used when both keys are set, the default AWS chain
// otherwise.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESProvider{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		sender: sender,
		client: client,
	}
}

// Open returns a session bound to the provider's client.
func (s *SESProvider) Open(_ context.Context) (provider.Session, error) {
	return &session{provider: s}, nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

type session struct {
	provider *SESProvider
	closed   bool
}

// Send delivers one message with the SES simple content format. Messages
// without a sender use the configured default.
func (s *session) Send(ctx context.Context, msg *email.Message) error {
	if s.closed {
		return fmt.Errorf("SES session is closed")
	}
	if msg == nil {
		return fmt.Errorf("invalid message: message is nil")
	}
	m := *msg
	if m.From == "" {
		m.From = s.provider.sender
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	out, err := s.provider.client.SendEmail(ctx, buildSimpleInput(&m))
	if err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}

	var messageID string
	if out != nil {
		messageID = aws.ToString(out.MessageId)
	}
	slog.Debug("SES accepted message", "to", m.To, "message_id", messageID)
	return nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// buildSimpleInput creates a SES SendEmailInput with an HTML body.
func buildSimpleInput(msg *email.Message) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(msg.HTMLBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}
