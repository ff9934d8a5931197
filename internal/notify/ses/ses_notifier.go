package ses

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"adekit/internal/config"
	"adekit/internal/domain"
	"adekit/internal/notify"
	"adekit/internal/port"
)

// EmailAPI is the subset of the SES v2 client the notifier uses.
type EmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesNotifier struct {
	client      EmailAPI
	fromAddress string
	fromName    string
	baseURL     string
}

// NewSESNotifier creates an SES-backed Notifier.
func NewSESNotifier(ctx context.Context, cfg *config.NotifyConfig) (port.Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient creates a Notifier around an existing SES client.
func NewWithClient(client EmailAPI, cfg *config.NotifyConfig) port.Notifier {
	return &sesNotifier{
		client:      client,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     cfg.BaseURL,
	}
}

func (s *sesNotifier) NotifyJobFinished(ctx context.Context, job *domain.Job) error {
	if job.NotifyEmail == "" {
		return nil
	}
	msg := notify.JobFinished(s.baseURL, job)
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &msg.Subject},
				Body: &types.Body{
					Html: &types.Content{Data: &msg.HTML},
					Text: &types.Content{Data: &msg.Text},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}
