package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SESSender delivers match emails through Amazon SES
type SESSender struct {
	client *sesv2.Client
	from   string
}

// NewSESSender creates an SES sender using the default AWS config chain
func NewSESSender(ctx context.Context, region, fromAddress string) (*SESSender, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(awsCfg),
		from:   fromAddress,
	}, nil
}

// Send delivers one email and returns the provider message ID
func (s *SESSender) Send(ctx context.Context, to, subject, textBody, htmlBody string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.SESSender.Send")
	defer span.End()

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}

	return messageID, nil
}
