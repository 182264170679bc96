// Package notify delivers customer notifications out of band.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/aws"
)

// Sender delivers a plain-text message to a single address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SESSender sends mail through Amazon SES v2.
type SESSender struct {
	client aws.SESAPI
	from   string
}

// NewSESSender returns a sender using from as the envelope and header sender.
func NewSESSender(client aws.SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

// Send implements Sender.
func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("notify: empty recipient")
	}
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &s.from,
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: &subject},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: &body},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It is used
// when running locally without SES.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.Logger.Info("notification not delivered (log sender)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// OTPMessage renders the subject and body of an order verification mail.
func OTPMessage(orderID, code string, expiresAt time.Time) (subject, body string) {
	subject = "Your order verification code"
	body = fmt.Sprintf(
		"Use code %s to confirm order %s.\nThe code expires at %s.\nIf you did not place this order, ignore this email.",
		code, orderID, expiresAt.UTC().Format(time.RFC1123),
	)
	return subject, body
}
