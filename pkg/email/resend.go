package email

import (
	"bytes"
	"html/template"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

const subscriptionStartedTemplate = `
<p>Hi {{.FullName}},</p>
<p>Your subscription for team <strong>{{.TeamName}}</strong> is now active.
You can manage billing and download invoices from your team's billing page.</p>
<p>&mdash; The team</p>
`

type EmailService struct {
	client   *resend.Client
	from     string
	fromName string
	tmpl     *template.Template
	logger   *zap.SugaredLogger
}

func NewEmailService(apiKey, from, fromName string, logger *zap.SugaredLogger) *EmailService {
	return &EmailService{
		client:   resend.NewClient(apiKey),
		from:     from,
		fromName: fromName,
		tmpl:     template.Must(template.New("subscription_started").Parse(subscriptionStartedTemplate)),
		logger:   logger,
	}
}

func (s *EmailService) SendSubscriptionStarted(toEmail, fullName, teamName string) error {
	var html bytes.Buffer
	err := s.tmpl.Execute(&html, map[string]string{
		"FullName": fullName,
		"TeamName": teamName,
	})
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.fromName + " <" + s.from + ">",
		To:      []string{toEmail},
		Subject: "Your subscription is active",
		Html:    html.String(),
	}

	sent, err := s.client.Emails.Send(params)
	if err != nil {
		return err
	}
	s.logger.Infow("subscription email sent", "to", toEmail, "email_id", sent.Id)
	return nil
}
