package relay

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"

	"github.com/sapliy/pm-portal/internal/content"
)

// Mailer sends one HTML e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client    *resend.Client
	fromEmail string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	if from == "" {
		from = "onboarding@resend.dev"
	}
	return &ResendMailer{client: resend.NewClient(apiKey), fromEmail: from}
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return nil
}

// EmailSink alerts a PM mailbox that new release notes wait for review.
type EmailSink struct {
	mailer    Mailer
	to        string
	portalURL string
}

// NewEmailSink links alerts to the editor page under portalURL.
func NewEmailSink(m Mailer, to, portalURL string) *EmailSink {
	return &EmailSink{mailer: m, to: to, portalURL: portalURL}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Forward(ctx context.Context, msg *Message) error {
	html, err := RenderAlert(msg, s.portalURL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, s.to, AlertSubject(msg), html)
}

func AlertSubject(msg *Message) string {
	if msg.JiraReference != "" {
		return fmt.Sprintf("New release notes: %s (%s)", msg.Title, msg.JiraReference)
	}
	return "New release notes: " + msg.Title
}

const alertLayout = `<!DOCTYPE html>
<html>
<head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
    <style>
        body { background-color: #f6f9fc; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; font-size: 16px; line-height: 1.5; margin: 0; padding: 0; }
        .container { margin: 0 auto; max-width: 580px; padding: 10px; }
        .main { background: #ffffff; border-radius: 8px; border: 1px solid #e1e9ee; padding: 20px; }
        h1 { font-size: 22px; margin: 0 0 16px 0; color: #32325d; }
        .meta { color: #8898aa; font-size: 13px; margin-bottom: 16px; }
        .btn { background-color: #1976d2; border-radius: 4px; color: #ffffff; display: inline-block; font-weight: bold; padding: 10px 20px; text-decoration: none; }
        .footer { color: #8898aa; font-size: 12px; text-align: center; margin-top: 10px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="main">
            <h1>{{.Title}}</h1>
            <div class="meta">{{.Source}}{{if .Jira}} &middot; {{.Jira}}{{end}}</div>
            {{.Body}}
            {{if .Link}}<p><a class="btn" href="{{.Link}}" target="_blank">Review in the portal</a></p>{{end}}
        </div>
        <div class="footer">PM Notification Portal &middot; {{.Images}} image(s) attached in the portal</div>
    </div>
</body>
</html>
`

var alertTmpl = template.Must(template.New("alert").Parse(alertLayout))

// RenderAlert renders the review alert. Embedded images are left out of
// the mail body.
func RenderAlert(msg *Message, portalURL string) (string, error) {
	doc := content.Decode(msg.Notification.Content)

	data := map[string]any{
		"Title":  msg.Title,
		"Source": msg.Notification.SourceLabel(),
		"Jira":   msg.JiraReference,
		// Release notes are HTML authored upstream.
		"Body":   template.HTML(doc.Text),
		"Images": len(doc.Images),
	}
	if portalURL != "" {
		data["Link"] = fmt.Sprintf("%s/editor/%d", portalURL, msg.NotificationID)
	}

	var buf bytes.Buffer
	if err := alertTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render alert: %w", err)
	}
	return buf.String(), nil
}
