package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/alerting"
)

// DefaultSendgridHost is the production SendGrid API host.
const DefaultSendgridHost = "https://api.sendgrid.com"

// EmailConfig holds configuration for email notifications.
type EmailConfig struct {
	APIKey      string
	Host        string
	FromAddress string
	FromName    string
	To          []string
	// MinFailuresBeforeEmail is the number of consecutive failed cycles before emailing.
	MinFailuresBeforeEmail int
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.APIKey != "" && c.FromAddress != "" && len(c.To) > 0
}

// EmailNotifier emails refresh failures through SendGrid.
type EmailNotifier struct {
	cfg EmailConfig
	log *zap.Logger
}

var _ alerting.Reporter = (*EmailNotifier)(nil)

// NewEmailNotifier returns a notifier; it is a no-op when cfg is not Enabled.
func NewEmailNotifier(cfg EmailConfig, log *zap.Logger) *EmailNotifier {
	if cfg.Host == "" {
		cfg.Host = DefaultSendgridHost
	}
	if cfg.FromName == "" {
		cfg.FromName = "carparkmanager"
	}
	if cfg.MinFailuresBeforeEmail < 1 {
		cfg.MinFailuresBeforeEmail = 1
	}
	return &EmailNotifier{cfg: cfg, log: log}
}

func (n *EmailNotifier) ReportRefreshFailure(ctx context.Context, f alerting.RefreshFailure) error {
	if !n.cfg.Enabled() {
		return nil
	}
	if f.ConsecutiveFailures < n.cfg.MinFailuresBeforeEmail {
		return nil
	}

	subject := fmt.Sprintf("Car park feed refresh failed (%d in a row)", f.ConsecutiveFailures)
	plain, htmlBody := renderFailure(f)
	if err := n.SendEmail(ctx, subject, plain, htmlBody); err != nil {
		return err
	}
	n.log.Info("notification: sent refresh failure email",
		zap.String("cycle_id", f.CycleID),
		zap.Int("recipients", len(n.cfg.To)))
	return nil
}

// SendEmail delivers a message with plain-text and HTML parts to every
// configured recipient.
func (n *EmailNotifier) SendEmail(ctx context.Context, subject, plain, htmlBody string) error {
	if !n.cfg.Enabled() {
		return errors.New("email not configured")
	}

	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromAddress)
	p := mail.NewPersonalization()
	for _, to := range n.cfg.To {
		p.AddTos(mail.NewEmail("", to))
	}

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject
	message.AddPersonalizations(p)
	message.AddContent(
		mail.NewContent("text/plain", plain),
		mail.NewContent("text/html", htmlBody),
	)

	request := sendgrid.GetRequest(n.cfg.APIKey, "/v3/mail/send", n.cfg.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// renderFailure returns the plain-text and HTML bodies of a failure email.
func renderFailure(f alerting.RefreshFailure) (plain, htmlBody string) {
	last := "never"
	if !f.LastSuccessAt.IsZero() {
		last = f.LastSuccessAt.Format(time.RFC3339)
	}
	const intro = "The car park feed could not be refreshed. The last good snapshot is still being served."
	fields := [][2]string{
		{"Cycle", f.CycleID},
		{"Attempts", strconv.Itoa(f.Attempts)},
		{"Consecutive failures", strconv.Itoa(f.ConsecutiveFailures)},
		{"Started", f.StartedAt.Format(time.RFC3339)},
		{"Last success", last},
		{"Error", f.Error},
	}

	var p, h strings.Builder
	p.WriteString(intro + "\n\n")
	h.WriteString("<p>" + intro + "</p>\n<ul>\n")
	for _, kv := range fields {
		fmt.Fprintf(&p, "%s: %s\n", kv[0], kv[1])
		fmt.Fprintf(&h, "<li>%s: %s</li>\n", kv[0], html.EscapeString(kv[1]))
	}
	h.WriteString("</ul>")
	return p.String(), h.String()
}
