package reports

import (
	"context"
	"fmt"

	"sales_enforcer_backend/platform/config"

	"github.com/wneessen/go-mail"
)

// Mailer sends the weekly digest email over SMTP.
type Mailer struct {
	cfg config.EmailConfig
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers one plain-text message to the configured digest
// recipients. Disabled email config is a silent no-op.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.cfg.GetEmailEnabled() {
		return nil
	}
	recipients := m.cfg.GetDigestRecipients()
	if len(recipients) == 0 {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.GetEmailFromName(), m.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.cfg.GetSMTPHost(),
		mail.WithPort(m.cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.GetSMTPUsername()),
		mail.WithPassword(m.cfg.GetSMTPPassword()),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
