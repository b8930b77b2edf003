// Package smtp sends run notifications through an SMTP relay using go-mail.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// Config describes the relay. Credentials arrive separately at run start.
type Config struct {
	Host      string
	Port      int
	TLSPolicy string
	Timeout   time.Duration
}

// Notifier implements crawler.Notifier.
type Notifier struct {
	client *mail.Client
	from   string
}

// New builds a Notifier sending as creds.Username. A connection is opened per Send.
func New(cfg Config, creds crawler.MailCredentials) (*Notifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if creds.Username == "" {
		return nil, errors.New("smtp username is required")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.Username),
		mail.WithPassword(creds.Password),
		mail.WithTLSPortPolicy(tlsPolicy(cfg.TLSPolicy)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("new smtp client: %w", err)
	}
	return &Notifier{client: client, from: creds.Username}, nil
}

// Factory adapts New to crawler.NotifierFactory.
func Factory(cfg Config) crawler.NotifierFactory {
	return func(creds crawler.MailCredentials) (crawler.Notifier, error) {
		return New(cfg, creds)
	}
}

// Send delivers one plain-text message.
func (n *Notifier) Send(ctx context.Context, to, subject, body string) error {
	msg, err := buildMessage(n.from, to, subject, body)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) (*mail.Msg, error) {
	recipients := splitRecipients(to)
	if len(recipients) == 0 {
		return nil, errors.New("no recipients")
	}
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func splitRecipients(to string) []string {
	fields := strings.FieldsFunc(to, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if addr := strings.TrimSpace(f); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch strings.ToLower(name) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}
