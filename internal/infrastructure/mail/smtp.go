// Package mail delivers notification.Message values.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"ordertx/internal/domain/notification"
	"ordertx/pkg/logger"
)

// SMTPConfig holds SMTP delivery settings.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
}

var _ notification.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and creates a notifier. PLAIN auth is used
// when a username is configured.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("smtp addr %q: %w", cfg.Addr, err)
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", cfg.From, err)
	}

	n := &SMTPNotifier{cfg: cfg, send: smtp.SendMail, now: time.Now}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return n, nil
}

// Send delivers msg. smtp.SendMail does not take a context, so ctx is only
// checked before dialing.
func (n *SMTPNotifier) Send(ctx context.Context, msg notification.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", msg.To, err)
	}

	if err := n.send(n.cfg.Addr, n.auth, n.cfg.From, []string{to.Address}, n.compose(to.Address, msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to.Address, err)
	}
	logger.Info(ctx, "mail sent", "to", to.Address, "subject", msg.Subject)
	return nil
}

func (n *SMTPNotifier) compose(to string, msg notification.Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}
