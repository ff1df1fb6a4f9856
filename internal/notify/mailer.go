package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

// ErrPermanent marks delivery failures that will not improve over time
// (malformed addresses, missing configuration). The worker treats them
// as fatal to itself.
var ErrPermanent = errors.New("permanent mail failure")

// Mail is the outbound-mail collaborator contract.
type Mail struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Mailer delivers one message. Implementations own transport mechanics.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPMailer delivers through an authenticated STARTTLS SMTP relay.
type SMTPMailer struct {
	server   string
	port     string
	password string
}

// NewSMTPMailer configures the relay connection.
func NewSMTPMailer(server, port, password string) *SMTPMailer {
	return &SMTPMailer{server: server, port: port, password: password}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if s.server == "" {
		return fmt.Errorf("%w: no smtp server configured", ErrPermanent)
	}
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("%w: from address %q: %v", ErrPermanent, m.From, err)
	}
	to, err := mail.ParseAddress(m.To)
	if err != nil {
		return fmt.Errorf("%w: recipient address %q: %v", ErrPermanent, m.To, err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from.Address)
	fmt.Fprintf(&msg, "To: %s\r\n", to.Address)
	fmt.Fprintf(&msg, "Subject: %s\r\n", m.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.HTMLBody)

	auth := smtp.PlainAuth("", from.Address, s.password, s.server)
	if err := smtp.SendMail(s.server+":"+s.port, auth, from.Address, []string{to.Address}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
