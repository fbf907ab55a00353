package mail

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"sort"
	"strings"

	"mystore/internal/platform/config"
)

type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     mail.Address
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
		from:     mailAddress(cfg.FromName, cfg.FromAddress),
	}
}

func (s *SMTPSender) Validate() error {
	if s.host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if s.port <= 0 {
		return fmt.Errorf("smtp port is required")
	}
	if s.from.Address == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := smtp.SendMail(addr, auth, s.from.Address, []string{msg.To}, buildMessage(s.from, msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// buildMessage renders msg as an RFC 5322 message. Extra headers are written in
// sorted order so output is stable.
func buildMessage(from mail.Address, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k + ": " + msg.Headers[k] + "\r\n")
	}

	if msg.HTML != "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text)
	}
	return []byte(b.String())
}

func mailAddress(name, address string) mail.Address {
	return mail.Address{Name: name, Address: address}
}
