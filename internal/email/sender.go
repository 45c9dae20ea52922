package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mrz1836/postmark"
)

var ErrInvalidConfig = errors.New("invalid email configuration")

// Message is one rendered plain-text email.
type Message struct {
	To      string `json:"to"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tag     string `json:"tag,omitempty"`
}

// Sender delivers a message right away.
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(serverToken, accountToken, from, fromName string) (*PostmarkSender, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(serverToken, accountToken),
		from:   address(fromName, from),
	}, nil
}

func (p *PostmarkSender) Deliver(ctx context.Context, msg Message) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       address(msg.Name, msg.To),
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		TextBody: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("postmark: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

type SMTPSender struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	fromName string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host, port, user, pass, from, fromName string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		from:     from,
		fromName: fromName,
		send:     smtp.SendMail,
	}
}

func (s *SMTPSender) Deliver(_ context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", address(s.fromName, s.from))
	fmt.Fprintf(&b, "To: %s\r\n", address(msg.Name, msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	var auth smtp.Auth
	if s.user != "" && s.pass != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}
	return s.send(s.host+":"+s.port, auth, s.from, []string{msg.To}, []byte(b.String()))
}

// NewSender picks Postmark when a server token is configured and SMTP
// otherwise.
func NewSender(postmarkServerToken, postmarkAccountToken, smtpHost, smtpPort, smtpUser, smtpPass, from, fromName string) (Sender, error) {
	if postmarkServerToken != "" {
		return NewPostmarkSender(postmarkServerToken, postmarkAccountToken, from, fromName)
	}
	return NewSMTPSender(smtpHost, smtpPort, smtpUser, smtpPass, from, fromName), nil
}

func address(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%q <%s>", name, email)
}
