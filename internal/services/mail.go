package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
)

type MailMessage struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers outbound mail. A failed send is returned to the caller
// without retrying.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if err := smtp.SendMail(addr, auth, m.From, msg.To, composeMail(m.From, msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// composeMail builds the RFC 5322 message with a Q-encoded subject.
func composeMail(from string, msg MailMessage) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}

// LogMailer writes messages to the log instead of delivering them. It is used
// when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg MailMessage) error {
	log.Printf("mail to=%s subject=%q\n%s", strings.Join(msg.To, ","), msg.Subject, msg.Body)
	return nil
}

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

const (
	mailActivation    = "activation"
	mailEmailChange   = "email_change"
	mailPasswordReset = "password_reset"
	mailComment       = "comment"
	mailUpload        = "upload"
)

var mailTemplates = map[string]mailTemplate{
	mailActivation: parseMailTemplate(mailActivation,
		`Confirm your registration`,
		`Hello {{.Email}},

Thank you for registering. Open the link below to activate your account:

{{.Link}}

The link is valid for {{.ValidFor}}.
`),
	mailEmailChange: parseMailTemplate(mailEmailChange,
		`Confirm your new email address`,
		`Hello {{.Email}},

A change of the account email address to {{.NewEmail}} was requested.
Open the link below to confirm it:

{{.Link}}

The link is valid for {{.ValidFor}}.
`),
	mailPasswordReset: parseMailTemplate(mailPasswordReset,
		`Password reset`,
		`Hello {{.Email}},

Open the link below to choose a new password:

{{.Link}}

If you did not request this, you can ignore this message.
`),
	mailComment: parseMailTemplate(mailComment,
		`New comment: {{.Title}}`,
		`A new comment was posted on "{{.VideoTitle}}".

Lecturer: {{.LecturerName}} <{{.LecturerEmail}}>
Title: {{.Title}}

{{.Text}}

{{.Link}}
`),
	mailUpload: parseMailTemplate(mailUpload,
		`Your video was uploaded`,
		`Your video "{{.Title}}" was uploaded.

{{.Link}}
`),
}

func parseMailTemplate(name, subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(name + ".subject").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Parse(body)),
	}
}

func renderMail(name string, to []string, data interface{}) (MailMessage, error) {
	tmpl, ok := mailTemplates[name]
	if !ok {
		return MailMessage{}, fmt.Errorf("unknown mail template %q", name)
	}
	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return MailMessage{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return MailMessage{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return MailMessage{
		To:      to,
		Subject: strings.Join(strings.Fields(subject.String()), " "),
		Body:    body.String(),
	}, nil
}

func sendTemplate(ctx context.Context, mailer Mailer, name string, to []string, data interface{}) error {
	msg, err := renderMail(name, to, data)
	if err != nil {
		return err
	}
	return mailer.Send(ctx, msg)
}
