// Package mail renders account emails and hands them to a Sender.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log"
	"path"
	"sync"
	"text/template"
	"time"
)

const (
	TemplateConfirm       = "auth/email/confirm"
	TemplateResetPassword = "auth/email/reset_password"
	TemplateChangeEmail   = "auth/email/change_email"
)

//go:embed templates
var templateFS embed.FS

type Message struct {
	From     string
	To       string
	Subject  string
	Template string
	Body     string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender records that a message was sent without delivering it. The body
// carries live account tokens and is never logged.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("[Mail] from=%s to=%s subject=%q template=%s (%d byte body withheld)", msg.From, msg.To, msg.Subject, msg.Template, len(msg.Body))
	return nil
}

// Outbox keeps sent messages in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// Last returns the most recent message sent to the address.
func (o *Outbox) Last(to string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To == to {
			return o.sent[i], true
		}
	}
	return Message{}, false
}

// TokenMail is the data every account template receives.
type TokenMail struct {
	Username  string
	Token     string
	Endpoint  string
	ExpiresAt time.Time
}

type Mailer struct {
	sender    Sender
	from      string
	prefix    string
	templates *template.Template
}

func NewMailer(sender Sender, from, subjectPrefix string) (*Mailer, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format(time.RFC1123)
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(templateFS, "templates/auth/email/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{sender: sender, from: from, prefix: subjectPrefix, templates: tpl}, nil
}

// Send renders the named template (e.g. "auth/email/confirm") and delivers it.
func (m *Mailer) Send(ctx context.Context, to, subject, name string, data any) error {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, templateFile(name), data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	msg := Message{
		From:     m.from,
		To:       to,
		Subject:  m.subject(subject),
		Template: name,
		Body:     body.String(),
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", name, to, err)
	}
	return nil
}

func (m *Mailer) subject(s string) string {
	if m.prefix == "" {
		return s
	}
	return m.prefix + " " + s
}

// ParseFS names templates after the file's base name.
func templateFile(name string) string {
	return path.Base(name) + ".txt"
}
