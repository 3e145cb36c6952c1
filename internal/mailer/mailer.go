// Package mailer sends the platform's transactional email.
//
// The rest of the application only sees the Mailer interface — "deliver a
// message to this address, tell me if it worked". The SMTP details live
// here. Tests use a fake; development without a mail relay uses LogMailer.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"
)

// Mailer is the outbound-email capability the auth service consumes.
//
// The two convenience methods exist because the CALLER shouldn't compose
// email bodies — the service knows the code and the recipient, the mailer
// knows what the message looks like.
type Mailer interface {
	// Send delivers a single message. A non-nil error means the message
	// did not go out and the caller must react (e.g. clear a reset code
	// that nobody will ever receive).
	Send(to, subject, body string) error

	// SendWelcome greets a newly registered user. Best-effort: callers
	// are expected to log failures and move on.
	SendWelcome(to, name string) error

	// SendResetCode delivers a password-reset code and tells the user how
	// long it stays valid.
	SendResetCode(to, code string, lifetime time.Duration) error
}

// SMTPConfig holds the relay settings for the SMTP mailer.
type SMTPConfig struct {
	Host     string // e.g. "smtp.mailgun.org"
	Port     int    // usually 587 (STARTTLS)
	Username string
	Password string
	From     string // sender address, e.g. "LearnQuest <no-reply@learnquest.app>"
}

// SMTPMailer delivers mail through an SMTP relay using stdlib net/smtp.
//
// WHY PLAIN net/smtp?
// Transactional mail at this volume is "connect, AUTH, one message, quit".
// net/smtp's SendMail does exactly that, including STARTTLS when the server
// offers it. No queueing, no retries — if the relay rejects the message the
// error goes straight back to the caller, which is what the reset flow
// needs (a failed delivery must clear the pending code).
type SMTPMailer struct {
	cfg       SMTPConfig
	templates *template.Template
}

// NewSMTP creates an SMTPMailer, parsing the embedded templates once.
func NewSMTP(cfg SMTPConfig) (*SMTPMailer, error) {
	tmpl, err := template.New("emails").Parse(emailTemplates)
	if err != nil {
		return nil, fmt.Errorf("mailer: parsing email templates: %w", err)
	}

	return &SMTPMailer{cfg: cfg, templates: tmpl}, nil
}

// Send delivers one HTML message through the configured relay.
func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	// RFC 5322 headers + blank line + body. Content-Type is declared so
	// clients render the HTML templates instead of showing raw markup.
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, body,
	)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mailer: sending to %s: %w", to, err)
	}
	return nil
}

// SendWelcome greets a new account.
func (m *SMTPMailer) SendWelcome(to, name string) error {
	body, err := m.render("welcome", welcomeData{Name: name})
	if err != nil {
		return err
	}
	return m.Send(to, "Welcome to LearnQuest!", body)
}

// SendResetCode delivers the password-reset code.
func (m *SMTPMailer) SendResetCode(to, code string, lifetime time.Duration) error {
	body, err := m.render("reset", resetData{
		Code:    code,
		Minutes: int(lifetime.Minutes()),
	})
	if err != nil {
		return err
	}
	return m.Send(to, "Your LearnQuest password reset code", body)
}

// render executes one of the embedded named templates.
func (m *SMTPMailer) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mailer: rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}

// LogMailer is the no-relay fallback used in development: every "sent"
// message is written to the log instead. Reset codes show up in the server
// output, which is exactly what you want when testing the flow locally —
// and exactly what you must NOT run in production.
type LogMailer struct {
	logger *slog.Logger
}

// NewLog creates a LogMailer.
func NewLog(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(to, subject, body string) error {
	m.logger.Info("mail (log only, not delivered)",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

func (m *LogMailer) SendWelcome(to, name string) error {
	m.logger.Info("welcome mail (log only)",
		slog.String("to", to),
		slog.String("name", name),
	)
	return nil
}

func (m *LogMailer) SendResetCode(to, code string, lifetime time.Duration) error {
	m.logger.Info("reset code (log only)",
		slog.String("to", to),
		slog.String("code", code),
		slog.Duration("lifetime", lifetime),
	)
	return nil
}
