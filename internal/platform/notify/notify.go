// Package notify delivers outbound email with template rendering. Delivery
// is best-effort: a failed send is logged and must never fail the operation
// that triggered it.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable notification template. Placeholders use the
// {{key}} form.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Built-in template IDs.
const (
	TemplateAnalysisReady  = "analysis-ready"
	TemplateConsentGranted = "consent-granted"
	TemplateConsentRevoked = "consent-revoked"
	TemplateReminderDue    = "reminder-due"
	TemplatePasswordReset  = "password-reset"
)

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAnalysisReady,
			Subject: "Your lab report has been processed",
			Body:    "Dear {{patient_name}}, your lab report \"{{title}}\" has been processed. Log in to review the extracted results.",
		},
		{
			ID:      TemplateConsentGranted,
			Subject: "Access granted to your records",
			Body:    "Dear {{patient_name}}, Dr. {{doctor_name}} has been granted access to your {{scope}} records.",
		},
		{
			ID:      TemplateConsentRevoked,
			Subject: "Access to your records revoked",
			Body:    "Dear {{patient_name}}, access for Dr. {{doctor_name}} to your {{scope}} records has been revoked.",
		},
		{
			ID:      TemplateReminderDue,
			Subject: "Reminder: {{title}}",
			Body:    "Dear {{patient_name}}, this is a reminder: {{title}}, due {{due_at}}.",
		},
		{
			ID:      TemplatePasswordReset,
			Subject: "Password reset request",
			Body:    "You requested a password reset. Use the following link to reset your password: {{reset_link}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Journal receives an in-app copy of every user-addressed notification.
// Implementations persist it; failures are logged by the Notifier and never
// surface to the triggering operation.
type Journal interface {
	Journal(ctx context.Context, userID uuid.UUID, templateID, subject, body string, data map[string]string) error
}

// Notifier renders templates and dispatches them through an EmailSender.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	journal   Journal
	log       zerolog.Logger
}

// NewNotifier constructs a Notifier. A nil sender yields a notifier that
// drops every message, which keeps call sites unconditional.
func NewNotifier(sender EmailSender, templates *TemplateEngine, log zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, templates: templates, log: log}
}

// SetJournal attaches an in-app journal receiving a copy of every message
// sent through SendUser.
func (n *Notifier) SetJournal(j Journal) { n.journal = j }

// Send renders the template and emails it to the recipient. Errors are
// logged, never returned.
func (n *Notifier) Send(ctx context.Context, templateID, recipient string, data map[string]string) {
	if n == nil {
		return
	}
	n.deliver(ctx, uuid.Nil, templateID, recipient, data)
}

// SendUser is Send for a known platform user: the rendered message is also
// journaled as an in-app notification.
func (n *Notifier) SendUser(ctx context.Context, userID uuid.UUID, templateID, recipient string, data map[string]string) {
	if n == nil {
		return
	}
	n.deliver(ctx, userID, templateID, recipient, data)
}

func (n *Notifier) deliver(ctx context.Context, userID uuid.UUID, templateID, recipient string, data map[string]string) {
	if n.sender == nil && n.journal == nil {
		return
	}

	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		n.log.Error().Err(err).Str("template", templateID).Msg("failed to render notification")
		return
	}

	if n.journal != nil && userID != uuid.Nil {
		if err := n.journal.Journal(ctx, userID, templateID, subject, body, data); err != nil {
			n.log.Error().
				Err(err).
				Str("template", templateID).
				Str("user_id", userID.String()).
				Msg("failed to journal notification")
		}
	}

	if n.sender == nil {
		return
	}
	if err := n.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		n.log.Error().
			Err(err).
			Str("template", templateID).
			Str("recipient", recipient).
			Msg("failed to send notification")
	}
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and as the default when no SMTP relay is configured.
type LogSender struct {
	Log zerolog.Logger
}

// SendEmail logs the message.
func (s *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Log.Info().Str("to", to).Str("subject", subject).Msg("email notification")
	return nil
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return fmt.Errorf("send failed")
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
