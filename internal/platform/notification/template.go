package notification

import (
	"fmt"
	"strings"
	"sync"
)

type Audience string

const (
	AudiencePatient Audience = "patient"
	AudienceDoctor  Audience = "doctor"
)

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	Subject string
	Body    string
}

type Message struct {
	Subject string
	Body    string
}

type templateKey struct {
	kind     EventKind
	audience Audience
}

// TemplateEngine renders event templates. Placeholders with no value in the
// data map are left as-is.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[templateKey]Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	e.templates[templateKey{VisitCreated, AudiencePatient}] = Template{
		Subject: "Visit scheduled with {{doctor_name}}",
		Body:    "Dear {{recipient}}, a visit with {{doctor_name}} has been scheduled for {{date}} at {{time}}.",
	}
	e.templates[templateKey{VisitCreated, AudienceDoctor}] = Template{
		Subject: "New visit with {{patient_name}}",
		Body:    "A visit with {{patient_name}} has been added to your schedule for {{date}} at {{time}}.",
	}
	e.templates[templateKey{VisitRescheduled, AudiencePatient}] = Template{
		Subject: "Your visit has been rescheduled",
		Body:    "Dear {{recipient}}, your visit with {{doctor_name}} now takes place on {{date}} at {{time}}.",
	}
	e.templates[templateKey{VisitRescheduled, AudienceDoctor}] = Template{
		Subject: "Visit with {{patient_name}} rescheduled",
		Body:    "The visit with {{patient_name}} has been moved to {{date}} at {{time}}.",
	}
	e.templates[templateKey{VisitReminder, AudiencePatient}] = Template{
		Subject: "Reminder: visit with {{doctor_name}}",
		Body:    "Dear {{recipient}}, this is a reminder of your visit with {{doctor_name}} on {{date}} at {{time}}.",
	}
}

// Register adds or replaces the template for kind and audience.
func (e *TemplateEngine) Register(kind EventKind, audience Audience, t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[templateKey{kind, audience}] = t
}

func (e *TemplateEngine) Render(kind EventKind, audience Audience, data map[string]string) (Message, error) {
	e.mu.RLock()
	t, ok := e.templates[templateKey{kind, audience}]
	e.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("no %s template for %s", audience, kind)
	}

	msg := Message{Subject: t.Subject, Body: t.Body}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		msg.Subject = strings.ReplaceAll(msg.Subject, placeholder, v)
		msg.Body = strings.ReplaceAll(msg.Body, placeholder, v)
	}
	return msg, nil
}
