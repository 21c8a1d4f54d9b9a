package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

var ErrNoRecipient = errors.New("no recipient address configured")

type Audience string

const (
	AudienceManager Audience = "manager"
	AudienceUser    Audience = "user"
)

// Notice is everything a notification e-mail reports about one run.
type Notice struct {
	Audience      Audience
	SubjectName   string
	SubjectEmail  string
	ScheduledAt   time.Time
	Timezone      string
	CustomMessage string
	Results       []domain.StepResult
}

type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) Notify(ctx context.Context, to string, notice Notice) error {
	if to == "" {
		return ErrNoRecipient
	}
	subject, body, err := render(notice)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, to, subject, body)
}

var noticeTmpl = template.Must(template.New("notice").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
{{if eq .Audience "user"}}<p>Hello {{.SubjectName}},</p>
<p>Your account access has been ended as of {{.When}}.</p>
{{else}}<p>Offboarding for <strong>{{.SubjectName}}</strong> ({{.SubjectEmail}}) ran at {{.When}}.</p>
{{end}}{{if .CustomMessage}}<p>{{.CustomMessage}}</p>
{{end}}{{if .Results}}<table cellpadding="4">
<tr><th align="left">Step</th><th align="left">Result</th><th align="left">Details</th></tr>
{{range .Results}}<tr><td>{{.Action}}</td><td>{{.Status}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{end}}</body></html>`))

func render(n Notice) (string, string, error) {
	when := n.ScheduledAt.UTC().Format("2006-01-02 15:04 MST")
	if loc, err := time.LoadLocation(n.Timezone); err == nil && n.Timezone != "" {
		when = n.ScheduledAt.In(loc).Format("2006-01-02 15:04 MST")
	}

	var buf bytes.Buffer
	err := noticeTmpl.Execute(&buf, struct {
		Notice
		When string
	}{n, when})
	if err != nil {
		return "", "", fmt.Errorf("render notice: %w", err)
	}

	subject := "Offboarding completed: " + n.SubjectName
	if n.Audience == AudienceUser {
		subject = "Your account access has ended"
	}
	return subject, buf.String(), nil
}
