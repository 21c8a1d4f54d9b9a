package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

type captureSender struct {
	to, subject, body string
	err               error
}

func (s *captureSender) Send(_ context.Context, to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

func testNotice(audience Audience) Notice {
	return Notice{
		Audience:      audience,
		SubjectName:   "Ada Lovelace",
		SubjectEmail:  "ada@example.com",
		ScheduledAt:   time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		Timezone:      "America/New_York",
		CustomMessage: "<b>Thanks</b>",
		Results: []domain.StepResult{
			{Action: "Disable Account", Status: domain.StepSuccess, Message: "Account disabled"},
			{Action: "Revoke Sessions", Status: domain.StepError, Message: "timeout"},
		},
	}
}

func TestNotify_ManagerGetsStepTable(t *testing.T) {
	s := &captureSender{}
	n := NewNotifier(s)

	if err := n.Notify(context.Background(), "boss@example.com", testNotice(AudienceManager)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.to != "boss@example.com" {
		t.Errorf("to = %q", s.to)
	}
	if !strings.Contains(s.subject, "Ada Lovelace") {
		t.Errorf("subject = %q", s.subject)
	}
	for _, want := range []string{"Disable Account", "Revoke Sessions", "timeout", "2025-06-01 09:00 EDT"} {
		if !strings.Contains(s.body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(s.body, "<b>Thanks</b>") {
		t.Error("custom message was not escaped")
	}
}

func TestNotify_UserWording(t *testing.T) {
	s := &captureSender{}
	if err := NewNotifier(s).Notify(context.Background(), "ada@example.com", testNotice(AudienceUser)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.subject != "Your account access has ended" {
		t.Errorf("subject = %q", s.subject)
	}
	if !strings.Contains(s.body, "Hello Ada Lovelace") {
		t.Errorf("body = %q", s.body)
	}
}

func TestNotify_NoRecipient(t *testing.T) {
	s := &captureSender{}
	err := NewNotifier(s).Notify(context.Background(), "", testNotice(AudienceManager))
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if s.to != "" {
		t.Error("sender should not have been called")
	}
}

func TestNotify_SenderErrorPropagates(t *testing.T) {
	boom := errors.New("resend: rate limited")
	err := NewNotifier(&captureSender{err: boom}).Notify(context.Background(), "x@example.com", testNotice(AudienceManager))
	if !errors.Is(err, boom) {
		t.Fatalf("expected sender error, got %v", err)
	}
}
