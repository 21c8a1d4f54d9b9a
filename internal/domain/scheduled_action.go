package domain

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without /usr/share/zoneinfo
)

var (
	ErrNotFound        = errors.New("scheduled action not found")
	ErrInvalidState    = errors.New("scheduled action is not in a state that allows this operation")
	ErrUnrecoverable   = errors.New("execution aborted before any step ran")
	ErrSubjectNotFound = errors.New("subject user not found")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusExecuting Status = "executing" // claim marker, held only while a run is in flight
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusExecuting, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type ScheduledAction struct {
	ID       string
	TenantID string
	OwnerID  string

	// Snapshot of the subject at schedule time, not a live reference.
	SubjectUserID      string
	SubjectDisplayName string
	SubjectEmail       string

	ScheduledDate string // YYYY-MM-DD in Timezone
	ScheduledTime string // HH:MM in Timezone
	Timezone      string
	ScheduledAt   time.Time // absolute instant derived from the three fields above

	Config ActionConfig

	NotifyManager bool
	NotifyUser    bool
	ManagerEmail  string
	CustomMessage string

	Status        Status
	Results       []StepResult
	FailureReason *string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExecutedAt *time.Time // claim time; nil while scheduled
	FinishedAt *time.Time
}

// Reschedule sets the wall-clock triple and the derived instant together.
// Nothing is changed when the triple does not resolve.
func (a *ScheduledAction) Reschedule(date, clock, timezone string) error {
	at, err := ResolveInstant(date, clock, timezone)
	if err != nil {
		return err
	}
	loc, _ := time.LoadLocation(timezone) // resolved above
	a.ScheduledDate = date
	a.ScheduledTime = at.In(loc).Format(ClockLayout) // "9:00" is stored as "09:00"
	a.Timezone = timezone
	a.ScheduledAt = at
	return nil
}

func (a *ScheduledAction) Scope() Scope {
	return Scope{TenantID: a.TenantID, OwnerID: a.OwnerID}
}

// ResolveInstant interprets date and clock as wall-clock time in the named
// IANA zone and returns the corresponding UTC instant.
func ResolveInstant(date, clock, timezone string) (time.Time, error) {
	if timezone == "" || timezone == "Local" {
		return time.Time{}, &ValidationError{Field: "timezone", Reason: "must be an IANA zone identifier"}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown zone %q", timezone)}
	}
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "scheduled_date", Reason: "must be YYYY-MM-DD"}
	}
	c, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "scheduled_time", Reason: "must be HH:MM"}
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc)
	// time.Date shifts wall-clock times inside a DST gap; such a time never
	// occurs in the zone and would not read back as entered.
	if at.Day() != d.Day() || at.Hour() != c.Hour() || at.Minute() != c.Minute() {
		return time.Time{}, &ValidationError{
			Field:  "scheduled_time",
			Reason: fmt.Sprintf("does not exist in %s on %s", timezone, date),
		}
	}
	return at.UTC(), nil
}

// Outcome is what the aggregator writes back once a run is over.
type Outcome struct {
	Status        Status
	Results       []StepResult
	FailureReason *string
	FinishedAt    time.Time
}
