package usecase

import (
	"errors"
	"reflect"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/catalog"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/go-playground/validator/v10"
)

// actionFields is the validated view of a create request or a patched record.
type actionFields struct {
	SubjectUserID      string `field:"user_id"           validate:"required,max=256"`
	SubjectDisplayName string `field:"user_display_name" validate:"required,max=256"`
	SubjectEmail       string `field:"user_email"        validate:"required,email"`
	ScheduledDate      string `field:"scheduled_date"    validate:"required,datetime=2006-01-02"`
	ScheduledTime      string `field:"scheduled_time"    validate:"required,datetime=15:04"`
	Timezone           string `field:"timezone"          validate:"required,timezone"`
	ManagerEmail       string `field:"manager_email"     validate:"omitempty,email"`
	CustomMessage      string `field:"custom_message"    validate:"max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	return v
}

var reasons = map[string]string{
	"required": "is required",
	"email":    "must be an e-mail address",
	"datetime": "has the wrong format",
	"timezone": "must be an IANA zone identifier",
	"max":      "is too long",
}

// validateAction checks a and, when everything is valid, reschedules it to
// the given wall-clock triple. The schedule is untouched on error.
func validateAction(a *domain.ScheduledAction, date, clock, tz string) error {
	fields := map[string]string{}

	err := validate.Struct(actionFields{
		SubjectUserID:      a.SubjectUserID,
		SubjectDisplayName: a.SubjectDisplayName,
		SubjectEmail:       a.SubjectEmail,
		ScheduledDate:      date,
		ScheduledTime:      clock,
		Timezone:           tz,
		ManagerEmail:       a.ManagerEmail,
		CustomMessage:      a.CustomMessage,
	})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			reason, ok := reasons[fe.Tag()]
			if !ok {
				reason = "is invalid"
			}
			fields[fe.Field()] = reason
		}
	} else if err != nil {
		return err
	}

	if a.NotifyManager && a.ManagerEmail == "" {
		fields["manager_email"] = "is required when notify_manager is set"
	}

	switch steps, err := catalog.Expand(a.Config); {
	case a.Config.IsZero():
		fields["template"] = "template or custom_actions is required"
	case errors.Is(err, domain.ErrUnknownTemplate):
		fields["template"] = "unknown template"
	case err != nil:
		fields["template"] = err.Error()
	case len(steps) == 0:
		fields["custom_actions"] = "select at least one action"
	}

	if len(fields) > 0 {
		return validationError(fields)
	}

	return a.Reschedule(date, clock, tz)
}

func validationError(fields map[string]string) *domain.ValidationError {
	if len(fields) == 1 {
		for f, r := range fields {
			return &domain.ValidationError{Field: f, Reason: r}
		}
	}
	return &domain.ValidationError{Fields: fields}
}
