// Package catalog maps templates and custom flags to the ordered steps an
// offboarding run performs. It is pure data and makes no external calls.
package catalog

import (
	"fmt"
	"sort"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

// Steps in canonical execution order. Account lockout runs first and
// notifications last so they can report what actually happened.
var (
	DisableAccount = domain.Step{Kind: domain.StepDisableAccount, Name: "Disable Account", Capability: domain.CapabilityAccount}
	RevokeSessions = domain.Step{Kind: domain.StepRevokeSessions, Name: "Revoke Sessions", Capability: domain.CapabilityAccount}
	RemoveGroups   = domain.Step{Kind: domain.StepRemoveGroups, Name: "Remove Group Memberships", Capability: domain.CapabilityGroups}
	BackupMailbox  = domain.Step{Kind: domain.StepBackupMailbox, Name: "Backup Mailbox Data", Capability: domain.CapabilityMailbox}
	ConvertMailbox = domain.Step{Kind: domain.StepConvertMailbox, Name: "Convert to Shared Mailbox", Capability: domain.CapabilityMailbox}
	RemoveDevices  = domain.Step{Kind: domain.StepRemoveDevices, Name: "Remove Devices", Capability: domain.CapabilityDevices}
	NotifyManager  = domain.Step{Kind: domain.StepNotifyManager, Name: "Notify Manager", Capability: domain.CapabilityNotification}
	NotifyUser     = domain.Step{Kind: domain.StepNotifyUser, Name: "Notify User", Capability: domain.CapabilityNotification}
)

var order = map[domain.StepKind]int{
	domain.StepDisableAccount: 0,
	domain.StepRevokeSessions: 1,
	domain.StepRemoveGroups:   2,
	domain.StepBackupMailbox:  3,
	domain.StepConvertMailbox: 4,
	domain.StepRemoveDevices:  5,
	domain.StepNotifyManager:  6,
	domain.StepNotifyUser:     7,
}

const (
	TemplateStandard   = "standard"
	TemplateExecutive  = "executive"
	TemplateContractor = "contractor"
	TemplateSecurity   = "security"
)

var templates = map[string][]domain.Step{
	TemplateStandard:   {DisableAccount, RevokeSessions, RemoveGroups, ConvertMailbox},
	TemplateExecutive:  {DisableAccount, RevokeSessions, RemoveGroups, BackupMailbox, ConvertMailbox},
	TemplateContractor: {DisableAccount, RevokeSessions, RemoveGroups, RemoveDevices},
	TemplateSecurity:   {DisableAccount, RevokeSessions, RemoveGroups, BackupMailbox, ConvertMailbox, RemoveDevices},
}

// Template is a catalog entry as exposed to clients.
type Template struct {
	ID    string
	Steps []domain.Step
}

// Templates returns every template sorted by id.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for id, steps := range templates {
		out = append(out, Template{ID: id, Steps: append([]domain.Step(nil), steps...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Expand returns the directory and mailbox steps a config implies.
func Expand(cfg domain.ActionConfig) ([]domain.Step, error) {
	if id, ok := cfg.Template(); ok {
		steps, found := templates[id]
		if !found {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, id)
		}
		return append([]domain.Step(nil), steps...), nil
	}

	c, ok := cfg.Custom()
	if !ok {
		return nil, fmt.Errorf("action config has neither template nor custom actions")
	}

	var steps []domain.Step
	if c.DisableAccount {
		steps = append(steps, DisableAccount)
	}
	if c.RevokeAccess {
		steps = append(steps, RevokeSessions)
	}
	if c.RemoveFromGroups {
		steps = append(steps, RemoveGroups)
	}
	if c.BackupData {
		steps = append(steps, BackupMailbox)
	}
	if c.ConvertToSharedMailbox {
		steps = append(steps, ConvertMailbox)
	}
	if c.RemoveDevices {
		steps = append(steps, RemoveDevices)
	}
	return steps, nil
}

// Notifications returns the notification steps for the given switches.
func Notifications(notifyManager, notifyUser bool) []domain.Step {
	var steps []domain.Step
	if notifyManager {
		steps = append(steps, NotifyManager)
	}
	if notifyUser {
		steps = append(steps, NotifyUser)
	}
	return steps
}

// Plan is the full ordered step list for one scheduled action.
func Plan(a *domain.ScheduledAction) ([]domain.Step, error) {
	steps, err := Expand(a.Config)
	if err != nil {
		return nil, err
	}
	steps = append(steps, Notifications(a.NotifyManager, a.NotifyUser)...)
	sort.SliceStable(steps, func(i, j int) bool { return order[steps[i].Kind] < order[steps[j].Kind] })
	return steps, nil
}
