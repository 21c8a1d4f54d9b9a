package domain

// Capability names the adapter that performs a step.
type Capability string

const (
	CapabilityAccount      Capability = "account"
	CapabilityGroups       Capability = "groups"
	CapabilityMailbox      Capability = "mailbox"
	CapabilityDevices      Capability = "devices"
	CapabilityNotification Capability = "notification"
)

type StepKind string

const (
	StepDisableAccount StepKind = "disable_account"
	StepRevokeSessions StepKind = "revoke_sessions"
	StepRemoveGroups   StepKind = "remove_from_groups"
	StepBackupMailbox  StepKind = "backup_mailbox"
	StepConvertMailbox StepKind = "convert_mailbox"
	StepRemoveDevices  StepKind = "remove_devices"
	StepNotifyManager  StepKind = "notify_manager"
	StepNotifyUser     StepKind = "notify_user"
)

type Step struct {
	Kind       StepKind
	Name       string
	Capability Capability
}

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

type StepResult struct {
	Action  string     `json:"action"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message"`
}
