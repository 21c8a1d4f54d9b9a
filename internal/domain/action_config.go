package domain

import "errors"

var ErrUnknownTemplate = errors.New("unknown template")

// CustomActions is the operator-picked step set used instead of a template.
type CustomActions struct {
	DisableAccount         bool `json:"disableAccount"`
	RevokeAccess           bool `json:"revokeAccess"`
	RemoveFromGroups       bool `json:"removeFromGroups"`
	ConvertToSharedMailbox bool `json:"convertToSharedMailbox"`
	BackupData             bool `json:"backupData"`
	RemoveDevices          bool `json:"removeDevices"`
}

func (c CustomActions) Empty() bool {
	return c == CustomActions{}
}

type configKind uint8

const (
	configNone configKind = iota
	configTemplate
	configCustom
)

// ActionConfig is either a named template or a set of custom flags, never
// both. The zero value is neither and fails validation.
type ActionConfig struct {
	kind     configKind
	template string
	custom   CustomActions
}

func TemplateConfig(id string) ActionConfig {
	return ActionConfig{kind: configTemplate, template: id}
}

func CustomConfig(c CustomActions) ActionConfig {
	return ActionConfig{kind: configCustom, custom: c}
}

func (c ActionConfig) Template() (string, bool) {
	return c.template, c.kind == configTemplate
}

func (c ActionConfig) Custom() (CustomActions, bool) {
	return c.custom, c.kind == configCustom
}

func (c ActionConfig) IsZero() bool {
	return c.kind == configNone
}
