package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

// Scope is the tenant/owner pair every store operation runs under. It is
// resolved by the auth middleware and passed explicitly.
type Scope struct {
	TenantID string
	OwnerID  string
}

func (s Scope) Valid() bool {
	return s.TenantID != "" && s.OwnerID != ""
}

// ValidationError reports malformed create/update input. errors.Is matches
// it against ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
	Fields map[string]string // set when several fields failed at once
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
