// Package errdef defines the gateway error taxonomy so callers can map
// failures onto distinct HTTP answers without parsing message text.
package errdef

import (
	"errors"
	"fmt"
	"strings"
)

// NotConfigured reports that an organization misses ledger prerequisites.
// No network attempt has been made when this error is returned.
type NotConfigured struct {
	Org    string
	Issues []string
}

func (e *NotConfigured) Error() string {
	return fmt.Sprintf("organization %s is not configured for ledger operations: %s",
		e.Org, strings.Join(e.Issues, ", "))
}

// NewNotConfigured creates a NotConfigured error
func NewNotConfigured(org string, issues []string) *NotConfigured {
	return &NotConfigured{Org: org, Issues: issues}
}

// CANotConfigured reports that an organization misses CA prerequisites
type CANotConfigured struct {
	Org    string
	Issues []string
}

func (e *CANotConfigured) Error() string {
	return fmt.Sprintf("organization %s has no usable certificate authority: %s",
		e.Org, strings.Join(e.Issues, ", "))
}

// NewCANotConfigured creates a CANotConfigured error
func NewCANotConfigured(org string, issues []string) *CANotConfigured {
	return &CANotConfigured{Org: org, Issues: issues}
}

// AdminIdentityMissing reports that the CA is reachable on paper but the
// administrator identity could not be found or enrolled.
type AdminIdentityMissing struct {
	Org   string
	Label string
}

func (e *AdminIdentityMissing) Error() string {
	return fmt.Sprintf("admin identity %q is not available for organization %s", e.Label, e.Org)
}

// ClientInput reports invalid caller input, detected before any I/O
type ClientInput struct {
	Msg string
}

func (e *ClientInput) Error() string {
	return e.Msg
}

// NewClientInput creates a ClientInput error
func NewClientInput(format string, args ...any) *ClientInput {
	return &ClientInput{Msg: fmt.Sprintf(format, args...)}
}

// Issues extracts the prerequisite issue list carried by a NotConfigured or
// CANotConfigured error, nil for everything else.
func Issues(err error) []string {
	var nc *NotConfigured
	if errors.As(err, &nc) {
		return nc.Issues
	}
	var ca *CANotConfigured
	if errors.As(err, &ca) {
		return ca.Issues
	}
	return nil
}

// IsNotConfigured checks for either configuration-level error
func IsNotConfigured(err error) bool {
	var nc *NotConfigured
	var ca *CANotConfigured
	return errors.As(err, &nc) || errors.As(err, &ca)
}

// IsClientInput checks for a caller-input error
func IsClientInput(err error) bool {
	var ci *ClientInput
	return errors.As(err, &ci)
}
