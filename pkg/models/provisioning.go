package models

import (
	"fmt"

	"github.com/edgekit-io/fleetprov/pkg/errs"
)

type ProvisioningStatus string

const (
	StatusUnassigned ProvisioningStatus = "unassigned"
	StatusAssigning  ProvisioningStatus = "assigning"
	StatusAssigned   ProvisioningStatus = "assigned"
	StatusFailed     ProvisioningStatus = "failed"
	StatusDisabled   ProvisioningStatus = "disabled"
)

// ParseProvisioningStatus maps a service status string onto the closed enum.
// Unknown strings are a protocol error, never a silent default.
func ParseProvisioningStatus(raw string) (ProvisioningStatus, error) {
	switch ProvisioningStatus(raw) {
	case StatusUnassigned, StatusAssigning, StatusAssigned, StatusFailed, StatusDisabled:
		return ProvisioningStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown status '%s'", errs.ErrUnexpectedResponse, raw)
	}
}

// Terminal reports whether no further protocol messages may follow for an
// attempt that observed this status.
func (s ProvisioningStatus) Terminal() bool {
	switch s {
	case StatusAssigned, StatusFailed, StatusDisabled:
		return true
	default:
		return false
	}
}

// RegistrationIdentity holds the immutable per-attempt identity of the
// device against the provisioning service.
type RegistrationIdentity struct {
	IDScope        string
	RegistrationID string
	Host           string
	Port           int
}

// RegistrationResult is the terminal outcome of a single provisioning
// attempt. IssuedCertificateChain is ordered leaf first, then zero or more
// intermediates, optionally the root; the order is significant.
type RegistrationResult struct {
	RegistrationID         string
	OperationID            string
	Status                 ProvisioningStatus
	DeviceID               string
	AssignedHub            string
	Substatus              string
	IssuedCertificateChain []string
}
