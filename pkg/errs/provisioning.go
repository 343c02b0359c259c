package errs

import "errors"

var (
	ErrInvalidAttestation = errors.New("invalid attestation material")
	ErrConnectionFailed   = errors.New("could not connect to provisioning endpoint")
	ErrUnauthorized       = errors.New("provisioning service rejected the presented credentials")
	ErrUnexpectedResponse = errors.New("unexpected provisioning service response")
	ErrAttemptTimedOut    = errors.New("provisioning attempt timed out")
	ErrAttemptCancelled   = errors.New("provisioning attempt cancelled")
)
