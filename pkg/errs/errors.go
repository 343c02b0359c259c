package errs

import (
	"fmt"
	"net/http"
)

// ServiceError is returned when the provisioning service answers an attempt
// with a non-success status code. It unwraps to ErrUnauthorized for 401
// responses and to ErrUnexpectedResponse otherwise, so callers can match
// with errors.Is without inspecting the status themselves.
type ServiceError struct {
	Status     int
	TrackingID string
	Msg        string
}

func (e *ServiceError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("provisioning service returned status %d", e.Status)
	}
	return fmt.Sprintf("provisioning service returned status %d: %s", e.Status, e.Msg)
}

func (e *ServiceError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrUnexpectedResponse
}
