package models

// Wire DTOs for the provisioning MQTT exchange. Field names and layouts are
// fixed by the service contract and must not change.

// RegistrationRequest is the registration publish payload. CSR carries the
// base64 DER of a certificate signing request (no PEM envelope) and is only
// present when the attempt requests issuance of a new certificate.
type RegistrationRequest struct {
	RegistrationID string `json:"registrationId"`
	CSR            string `json:"csr,omitempty"`
}

// OperationStatusRequest is the poll publish payload while an assignment is
// in progress.
type OperationStatusRequest struct {
	OperationID    string `json:"operationId"`
	RegistrationID string `json:"registrationId"`
}

// DeviceRegistrationState is the service-side view of the device embedded in
// a registration response.
type DeviceRegistrationState struct {
	RegistrationID         string   `json:"registrationId,omitempty"`
	DeviceID               string   `json:"deviceId,omitempty"`
	AssignedHub            string   `json:"assignedHub,omitempty"`
	Status                 string   `json:"status,omitempty"`
	Substatus              string   `json:"substatus,omitempty"`
	CreatedDateTimeUTC     string   `json:"createdDateTimeUtc,omitempty"`
	LastUpdatedDateTimeUTC string   `json:"lastUpdatedDateTimeUtc,omitempty"`
	ErrorCode              int      `json:"errorCode,omitempty"`
	ErrorMessage           string   `json:"errorMessage,omitempty"`
	IssuedCertificateChain []string `json:"issuedCertificateChain,omitempty"`
}

// RegistrationResponse is the body of both the initial registration response
// and every poll response.
type RegistrationResponse struct {
	OperationID       string                   `json:"operationId,omitempty"`
	Status            string                   `json:"status"`
	RegistrationState *DeviceRegistrationState `json:"registrationState,omitempty"`
}

// ServiceErrorBody is the error payload the service attaches to non-success
// responses.
type ServiceErrorBody struct {
	ErrorCode    int    `json:"errorCode,omitempty"`
	TrackingID   string `json:"trackingId,omitempty"`
	Message      string `json:"message,omitempty"`
	TimestampUTC string `json:"timestampUtc,omitempty"`
}
