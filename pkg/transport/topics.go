package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Wire-level constants of the provisioning protocol. These are fixed by the
// service contract and must be reproduced bit for bit.
const (
	responseTopicFilter = "$dps/registrations/res/#"
	responseTopicPrefix = "$dps/registrations/res/"

	registerTopicFormat = "$dps/registrations/PUT/iotdps-register/?$rid=%s"
	pollTopicFormat     = "$dps/registrations/GET/iotdps-get-operationstatus/?$rid=%s&operationId=%s"

	usernameFormat = "%s/registrations/%s/api-version=%s&ClientVersion=%s"

	// APIVersionStable drives plain registration; APIVersionPreview is
	// required whenever the registration carries a CSR.
	APIVersionStable  = "2019-03-31"
	APIVersionPreview = "2021-11-01-preview"
)

// UserAgent identifies this client in the connect username.
const UserAgent = "fleetprov/1.0.0"

func registerTopic(requestID string) string {
	return fmt.Sprintf(registerTopicFormat, requestID)
}

func pollTopic(requestID string, operationID string) string {
	return fmt.Sprintf(pollTopicFormat, requestID, operationID)
}

func connectUsername(idScope string, registrationID string, apiVersion string) string {
	return fmt.Sprintf(usernameFormat, idScope, registrationID, apiVersion, url.QueryEscape(UserAgent))
}

// parseResponseTopic extracts the embedded status code and the request id of
// a response topic of the form
// $dps/registrations/res/<status>/?$rid=<id>&... It reports ok=false for
// topics outside the response namespace or without a parseable status.
func parseResponseTopic(topic string) (status int, requestID string, ok bool) {
	rest, found := strings.CutPrefix(topic, responseTopicPrefix)
	if !found {
		return 0, "", false
	}

	statusSegment, query, found := strings.Cut(rest, "/")
	if !found {
		return 0, "", false
	}

	status, err := strconv.Atoi(statusSegment)
	if err != nil {
		return 0, "", false
	}

	query = strings.TrimPrefix(query, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return 0, "", false
	}

	return status, values.Get("$rid"), true
}
