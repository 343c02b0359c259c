// Package transport drives a single provisioning attempt over MQTT: connect,
// authenticate, publish the registration request, correlate responses, poll
// while the assignment is in progress, and produce a terminal result.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"

	"github.com/edgekit-io/fleetprov/pkg/errs"
	"github.com/edgekit-io/fleetprov/pkg/helpers"
	"github.com/edgekit-io/fleetprov/pkg/models"
)

const (
	defaultRegistrationTimeout = 30 * time.Second
	defaultPollInterval        = 2 * time.Second
	defaultPollResponseTimeout = 4 * time.Second
	defaultMaxPollAttempts     = 20
	defaultPort                = 8883

	connectTimeout      = 10 * time.Second
	disconnectQuiesceMs = 250
)

// RegisterParams carries everything one registration attempt needs. Exactly
// one of SASToken or ClientCertificate must be set; they are mutually
// exclusive authentication paths.
type RegisterParams struct {
	Identity models.RegistrationIdentity

	SASToken          string
	ClientCertificate *tls.Certificate
	RootCAs           *x509.CertPool

	// CSRDerBase64, when non-empty, asks the service to issue a new
	// certificate during the exchange and switches the attempt onto the
	// preview API version.
	CSRDerBase64 string
}

type MQTTEngineBuilder struct {
	Logger *logrus.Entry

	RegistrationTimeout time.Duration
	PollInterval        time.Duration
	PollResponseTimeout time.Duration
	MaxPollAttempts     int

	// NewClient overrides the paho constructor. Used by tests; defaults to
	// mqtt.NewClient.
	NewClient func(opts *mqtt.ClientOptions) mqtt.Client
}

// MQTTEngine executes provisioning attempts. Each attempt owns its own
// connection, subscription and correlation state, so one engine may serve
// concurrent attempts without coordination.
type MQTTEngine struct {
	logger *logrus.Entry

	registrationTimeout time.Duration
	pollInterval        time.Duration
	pollResponseTimeout time.Duration
	maxPollAttempts     int

	newClient func(opts *mqtt.ClientOptions) mqtt.Client
}

func NewMQTTEngine(builder MQTTEngineBuilder) *MQTTEngine {
	e := &MQTTEngine{
		logger:              builder.Logger,
		registrationTimeout: builder.RegistrationTimeout,
		pollInterval:        builder.PollInterval,
		pollResponseTimeout: builder.PollResponseTimeout,
		maxPollAttempts:     builder.MaxPollAttempts,
		newClient:           builder.NewClient,
	}

	if e.logger == nil {
		e.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if e.registrationTimeout <= 0 {
		e.registrationTimeout = defaultRegistrationTimeout
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.pollResponseTimeout <= 0 {
		e.pollResponseTimeout = defaultPollResponseTimeout
	}
	if e.maxPollAttempts <= 0 {
		e.maxPollAttempts = defaultMaxPollAttempts
	}
	if e.newClient == nil {
		e.newClient = mqtt.NewClient
	}

	return e
}

// Register runs one bounded provisioning attempt end to end and returns a
// terminal result or a typed error. Cancellation of ctx aborts the attempt
// at any suspension point and tears the connection down.
func (e *MQTTEngine) Register(ctx context.Context, params RegisterParams) (*models.RegistrationResult, error) {
	lFunc := helpers.ConfigureLogger(ctx, e.logger)

	if err := validateParams(params); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, e.registrationTimeout, errs.ErrAttemptTimedOut)
	defer cancel()

	apiVersion := APIVersionStable
	if params.CSRDerBase64 != "" {
		apiVersion = APIVersionPreview
	}

	identity := params.Identity
	if identity.Port == 0 {
		identity.Port = defaultPort
	}

	requestID := goid.NewV4UUID().String()
	regID := identity.RegistrationID

	tlsCfg := &tls.Config{
		ServerName: identity.Host,
		RootCAs:    params.RootCAs,
		MinVersion: tls.VersionTLS12,
	}
	if params.ClientCertificate != nil {
		tlsCfg.Certificates = []tls.Certificate{*params.ClientCertificate}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", identity.Host, identity.Port))
	opts.SetClientID(regID)
	opts.SetUsername(connectUsername(identity.IDScope, regID, apiVersion))
	if params.SASToken != "" {
		opts.SetPassword(params.SASToken)
	}
	opts.SetTLSConfig(tlsCfg)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)

	a := &attempt{
		requestID: requestID,
		logger:    lFunc,
		responses: make(chan serviceResponse, 1),
	}

	client := e.newClient(opts)
	defer client.Disconnect(disconnectQuiesceMs)

	lFunc.Debugf("connecting to %s:%d as '%s' (api-version=%s, request-id=%s)", identity.Host, identity.Port, regID, apiVersion, requestID)
	if err := waitToken(ctx, client.Connect()); err != nil {
		if ctxErr := attemptErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		lFunc.Errorf("could not connect: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrConnectionFailed, err)
	}

	if err := waitToken(ctx, client.Subscribe(responseTopicFilter, 1, a.dispatch)); err != nil {
		if ctxErr := attemptErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		lFunc.Errorf("could not subscribe to response topic: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrConnectionFailed, err)
	}

	payload, err := json.Marshal(models.RegistrationRequest{
		RegistrationID: regID,
		CSR:            params.CSRDerBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("could not encode registration request: %w", err)
	}

	if err := waitToken(ctx, client.Publish(registerTopic(requestID), 1, false, payload)); err != nil {
		if ctxErr := attemptErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		lFunc.Errorf("could not publish registration request: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrConnectionFailed, err)
	}

	resp, err := a.await(ctx)
	if err != nil {
		return nil, err
	}

	result, operationID, err := evaluateResponse(lFunc, regID, resp)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	if operationID == "" {
		return nil, fmt.Errorf("%w: assignment in progress but no operation id supplied", errs.ErrUnexpectedResponse)
	}

	lFunc.Debugf("assignment in progress, polling operation '%s'", operationID)

	for poll := 0; poll < e.maxPollAttempts; poll++ {
		if err := sleep(ctx, e.pollInterval); err != nil {
			return nil, err
		}

		payload, err := json.Marshal(models.OperationStatusRequest{
			OperationID:    operationID,
			RegistrationID: regID,
		})
		if err != nil {
			return nil, fmt.Errorf("could not encode operation status request: %w", err)
		}

		if err := waitToken(ctx, client.Publish(pollTopic(requestID, operationID), 1, false, payload)); err != nil {
			if ctxErr := attemptErr(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			lFunc.Errorf("could not publish operation status request: %s", err)
			return nil, fmt.Errorf("%w: %s", errs.ErrConnectionFailed, err)
		}

		resp, ok, err := a.awaitWithTimeout(ctx, e.pollResponseTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			// no response inside the per-poll window; the attempt is spent
			continue
		}

		result, opID, err := evaluateResponse(lFunc, regID, resp)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		if opID != "" {
			operationID = opID
		}
	}

	lFunc.Warnf("no terminal status after %d polls", e.maxPollAttempts)
	return nil, errs.ErrAttemptTimedOut
}

func validateParams(params RegisterParams) error {
	hasSAS := params.SASToken != ""
	hasCert := params.ClientCertificate != nil
	if hasSAS == hasCert {
		return fmt.Errorf("%w: exactly one of SAS token or TLS client certificate must be set", errs.ErrInvalidAttestation)
	}

	if params.Identity.IDScope == "" || params.Identity.RegistrationID == "" || params.Identity.Host == "" {
		return fmt.Errorf("%w: incomplete registration identity", errs.ErrInvalidAttestation)
	}

	return nil
}

// evaluateResponse interprets one correlated response. It returns a terminal
// result, or the operation id to keep polling with, or a typed error.
func evaluateResponse(lFunc *logrus.Entry, registrationID string, resp serviceResponse) (*models.RegistrationResult, string, error) {
	if resp.status == http.StatusUnauthorized {
		var errBody models.ServiceErrorBody
		_ = json.Unmarshal(resp.payload, &errBody)
		lFunc.Errorf("service rejected the credentials: %s", errBody.Message)
		return nil, "", &errs.ServiceError{Status: resp.status, TrackingID: errBody.TrackingID, Msg: errBody.Message}
	}

	if resp.status >= 300 {
		var errBody models.ServiceErrorBody
		msg := string(resp.payload)
		if err := json.Unmarshal(resp.payload, &errBody); err == nil && errBody.Message != "" {
			msg = errBody.Message
		}
		lFunc.Errorf("service returned status %d: %s", resp.status, msg)
		return nil, "", &errs.ServiceError{Status: resp.status, TrackingID: errBody.TrackingID, Msg: msg}
	}

	var body models.RegistrationResponse
	if err := json.Unmarshal(resp.payload, &body); err != nil {
		return nil, "", fmt.Errorf("%w: malformed response body: %s", errs.ErrUnexpectedResponse, err)
	}

	status, err := models.ParseProvisioningStatus(body.Status)
	if err != nil {
		return nil, "", err
	}

	if !status.Terminal() {
		return nil, body.OperationID, nil
	}

	result := &models.RegistrationResult{
		RegistrationID: registrationID,
		OperationID:    body.OperationID,
		Status:         status,
	}

	if state := body.RegistrationState; state != nil {
		result.DeviceID = state.DeviceID
		result.AssignedHub = state.AssignedHub
		result.Substatus = state.Substatus
		if len(state.IssuedCertificateChain) > 0 {
			result.IssuedCertificateChain = append([]string(nil), state.IssuedCertificateChain...)
		}
	}

	lFunc.Infof("registration '%s' reached terminal status '%s'", registrationID, status)
	return result, "", nil
}

// serviceResponse is one correlated inbound message: the status code parsed
// from the topic plus the raw JSON body.
type serviceResponse struct {
	status  int
	payload []byte
}

// attempt holds the correlation state of a single registration attempt.
type attempt struct {
	requestID string
	logger    *logrus.Entry
	responses chan serviceResponse
}

// dispatch is the sole subscription handler of one attempt. It resolves at
// most one pending wait; messages outside the response namespace, for other
// request ids, or duplicating an unconsumed response are dropped.
func (a *attempt) dispatch(_ mqtt.Client, msg mqtt.Message) {
	status, requestID, ok := parseResponseTopic(msg.Topic())
	if !ok {
		a.logger.Debugf("ignoring message on unexpected topic '%s'", msg.Topic())
		return
	}

	if requestID != a.requestID {
		a.logger.Debugf("ignoring response for foreign request id '%s'", requestID)
		return
	}

	select {
	case a.responses <- serviceResponse{status: status, payload: msg.Payload()}:
	default:
		// at-least-once delivery makes duplicates expected
		a.logger.Debugf("dropping duplicate response for request id '%s'", requestID)
	}
}

func (a *attempt) await(ctx context.Context) (serviceResponse, error) {
	select {
	case resp := <-a.responses:
		return resp, nil
	case <-ctx.Done():
		return serviceResponse{}, attemptErr(ctx)
	}
}

func (a *attempt) awaitWithTimeout(ctx context.Context, timeout time.Duration) (serviceResponse, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-a.responses:
		return resp, true, nil
	case <-timer.C:
		return serviceResponse{}, false, nil
	case <-ctx.Done():
		return serviceResponse{}, false, attemptErr(ctx)
	}
}

// attemptErr maps a finished context onto the attempt error taxonomy:
// deadline exhaustion is a timeout, everything else a caller cancellation.
func attemptErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}

	if errors.Is(context.Cause(ctx), errs.ErrAttemptTimedOut) {
		return errs.ErrAttemptTimedOut
	}

	return errs.ErrAttemptCancelled
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return attemptErr(ctx)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return attemptErr(ctx)
	}
}
