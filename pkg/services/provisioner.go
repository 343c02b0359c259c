package services

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/edgekit-io/fleetprov/pkg/credentials"
	"github.com/edgekit-io/fleetprov/pkg/errs"
	"github.com/edgekit-io/fleetprov/pkg/helpers"
	"github.com/edgekit-io/fleetprov/pkg/models"
	"github.com/edgekit-io/fleetprov/pkg/sas"
	"github.com/edgekit-io/fleetprov/pkg/transport"
)

var provisionerValidate *validator.Validate

const defaultTokenTTL = 1 * time.Hour

// ProvisionerService binds a credential to the protocol engine and exposes
// the single public registration operation.
type ProvisionerService interface {
	Register(ctx context.Context, input RegisterInput) (*models.RegistrationResult, error)
}

// RegistrationEngine is the protocol engine surface the orchestrator needs.
// transport.MQTTEngine implements it.
type RegistrationEngine interface {
	Register(ctx context.Context, params transport.RegisterParams) (*models.RegistrationResult, error)
}

type RegisterInput struct {
	IDScope     string                  `validate:"required"`
	Host        string                  `validate:"required"`
	Port        int                     `validate:"gte=0"`
	Attestation credentials.Attestation `validate:"required"`

	// TokenTTL bounds the lifetime of a generated SAS token on the
	// symmetric-key paths. Zero selects the default.
	TokenTTL time.Duration

	RootCAs *x509.CertPool
}

type ProvisionerServiceBackend struct {
	engine RegistrationEngine
	logger *logrus.Entry
}

type ProvisionerBuilder struct {
	Logger *logrus.Entry
	Engine RegistrationEngine
}

func NewProvisionerService(builder ProvisionerBuilder) ProvisionerService {
	provisionerValidate = validator.New()

	logger := builder.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &ProvisionerServiceBackend{
		engine: builder.Engine,
		logger: logger,
	}
}

// Register validates the credential, selects the authentication path,
// assembles the wire parameters and delegates to the protocol engine. The
// engine's result or typed error is returned unchanged.
func (svc *ProvisionerServiceBackend) Register(ctx context.Context, input RegisterInput) (*models.RegistrationResult, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	if err := provisionerValidate.Struct(input); err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidAttestation, err)
	}

	attest := input.Attestation
	if err := attest.Validate(); err != nil {
		lFunc.Errorf("invalid attestation for '%s': %s", attest.RegistrationID(), err)
		return nil, err
	}

	tokenTTL := input.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}

	params := transport.RegisterParams{
		Identity: models.RegistrationIdentity{
			IDScope:        input.IDScope,
			RegistrationID: attest.RegistrationID(),
			Host:           input.Host,
			Port:           input.Port,
		},
		RootCAs: input.RootCAs,
	}

	switch a := attest.(type) {
	case *credentials.SymmetricKey:
		err := a.PrimaryKey.WithBytes(func(key []byte) error {
			token, err := sas.GenerateToken(input.IDScope, a.RegistrationID(), string(key), tokenTTL)
			if err != nil {
				return err
			}
			lFunc.Debugf("generated %s", token.Redacted())
			params.SASToken = token.String()
			return nil
		})
		if err != nil {
			return nil, err
		}

	case *credentials.X509CSRWithGroupKey:
		var deviceKey string
		err := a.GroupKeyB64.WithBytes(func(groupKey []byte) error {
			derived, err := sas.DeriveDeviceKey(a.RegistrationID(), string(groupKey))
			if err != nil {
				return err
			}
			deviceKey = derived
			return nil
		})
		if err != nil {
			return nil, err
		}

		token, err := sas.GenerateToken(input.IDScope, a.RegistrationID(), deviceKey, tokenTTL)
		if err != nil {
			return nil, err
		}
		lFunc.Debugf("generated %s", token.Redacted())
		params.SASToken = token.String()

		csr, err := a.CSRDerBase64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalidAttestation, err)
		}
		params.CSRDerBase64 = csr

	case *credentials.X509Certificate:
		identity, err := a.TLSIdentity()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalidAttestation, err)
		}
		params.ClientCertificate = &identity

	case *credentials.X509CSRWithClientCert:
		identity, err := a.TLSIdentity()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalidAttestation, err)
		}
		params.ClientCertificate = &identity

		csr, err := a.CSRDerBase64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalidAttestation, err)
		}
		params.CSRDerBase64 = csr

	default:
		return nil, fmt.Errorf("%w: unsupported attestation type %T", errs.ErrInvalidAttestation, attest)
	}

	lFunc.Infof("starting registration attempt for '%s'", attest.RegistrationID())
	return svc.engine.Register(ctx, params)
}
