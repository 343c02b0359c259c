package main

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/edgekit-io/fleetprov/pkg/config"
	"github.com/edgekit-io/fleetprov/pkg/credentials"
	"github.com/edgekit-io/fleetprov/pkg/helpers"
	"github.com/edgekit-io/fleetprov/pkg/models"
	"github.com/edgekit-io/fleetprov/pkg/services"
	"github.com/edgekit-io/fleetprov/pkg/transport"
)

var (
	version   string = "v0"    // client version
	sha1ver   string = "-"     // sha1 revision used to build the program
	buildTime string = "devTS" // when the executable was built
)

func main() {
	log.SetFormatter(helpers.LogFormatter)
	log.Infof("starting fleetprov: version=%s buildTime=%s sha1ver=%s", version, buildTime, sha1ver)

	conf, err := config.LoadConfig[config.ProvisioningConfig](nil)
	if err != nil {
		log.Fatal(err)
	}

	globalLogLevel, err := log.ParseLevel(string(conf.Logs.Level))
	if err != nil {
		log.Warn("unknown log level. defaulting to 'info' log level")
		globalLogLevel = log.InfoLevel
	}
	log.SetLevel(globalLogLevel)

	log.Infof("global log level set to '%s'", globalLogLevel)

	confBytes, err := yaml.Marshal(conf)
	if err != nil {
		log.Fatalf("could not dump yaml config: %s", err)
	}

	log.Debugf("===================================================")
	log.Debugf("%s", confBytes)
	log.Debugf("===================================================")

	attestation, err := buildAttestation(conf)
	if err != nil {
		log.Fatalf("could not assemble attestation material: %s", err)
	}

	lEngine := helpers.SetupLogger(conf.Logs.Level, "Fleet Provisioning", "Protocol Engine")
	engine := transport.NewMQTTEngine(transport.MQTTEngineBuilder{
		Logger:              lEngine,
		RegistrationTimeout: secondsOrZero(conf.Timeouts.RegistrationSeconds),
		PollInterval:        secondsOrZero(conf.Timeouts.PollIntervalSeconds),
		PollResponseTimeout: secondsOrZero(conf.Timeouts.PollResponseSeconds),
		MaxPollAttempts:     conf.Timeouts.MaxPollAttempts,
	})

	lSvc := helpers.SetupLogger(conf.Logs.Level, "Fleet Provisioning", "Provisioner")
	svc := services.NewProvisionerService(services.ProvisionerBuilder{
		Logger: lSvc,
		Engine: engine,
	})

	ctx, stop := signal.NotifyContext(helpers.InitContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.Register(ctx, services.RegisterInput{
		IDScope:     conf.IDScope,
		Host:        conf.Host,
		Port:        conf.Port,
		Attestation: attestation,
		TokenTTL:    secondsOrZero(conf.Timeouts.TokenTTLSeconds),
	})
	if err != nil {
		log.Fatalf("registration attempt failed: %s", err)
	}

	log.Infof("registration finished: status=%s deviceID=%s assignedHub=%s", result.Status, result.DeviceID, result.AssignedHub)

	if result.Status == models.StatusAssigned && len(result.IssuedCertificateChain) > 0 {
		if err := persistIssuedChain(conf.IssuedChainDir, result.IssuedCertificateChain); err != nil {
			log.Fatalf("could not persist issued certificate chain: %s", err)
		}
		log.Infof("persisted issued certificate chain (%d certificates) to %s", len(result.IssuedCertificateChain), conf.IssuedChainDir)
	}
}

func buildAttestation(conf *config.ProvisioningConfig) (credentials.Attestation, error) {
	switch conf.Attestation.Method {
	case config.AttestationSymmetricKey:
		return &credentials.SymmetricKey{
			ID:           conf.RegistrationID,
			PrimaryKey:   credentials.Secret(conf.Attestation.PrimaryKey),
			SecondaryKey: credentials.Secret(conf.Attestation.SecondaryKey),
		}, nil

	case config.AttestationX509:
		certPEM, chainPEM, keyPEM, err := readIdentityFiles(conf)
		if err != nil {
			return nil, err
		}
		if conf.RequestNewCertificate {
			csrPEM, csrKeyPEM, err := loadOrGenerateCSR(conf)
			if err != nil {
				return nil, err
			}
			if conf.CSRFile == "" {
				if err := writeCSRKey(conf.IssuedChainDir, csrKeyPEM); err != nil {
					return nil, err
				}
			}
			return &credentials.X509CSRWithClientCert{
				ID:           conf.RegistrationID,
				AuthCertPEM:  certPEM,
				AuthChainPEM: chainPEM,
				CSRPEM:       csrPEM,
				KeyPEM:       credentials.Secret(keyPEM),
			}, nil
		}
		return &credentials.X509Certificate{
			ID:       conf.RegistrationID,
			CertPEM:  certPEM,
			ChainPEM: chainPEM,
			KeyPEM:   credentials.Secret(keyPEM),
		}, nil

	case config.AttestationX509CSRGroupKey:
		csrPEM, keyPEM, err := loadOrGenerateCSR(conf)
		if err != nil {
			return nil, err
		}
		return &credentials.X509CSRWithGroupKey{
			ID:          conf.RegistrationID,
			CSRPEM:      csrPEM,
			KeyPEM:      credentials.Secret(keyPEM),
			GroupKeyB64: credentials.Secret(conf.Attestation.GroupKey),
		}, nil

	case config.AttestationX509CSRClientCert:
		certPEM, chainPEM, keyPEM, err := readIdentityFiles(conf)
		if err != nil {
			return nil, err
		}
		csrPEM, csrKeyPEM, err := loadOrGenerateCSR(conf)
		if err != nil {
			return nil, err
		}
		if conf.CSRFile == "" {
			// freshly generated CSR: keep its key next to the issued chain
			if err := writeCSRKey(conf.IssuedChainDir, csrKeyPEM); err != nil {
				return nil, err
			}
		}
		return &credentials.X509CSRWithClientCert{
			ID:           conf.RegistrationID,
			AuthCertPEM:  certPEM,
			AuthChainPEM: chainPEM,
			CSRPEM:       csrPEM,
			KeyPEM:       credentials.Secret(keyPEM),
		}, nil

	default:
		return nil, fmt.Errorf("unknown attestation method '%s'", conf.Attestation.Method)
	}
}

func readIdentityFiles(conf *config.ProvisioningConfig) (certPEM, chainPEM, keyPEM string, err error) {
	certBytes, err := os.ReadFile(conf.Attestation.CertFile)
	if err != nil {
		return "", "", "", fmt.Errorf("could not read certificate file: %w", err)
	}

	keyBytes, err := os.ReadFile(conf.Attestation.KeyFile)
	if err != nil {
		return "", "", "", fmt.Errorf("could not read key file: %w", err)
	}

	if conf.Attestation.ChainFile != "" {
		chainBytes, err := os.ReadFile(conf.Attestation.ChainFile)
		if err != nil {
			return "", "", "", fmt.Errorf("could not read chain file: %w", err)
		}
		chainPEM = string(chainBytes)
	}

	return string(certBytes), chainPEM, string(keyBytes), nil
}

func loadOrGenerateCSR(conf *config.ProvisioningConfig) (csrPEM, keyPEM string, err error) {
	if conf.CSRFile != "" {
		csrBytes, err := os.ReadFile(conf.CSRFile)
		if err != nil {
			return "", "", fmt.Errorf("could not read CSR file: %w", err)
		}
		keyBytes, err := os.ReadFile(conf.CSRKeyFile)
		if err != nil {
			return "", "", fmt.Errorf("could not read CSR key file: %w", err)
		}
		return string(csrBytes), string(keyBytes), nil
	}

	return helpers.GenerateCSR(conf.RegistrationID, x509.RSA, 2048, crypto.SHA256)
}

func writeCSRKey(dir string, keyPEM string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "issued.key"), []byte(keyPEM), 0o600)
}

// persistIssuedChain writes the issued certificates as PEM files, leaf
// first: issued-0.pem is the device certificate.
func persistIssuedChain(dir string, chain []string) error {
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	for i, certB64 := range chain {
		der, err := base64.StdEncoding.DecodeString(certB64)
		if err != nil {
			return fmt.Errorf("certificate %d of issued chain is not valid base64: %w", i, err)
		}

		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("could not parse certificate %d of issued chain: %w", i, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("issued-%d.pem", i))
		if err := os.WriteFile(path, []byte(helpers.CertificateToPEM(cert)), 0o644); err != nil {
			return err
		}
	}

	return nil
}

func secondsOrZero(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
