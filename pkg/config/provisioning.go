package config

type AttestationMethod string

const (
	AttestationSymmetricKey      AttestationMethod = "symmetric_key"
	AttestationX509              AttestationMethod = "x509"
	AttestationX509CSRGroupKey   AttestationMethod = "x509_csr_group_key"
	AttestationX509CSRClientCert AttestationMethod = "x509_csr_client_cert"
)

// ProvisioningConfig is the fully-loaded configuration for one device. The
// provisioning core treats this struct as already validated input; the
// loader in this package is responsible for producing it.
type ProvisioningConfig struct {
	Logs Logging `mapstructure:"logs"`

	IDScope        string `mapstructure:"id_scope"`
	RegistrationID string `mapstructure:"registration_id"`
	Host           string `mapstructure:"provisioning_host"`
	Port           int    `mapstructure:"provisioning_port"`

	Attestation AttestationConfig `mapstructure:"attestation"`

	// RequestNewCertificate adds a CSR to the registration exchange on the
	// attestation methods that support it.
	RequestNewCertificate bool   `mapstructure:"request_new_certificate"`
	CSRFile               string `mapstructure:"csr_file"`
	CSRKeyFile            string `mapstructure:"csr_key_file"`

	// IssuedChainDir is where an issued certificate chain gets persisted.
	IssuedChainDir string `mapstructure:"issued_chain_dir"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
}

type AttestationConfig struct {
	Method AttestationMethod `mapstructure:"method"`

	// Symmetric key / group key material, base64 encoded. Either inline or
	// loaded from a file by the caller.
	PrimaryKey   Password `mapstructure:"primary_key"`
	SecondaryKey Password `mapstructure:"secondary_key"`
	GroupKey     Password `mapstructure:"group_key"`

	// X.509 client authentication material.
	CertFile  string `mapstructure:"cert_file"`
	ChainFile string `mapstructure:"chain_file"`
	KeyFile   string `mapstructure:"key_file"`
}

type TimeoutsConfig struct {
	// TokenTTLSeconds bounds the lifetime of generated SAS tokens.
	TokenTTLSeconds int `mapstructure:"token_ttl_seconds"`
	// RegistrationSeconds is the overall per-attempt deadline.
	RegistrationSeconds int `mapstructure:"registration_seconds"`
	// PollIntervalSeconds is the fixed delay between status polls.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// PollResponseSeconds bounds the wait for each individual poll response.
	PollResponseSeconds int `mapstructure:"poll_response_seconds"`
	// MaxPollAttempts bounds the number of status polls per attempt.
	MaxPollAttempts int `mapstructure:"max_poll_attempts"`
}
