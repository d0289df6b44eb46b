package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPoolSize int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Issuer keys. The private key is only required by processes that mint QR codes.
	SignerPrivateKey string
	SignerPublic     string

	// QR rotation
	QRRotation     time.Duration
	QRTolerance    int
	QRImageBaseURL string

	// Ownership oracle
	OracleEnabled   bool
	ChainTag        string
	RPCURL          string
	ContractAddress string
	TokenStandard   string
	OracleTimeout   time.Duration

	// Redemption ledger backend: "pocketbase", "redis" or "memory" (development)
	LedgerBackend string

	// Scanner devices
	ScannerKeyHashes    []string
	ScanRateLimit       int
	ScanClientRateLimit int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-pass-server"),

		// Issuer
		SignerPrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
		SignerPublic:     getEnv("SIGNER_PUBLIC", ""),

		// QR
		QRRotation:     time.Duration(getEnvAsInt("QR_ROTATE_SECONDS", 300)) * time.Second,
		QRTolerance:    getEnvAsInt("QR_EPOCH_TOLERANCE", 1),
		QRImageBaseURL: getEnv("QR_IMAGE_BASE_URL", "https://quickchart.io/qr"),

		// Oracle
		OracleEnabled:   getEnvAsBool("ORACLE_ENABLED", true),
		ChainTag:        getEnv("CHAIN_TAG", "base-sepolia"),
		RPCURL:          getEnv("RPC_URL", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		TokenStandard:   getEnv("TOKEN_STANDARD", "erc1155"),
		OracleTimeout:   getEnvAsDuration("ORACLE_TIMEOUT", "5s"),

		// Ledger
		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", "pocketbase")),

		// Scanners
		ScannerKeyHashes:    getEnvAsList("SCANNER_KEY_HASHES"),
		ScanRateLimit:       getEnvAsInt("SCAN_RATE_LIMIT", 120),
		ScanClientRateLimit: getEnvAsInt("SCAN_CLIENT_RATE_LIMIT", 600),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// Validate reports configuration that would make the server unable to issue or
// verify tickets.
func (c *Config) Validate() error {
	var errs []error

	if c.SignerPublic == "" && c.SignerPrivateKey == "" {
		errs = append(errs, errors.New("config: SIGNER_PUBLIC or SIGNER_PRIVATE_KEY is required"))
	}
	if c.QRRotation <= 0 {
		errs = append(errs, errors.New("config: QR_ROTATE_SECONDS must be positive"))
	}
	if c.QRTolerance < 0 {
		errs = append(errs, errors.New("config: QR_EPOCH_TOLERANCE must not be negative"))
	}
	if c.OracleEnabled && (c.RPCURL == "" || c.ContractAddress == "") {
		errs = append(errs, errors.New("config: RPC_URL and CONTRACT_ADDRESS are required when ORACLE_ENABLED"))
	}
	switch c.LedgerBackend {
	case "pocketbase", "redis":
	case "memory":
		if !c.IsDevelopment() {
			errs = append(errs, errors.New("config: LEDGER_BACKEND=memory is only allowed in development"))
		}
	default:
		errs = append(errs, errors.New("config: LEDGER_BACKEND must be pocketbase, redis or memory"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
