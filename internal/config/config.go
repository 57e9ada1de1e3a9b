// Package config holds the configuration record the Export Coordinator
// consumes. Loading from TOML files, CLI flags, and the init/validate-config/
// status subcommands are collaborator surface out of scope for this package
// (see spec §1); Load only resolves environment variables, mirroring the
// teacher's env-struct pattern.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// DatabaseTarget selects which Target Store backend the coordinator uses.
type DatabaseTarget string

const (
	TargetCosmos   DatabaseTarget = "cosmos"
	TargetPostgres DatabaseTarget = "postgres"
)

// SourceAuthMode selects the openEHR Source Client variant (§4.2).
type SourceAuthMode string

const (
	SourceAuthBasic  SourceAuthMode = "basic"
	SourceAuthOAuth2 SourceAuthMode = "oauth2"
)

// CompositionFormat selects the Transformer output shape (§4.5).
type CompositionFormat string

const (
	FormatPreserve CompositionFormat = "preserve"
	FormatFlatten  CompositionFormat = "flatten"
)

// OpenEhrConfig configures the Source Client.
type OpenEhrConfig struct {
	BaseURL  string         `env:"ATLAS_OPENEHR_BASE_URL"`
	AuthMode SourceAuthMode `env:"ATLAS_OPENEHR_AUTH_MODE" envDefault:"basic"`

	Username string `env:"ATLAS_OPENEHR_USERNAME"`
	Password string `env:"ATLAS_OPENEHR_PASSWORD"`

	TokenURL string `env:"ATLAS_OPENEHR_TOKEN_URL"`
	ClientID string `env:"ATLAS_OPENEHR_CLIENT_ID"`

	TimeoutSeconds        int  `env:"ATLAS_OPENEHR_TIMEOUT_SECONDS" envDefault:"30"`
	ConnectTimeoutSeconds int  `env:"ATLAS_OPENEHR_CONNECT_TIMEOUT_SECONDS" envDefault:"30"`
	TLSVerify             bool `env:"ATLAS_OPENEHR_TLS_VERIFY" envDefault:"true"`

	TemplateIDs []string `env:"ATLAS_OPENEHR_TEMPLATE_IDS" envSeparator:","`
	SubjectIDs  []string `env:"ATLAS_OPENEHR_SUBJECT_IDS" envSeparator:","`

	RetryMaxAttempts       int     `env:"ATLAS_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryInitialDelayMs    int64   `env:"ATLAS_RETRY_INITIAL_DELAY_MS" envDefault:"500"`
	RetryBackoffMultiplier float64 `env:"ATLAS_RETRY_BACKOFF_MULTIPLIER" envDefault:"2.0"`
	RetryMaxDelayMs        int64   `env:"ATLAS_RETRY_MAX_DELAY_MS" envDefault:"30000"`
}

func (c OpenEhrConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c OpenEhrConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// TargetConfig configures the Target Store.
type TargetConfig struct {
	Target DatabaseTarget `env:"ATLAS_TARGET" envDefault:"postgres"`

	// Postgres backend.
	PostgresURL        string `env:"ATLAS_POSTGRES_URL"`
	PostgresSSLMode    string `env:"ATLAS_POSTGRES_SSLMODE" envDefault:"prefer"`
	StatementTimeoutMs int64  `env:"ATLAS_POSTGRES_STATEMENT_TIMEOUT_MS" envDefault:"30000"`

	// Cosmos (document store) backend.
	CosmosEndpoint       string `env:"ATLAS_COSMOS_ENDPOINT"`
	CosmosKey            string `env:"ATLAS_COSMOS_KEY"`
	CosmosDatabase       string `env:"ATLAS_COSMOS_DATABASE"`
	ContainerPrefix      string `env:"ATLAS_CONTAINER_PREFIX" envDefault:"atlas"`
	ControlContainerName string `env:"ATLAS_CONTROL_CONTAINER" envDefault:"atlas_control"`

	MaxInsertRetries int `env:"ATLAS_MAX_INSERT_RETRIES" envDefault:"5"`
}

// ExportConfig configures coordinator-level behavior.
type ExportConfig struct {
	Mode                string            `env:"ATLAS_EXPORT_MODE" envDefault:"incremental"` // incremental | full
	CompositionFormat   CompositionFormat `env:"ATLAS_COMPOSITION_FORMAT" envDefault:"preserve"`
	BatchSize           int               `env:"ATLAS_BATCH_SIZE" envDefault:"500"`
	ParallelSubjects    int               `env:"ATLAS_PARALLEL_SUBJECTS" envDefault:"1"`
	EnableChecksum      bool              `env:"ATLAS_ENABLE_CHECKSUM" envDefault:"false"`
	DryRun              bool              `env:"ATLAS_DRY_RUN" envDefault:"false"`
	ShutdownTimeoutSecs int               `env:"ATLAS_SHUTDOWN_TIMEOUT_SECS" envDefault:"30"`
	AtlasVersion        string            `env:"ATLAS_VERSION" envDefault:"1"`
}

// ShutdownTimeout returns the configured grace period as a time.Duration.
func (c ExportConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// AnonymizationConfig configures the PII detection and anonymisation engine.
type AnonymizationConfig struct {
	Enabled        bool    `env:"ATLAS_ANON_ENABLED" envDefault:"false"`
	Mode           string  `env:"ATLAS_ANON_MODE" envDefault:"hipaa_safe_harbor"` // hipaa_safe_harbor | gdpr
	Strategy       string  `env:"ATLAS_ANON_STRATEGY" envDefault:"redact"`        // redact | token | generalize
	DryRun         bool    `env:"ATLAS_ANON_DRY_RUN" envDefault:"false"`
	Threshold      float64 `env:"ATLAS_ANON_CONFIDENCE_THRESHOLD" envDefault:"0.7"`
	PatternLibrary string  `env:"ATLAS_ANON_PATTERN_LIBRARY"`

	AuditEnabled bool   `env:"ATLAS_ANON_AUDIT_ENABLED" envDefault:"true"`
	AuditLogPath string `env:"ATLAS_ANON_AUDIT_LOG_PATH" envDefault:"./atlas-audit.jsonl"`
}

// VerificationConfig configures the optional post-export verification hook.
type VerificationConfig struct {
	Enabled bool `env:"ATLAS_VERIFY_ENABLED" envDefault:"false"`
}

// NotificationConfig configures the optional Slack summary notification.
type NotificationConfig struct {
	SlackBotToken string `env:"ATLAS_SLACK_BOT_TOKEN"`
	SlackChannel  string `env:"ATLAS_SLACK_CHANNEL"`
}

// Config is the full configuration record consumed by the coordinator.
type Config struct {
	LogLevel  string `env:"ATLAS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ATLAS_LOG_FORMAT" envDefault:"json"`

	RedisURL string `env:"ATLAS_REDIS_URL"`

	OpenEhr       OpenEhrConfig
	Target        TargetConfig
	Export        ExportConfig
	Anonymization AnonymizationConfig
	Verification  VerificationConfig
	Notification  NotificationConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// Validate enforces the boundaries in spec §8 (batch_size, parallel_subjects)
// and the structural requirements the coordinator depends on.
func (c *Config) Validate() error {
	if c.Export.BatchSize < 100 || c.Export.BatchSize > 5000 {
		return atlaserrors.New(atlaserrors.Configuration,
			"batch_size must be in [100, 5000], got %d", c.Export.BatchSize)
	}
	if c.Export.ParallelSubjects < 1 || c.Export.ParallelSubjects > 100 {
		return atlaserrors.New(atlaserrors.Configuration,
			"parallel_subjects must be in [1, 100], got %d", c.Export.ParallelSubjects)
	}
	if c.OpenEhr.BaseURL == "" {
		return atlaserrors.New(atlaserrors.Configuration, "openehr base url must not be empty")
	}
	if len(c.OpenEhr.TemplateIDs) == 0 {
		return atlaserrors.New(atlaserrors.Configuration, "at least one template id is required")
	}
	switch c.Target.Target {
	case TargetCosmos, TargetPostgres:
	default:
		return atlaserrors.New(atlaserrors.Configuration, "unknown target store %q", c.Target.Target)
	}
	switch c.Export.CompositionFormat {
	case FormatPreserve, FormatFlatten:
	default:
		return atlaserrors.New(atlaserrors.Configuration, "unknown composition format %q", c.Export.CompositionFormat)
	}
	if c.Target.Target == TargetPostgres {
		switch c.Target.PostgresSSLMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return atlaserrors.New(atlaserrors.Configuration, "unknown postgres sslmode %q", c.Target.PostgresSSLMode)
		}
	}
	return nil
}
