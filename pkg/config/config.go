package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for prepflow-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Rule discovery thresholds
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Convergence policy for the metered stages
	Convergence ConvergenceConfig `yaml:"convergence"`

	// Human-in-the-loop behavior
	HITL HITLConfig `yaml:"hitl"`

	// Connection details for database-backed input datasets
	Source SourceConfig `yaml:"source"`

	// Optional run registry (PostgreSQL bookkeeping of runs and decisions)
	Registry RegistryConfig `yaml:"registry"`

	// Optional LLM endpoint answering questions on unattended runs
	Assist AssistConfig `yaml:"assist"`

	// Optional MCP surface for remote run inspection and answering
	MCP MCPConfig `yaml:"mcp"`
}

// DiscoveryConfig holds detection thresholds. Values are configurable but
// deliberately not auto-tuned.
type DiscoveryConfig struct {
	// MissingFloor is the minimum missing-value ratio in a column before a
	// rule is raised.
	MissingFloor float64 `yaml:"missing_floor" env:"DISCOVERY_MISSING_FLOOR" env-default:"0.01"`
	// OutlierFloor is the minimum out-of-bound ratio before an outlier rule
	// is raised.
	OutlierFloor float64 `yaml:"outlier_floor" env:"DISCOVERY_OUTLIER_FLOOR" env-default:"0.005"`
	// OutlierSeverity is the out-of-bound ratio above which an outlier rule
	// needs a human decision instead of the default clamp.
	OutlierSeverity float64 `yaml:"outlier_severity" env:"DISCOVERY_OUTLIER_SEVERITY" env-default:"0.05"`
	// CategoricalMaxDistinct caps the distinct values for a column to be
	// treated as categorical.
	CategoricalMaxDistinct int `yaml:"categorical_max_distinct" env:"DISCOVERY_CATEGORICAL_MAX_DISTINCT" env-default:"50"`
	// CategoricalMaxRatio caps distinct values as a share of rows for a
	// column to be treated as categorical.
	CategoricalMaxRatio float64 `yaml:"categorical_max_ratio" env:"DISCOVERY_CATEGORICAL_MAX_RATIO" env-default:"0.1"`
	// DuplicateFloor is the minimum duplicate-row count before a rule is
	// raised.
	DuplicateFloor int64 `yaml:"duplicate_floor" env:"DISCOVERY_DUPLICATE_FLOOR" env-default:"1"`
}

// ConvergenceConfig controls when rule discovery counts as stable.
type ConvergenceConfig struct {
	// ConfidenceThreshold is the mean rule confidence required for stability.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONVERGENCE_CONFIDENCE_THRESHOLD" env-default:"0.95"`
	// StabilityWindow is how many consecutive sampled rows must pass
	// without a new rule before the rule set counts as stable.
	StabilityWindow int `yaml:"stability_window" env:"CONVERGENCE_STABILITY_WINDOW" env-default:"1000"`
}

// HITLConfig holds human-in-the-loop settings.
type HITLConfig struct {
	// ConfirmBeforeBulk asks one final yes/no question before the full
	// dataset is touched.
	ConfirmBeforeBulk bool `yaml:"confirm_before_bulk" env:"HITL_CONFIRM_BEFORE_BULK" env-default:"true"`
	// AnsweredBy labels decisions recorded from the console port.
	AnsweredBy string `yaml:"answered_by" env:"HITL_ANSWERED_BY" env-default:"operator"`
}

// SourceConfig holds connection details for database-backed input
// datasets. The same block serves both PostgreSQL and SQL Server sources;
// dialect-specific fields are ignored by the other adapter.
type SourceConfig struct {
	Host     string `yaml:"host" env:"SRC_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SRC_PORT" env-default:"0"` // 0 = adapter default
	User     string `yaml:"user" env:"SRC_USER"`
	Password string `yaml:"-" env:"SRC_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"SRC_DATABASE"`

	// PostgreSQL only
	SSLMode string `yaml:"ssl_mode" env:"SRC_SSL_MODE" env-default:"disable"`

	// SQL Server only
	Encrypt                bool `yaml:"encrypt" env:"SRC_ENCRYPT" env-default:"false"`
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"SRC_TRUST_SERVER_CERTIFICATE" env-default:"false"`

	// FetchLimit caps rows pulled from a table. Zero means no cap.
	FetchLimit int `yaml:"fetch_limit" env:"SRC_FETCH_LIMIT" env-default:"0"`
}

// RegistryConfig holds PostgreSQL run-registry configuration.
// The registry is bookkeeping only; runs work without it.
type RegistryConfig struct {
	Enabled        bool   `yaml:"enabled" env:"REGISTRY_ENABLED" env-default:"false"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"prepflow"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"prepflow_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MinConnections int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"1"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *RegistryConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AssistConfig holds the OpenAI-compatible endpoint used to answer
// questions on unattended runs. Available only when base URL and model are
// both set.
type AssistConfig struct {
	BaseURL string `yaml:"base_url" env:"ASSIST_BASE_URL" env-default:""`
	Model   string `yaml:"model" env:"ASSIST_MODEL" env-default:""`
	APIKey  string `yaml:"-" env:"ASSIST_API_KEY"` // Secret - not in YAML
}

// IsAvailable returns true if the assist endpoint is configured.
func (c *AssistConfig) IsAvailable() bool {
	return c.BaseURL != "" && c.Model != ""
}

// MCPConfig holds the MCP server surface configuration.
type MCPConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MCP_ENABLED" env-default:"false"`
	BindAddr string `yaml:"bind_addr" env:"MCP_BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MCP_PORT" env-default:"3447"`
}

// Addr returns the listen address for the MCP server.
func (c *MCPConfig) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists the environment alone is used, so
// the engine runs without any file present. The version parameter is
// injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the given YAML path with environment
// variable overrides.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate rejects threshold values outside their meaningful ranges.
func (c *Config) validate() error {
	if c.Convergence.ConfidenceThreshold <= 0 || c.Convergence.ConfidenceThreshold > 1 {
		return fmt.Errorf("convergence confidence_threshold must be in (0, 1], got %v", c.Convergence.ConfidenceThreshold)
	}
	if c.Convergence.StabilityWindow < 1 {
		return fmt.Errorf("convergence stability_window must be at least 1, got %d", c.Convergence.StabilityWindow)
	}
	if c.Discovery.MissingFloor < 0 || c.Discovery.MissingFloor > 1 {
		return fmt.Errorf("discovery missing_floor must be in [0, 1], got %v", c.Discovery.MissingFloor)
	}
	if c.Discovery.OutlierFloor < 0 || c.Discovery.OutlierFloor > 1 {
		return fmt.Errorf("discovery outlier_floor must be in [0, 1], got %v", c.Discovery.OutlierFloor)
	}
	if c.Discovery.CategoricalMaxDistinct < 1 {
		return fmt.Errorf("discovery categorical_max_distinct must be at least 1, got %d", c.Discovery.CategoricalMaxDistinct)
	}
	return nil
}
