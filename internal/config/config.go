package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported values for the selector keys.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	ProviderChat   = "chat"
	ProviderGemini = "gemini"
)

// legacyAPIKeyEnv is read when LLM_API_KEY is unset.
const legacyAPIKeyEnv = "CLAUDE_API_KEY"

type Config struct {
	// HTTP Server
	Port               string   `env:"PORT"                  env-default:"8081"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGIN"   env-default:"http://localhost:5173" env-separator:","`
	TrustedProxies     []string `env:"TRUSTED_PROXIES"       env-separator:","`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND"   env-default:"memory"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" env-default:"./data/budgetchat.db"`

	// AMQP, optional for the API; required by the worker
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" env-default:"budgetchat"`
	AMQPQueue    string `env:"AMQP_QUEUE"    env-default:"sync_expenses"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `env:"GOOGLE_SHEET_NAME"           env-default:"Expenses"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	// Worker
	SyncBatchSize int           `env:"SYNC_BATCH_SIZE" env-default:"10"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL"   env-default:"30s"`

	// LLM
	LLMProvider      string        `env:"LLM_PROVIDER"       env-default:"chat"`
	LLMAPIKey        string        `env:"LLM_API_KEY"`
	LLMAPIURL        string        `env:"LLM_API_URL"`
	LLMAPIVersion    string        `env:"LLM_API_VERSION"`
	LLMModel         string        `env:"LLM_MODEL"`
	LLMMaxTokens     int           `env:"LLM_MAX_TOKENS"     env-default:"1000"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT"        env-default:"30s"`
	LLMRetryAttempts int           `env:"LLM_RETRY_ATTEMPTS" env-default:"1"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"  env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads the environment into a Config. It does not validate; call
// Validate or ValidateServer for the binary being started.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if strings.TrimSpace(cfg.LLMAPIKey) == "" {
		cfg.LLMAPIKey = os.Getenv(legacyAPIKeyEnv)
	}
	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// SheetsEnabled reports whether a spreadsheet is configured.
func (c *Config) SheetsEnabled() bool {
	return strings.TrimSpace(c.GoogleSpreadsheetID) != ""
}

// Validate checks the settings shared by every binary and returns all problems at once.
func (c *Config) Validate() error {
	return joinProblems(c.problems())
}

// ValidateServer checks the shared settings plus the LLM settings the API needs.
func (c *Config) ValidateServer() error {
	problems := c.problems()

	if strings.TrimSpace(c.LLMAPIKey) == "" {
		problems = append(problems, "LLM_API_KEY (or CLAUDE_API_KEY) is required")
	}
	validProviders := []string{ProviderChat, ProviderGemini}
	if !slices.Contains(validProviders, c.LLMProvider) {
		problems = append(problems, fmt.Sprintf("invalid LLM provider '%s': must be one of %v", c.LLMProvider, validProviders))
	}
	if c.LLMAPIURL != "" {
		if u, err := url.Parse(c.LLMAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid LLM API URL '%s': must be an absolute http(s) URL", c.LLMAPIURL))
		}
	}
	if c.LLMMaxTokens < 1 {
		problems = append(problems, fmt.Sprintf("invalid LLM max tokens %d: must be at least 1", c.LLMMaxTokens))
	}
	if c.LLMTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid LLM timeout %v: must be positive", c.LLMTimeout))
	}
	if c.LLMRetryAttempts < 1 || c.LLMRetryAttempts > 10 {
		problems = append(problems, fmt.Sprintf("invalid LLM retry attempts %d: must be between 1 and 10", c.LLMRetryAttempts))
	}
	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	return joinProblems(problems)
}

// ValidateWorker checks the shared settings plus what the sync worker needs.
func (c *Config) ValidateWorker() error {
	problems := c.problems()
	if c.DataBackend != BackendSQLite {
		problems = append(problems, "the sync worker requires DATA_BACKEND=sqlite")
	}
	if !c.AMQPEnabled() {
		problems = append(problems, "AMQP_URL is required by the sync worker")
	}
	return joinProblems(problems)
}

func (c *Config) problems() []string {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendSQLite && strings.TrimSpace(c.SQLiteDBPath) == "" {
		problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.SyncBatchSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		problems = append(problems, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	return problems
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}
