package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/atlasagent/agent-gateway/internal/infrastructure/llm"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/secret"
)

const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,   default=168h"`

	// SecretsKey is the base64 key that seals provider secrets at rest.
	SecretsKey string `env:"SECRETS_KEY"`

	StorageDriver string `env:"STORAGE_DRIVER, default=mongo"`
	SessionStore  string `env:"SESSION_STORE,  default=memory"`

	Mongo    MongoConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Sessions SessionConfig
	Provider ProviderConfig
	Archive  ArchiveConfig

	LoginRatePerMin int `env:"LOGIN_RATE_PER_MIN, default=30"`

	lookuper envconfig.Lookuper
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=agent_gateway"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH, default=agent_gateway.db"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `env:"SESSION_IDLE_TTL,       default=24h"`
	Retention     time.Duration `env:"SESSION_RETENTION,      default=1h"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL, default=5m"`
}

type ProviderConfig struct {
	Timeout      time.Duration `env:"PROVIDER_TIMEOUT,       default=60s"`
	KeyAllowList []string      `env:"PROVIDER_KEY_ALLOWLIST, default=perplexity,openai,claude,gemini,deepseek,kimi"`
}

type ArchiveConfig struct {
	Workers        int `env:"ARCHIVE_WORKERS, default=4"`
	HistoryPreload int `env:"HISTORY_PRELOAD, default=200"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.lookuper = l
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := secret.ParseKey(c.SecretsKey); err != nil {
		errs = append(errs, fmt.Errorf("SECRETS_KEY: %w", err))
	}
	switch c.StorageDriver {
	case StorageMongo, StorageSQLite, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.SessionStore {
	case SessionsMemory, SessionsRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	if c.Sessions.IdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether ENV selects development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// SealingKey returns the decoded SECRETS_KEY.
func (c *Config) SealingKey() ([]byte, error) {
	return secret.ParseKey(c.SecretsKey)
}

// Secret looks up a named secret such as OPENAI_API_KEY from the same source
// the configuration was loaded from.
func (c *Config) Secret(name string) (string, bool) {
	if c.lookuper == nil {
		return "", false
	}
	return c.lookuper.Lookup(name)
}

// ProviderEndpoints reads <PROVIDER>_BASE_URL and <PROVIDER>_MODEL overrides
// for each id.
func (c *Config) ProviderEndpoints(ids []string) map[string]llm.Endpoint {
	out := make(map[string]llm.Endpoint)
	for _, id := range ids {
		prefix := strings.ToUpper(id)
		base, _ := c.Secret(prefix + "_BASE_URL")
		model, _ := c.Secret(prefix + "_MODEL")
		if base != "" || model != "" {
			out[id] = llm.Endpoint{BaseURL: base, Model: model}
		}
	}
	return out
}
