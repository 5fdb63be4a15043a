package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/finley/internal/conversation"
	"github.com/xaenox/finley/internal/devicesync"
	"github.com/xaenox/finley/internal/llm"
	"github.com/xaenox/finley/internal/router"
	"github.com/xaenox/finley/internal/storage"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Telegram     TelegramConfig      `mapstructure:"telegram"`
	Database     DatabaseConfig      `mapstructure:"database"`
	OpenAI       OpenAIConfig        `mapstructure:"openai"`
	Conversation conversation.Config `mapstructure:"conversation"`
	Safety       SafetyConfig        `mapstructure:"safety"`
	Router       router.Config       `mapstructure:"router"`
	Sync         devicesync.Config   `mapstructure:"sync"`
	Log          LogConfig           `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	BoltPath string `mapstructure:"bolt_path"`
}

type OpenAIConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	Model              string  `mapstructure:"model"`
	EscalatedModel     string  `mapstructure:"escalated_model"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	EscalatedMaxTokens int     `mapstructure:"escalated_max_tokens"`
	Temperature        float64 `mapstructure:"temperature"`
}

type SafetyConfig struct {
	MinInputLength int `mapstructure:"min_input_length"`
	MaxInputLength int `mapstructure:"max_input_length"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "finley")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.bolt_path", "data/finley.bolt")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.escalated_model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.escalated_max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.7)

	conv := conversation.DefaultConfig()
	v.SetDefault("conversation.compression_threshold", conv.CompressionThreshold)
	v.SetDefault("conversation.keep_recent", conv.KeepRecent)
	v.SetDefault("conversation.retention_cap", conv.RetentionCap)
	v.SetDefault("conversation.recent_window", conv.RecentWindow)
	v.SetDefault("conversation.relevant_limit", conv.RelevantLimit)
	v.SetDefault("conversation.context_token_budget", conv.ContextTokenBudget)
	v.SetDefault("conversation.summary_max_chars", conv.SummaryMaxChars)

	v.SetDefault("safety.min_input_length", 1)
	v.SetDefault("safety.max_input_length", 1000)

	rc := router.DefaultConfig()
	v.SetDefault("router.escalation_threshold", rc.EscalationThreshold)
	v.SetDefault("router.fallback_on_model_error", rc.FallbackOnModelError)
	v.SetDefault("router.device_id", rc.DeviceID)

	v.SetDefault("sync.staleness", devicesync.DefaultConfig().Staleness)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads the YAML file at path (skipped when path is empty) on top
// of the defaults, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support, e.g. OPENAI_MODEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.BoltPath = config.Database.BoltPath
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	config.Router = config.RouterConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// RouterConfig fills the model options and context budget of the router
// section from the openai and conversation sections.
func (c Config) RouterConfig() router.Config {
	rc := c.Router
	rc.ContextTokenBudget = c.Conversation.ContextTokenBudget
	rc.Light = llm.Options{
		Model:       c.OpenAI.Model,
		MaxTokens:   c.OpenAI.MaxTokens,
		Temperature: c.OpenAI.Temperature,
	}
	rc.Escalated = llm.Options{
		Model:       c.OpenAI.EscalatedModel,
		MaxTokens:   c.OpenAI.EscalatedMaxTokens,
		Temperature: c.OpenAI.Temperature,
	}
	if rc.Escalated.Model == "" {
		rc.Escalated.Model = rc.Light.Model
	}
	return rc
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres:
	case DriverBolt:
		if c.Database.BoltPath == "" {
			return fmt.Errorf("%w: database.bolt_path is required for the bolt driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database.driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Safety.MinInputLength > 0 && c.Safety.MaxInputLength > 0 && c.Safety.MinInputLength > c.Safety.MaxInputLength {
		return fmt.Errorf("%w: safety.min_input_length exceeds max_input_length", ErrInvalidConfig)
	}
	return nil
}

// StorageConfig converts the database section for the postgres backend.
func (c DatabaseConfig) StorageConfig() storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
	}
}

// BuildLogger creates the process logger from the log section.
func (c LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
