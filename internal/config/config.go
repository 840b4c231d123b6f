// Package config loads service configuration from an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes service environment variables. Nested keys are separated
// by a double underscore, e.g. TASKGARDEN_SERVER__PORT.
const EnvPrefix = "TASKGARDEN_"

// ConfigFileEnv names the variable holding an optional YAML config path.
const ConfigFileEnv = "CONFIG_FILE"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	JWT       JWTConfig       `koanf:"jwt"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Reminders RemindersConfig `koanf:"reminders"`
	Tasks     TasksConfig     `koanf:"tasks"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               string        `koanf:"port" validate:"required"`
	MetricsPort        string        `koanf:"metrics_port"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// JWTConfig contains bearer token settings.
type JWTConfig struct {
	SecretKey     string        `koanf:"secret_key" validate:"required,min=16"`
	Issuer        string        `koanf:"issuer"`
	TokenDuration time.Duration `koanf:"token_duration" validate:"gt=0"`
}

// TelegramConfig contains Bot API settings. Empty credentials leave the
// integration unconfigured rather than failing startup.
type TelegramConfig struct {
	BotToken  string        `koanf:"bot_token"`
	ChatID    string        `koanf:"chat_id"`
	APIURL    string        `koanf:"api_url" validate:"omitempty,url"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"`
}

// RemindersConfig contains overdue reminder settings.
type RemindersConfig struct {
	AutoStart   bool          `koanf:"auto_start"`
	Interval    time.Duration `koanf:"interval" validate:"gt=0"`
	Checkpoints []int         `koanf:"checkpoints" validate:"min=1,dive,min=1"`
}

// TasksConfig contains task mutation settings.
type TasksConfig struct {
	DeleteMessageOnTaskDelete bool `koanf:"delete_message_on_task_delete"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			MetricsPort:     "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer:        "task-garden",
			TokenDuration: 24 * time.Hour,
		},
		Telegram: TelegramConfig{
			APIURL:    "https://api.telegram.org",
			Timeout:   10 * time.Second,
			RateLimit: 1.0,
		},
		Reminders: RemindersConfig{
			AutoStart:   true,
			Interval:    time.Hour,
			Checkpoints: []int{1, 6, 12, 24, 48, 72},
		},
		Tasks: TasksConfig{
			DeleteMessageOnTaskDelete: true,
		},
	}
}

// Load builds configuration from defaults, the file named by CONFIG_FILE
// (if set) and environment variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Plain TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID; prefixed variables override them.
	if err := k.Load(env.Provider("TELEGRAM_", ".", telegramEnvKey), nil); err != nil {
		return nil, fmt.Errorf("load telegram environment: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	// decoding into a non-empty slice keeps trailing default elements
	defaultCheckpoints := cfg.Reminders.Checkpoints
	cfg.Reminders.Checkpoints = nil

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Reminders.Checkpoints) == 0 {
		cfg.Reminders.Checkpoints = defaultCheckpoints
	}

	cfg.Telegram.BotToken = strings.TrimSpace(cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = strings.TrimSpace(cfg.Telegram.ChatID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// listKeys are the settings whose environment value is a comma separated list.
var listKeys = map[string]bool{
	"server.cors_allowed_origins": true,
	"reminders.checkpoints":       true,
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}

	items := make([]string, 0, strings.Count(value, ",")+1)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func telegramEnvKey(s string) string {
	switch s {
	case "TELEGRAM_BOT_TOKEN":
		return "telegram.bot_token"
	case "TELEGRAM_CHAT_ID":
		return "telegram.chat_id"
	}
	return ""
}
