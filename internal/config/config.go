// Package config loads and exposes application configuration (TOML).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultProvider           = "openai"
	DefaultTemperature        = 0.7
	DefaultMaxToolIterations  = 10
	DefaultRequestTimeout     = 2 * time.Minute
	DefaultMode               = "card"
	DefaultYieldInterval      = 500 * time.Millisecond
	DefaultSplitMarker        = "|||"
	DefaultMaxMessages        = 5
	DefaultDelay              = 1500 * time.Millisecond
	DefaultMinDelay           = 500 * time.Millisecond
	DefaultMaxDelay           = 5 * time.Second
	DefaultCardUpdateInterval = 300 * time.Millisecond
	DefaultTelegramEditEvery  = time.Second
	DefaultContentFilterText  = "Sorry, that is something I can't talk about. Let's chat about something else?"
	DefaultErrorText          = "Something went wrong while generating the reply. Please try again later."
	DefaultLockBackend        = "memory"
	DefaultLockTTL            = 5 * time.Minute
	DefaultLockKeyPrefix      = "reply:lock:"
	DefaultBadgerDir          = "data/locks"
	DefaultPGHost             = "127.0.0.1"
	DefaultPGPort             = 5432
	DefaultPGUser             = "postgres"
	DefaultPGDatabase         = "replyd"
	DefaultPGSSLMode          = "disable"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig        `toml:"log"`
	Server    ServerConfig     `toml:"server"`
	Gateway   GatewayConfig    `toml:"gateway"`
	Providers []ProviderConfig `toml:"providers"`
	Models    []ModelConfig    `toml:"models"`
	Delivery  DeliveryConfig   `toml:"delivery"`
	Lock      LockConfig       `toml:"lock"`
	Postgres  PostgresConfig   `toml:"postgres"`
	Feishu    FeishuConfig     `toml:"feishu"`
	Telegram  TelegramConfig   `toml:"telegram"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the optional bearer secret.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret"`
}

// GatewayConfig holds model call defaults.
type GatewayConfig struct {
	DefaultProvider   string   `toml:"default_provider"`
	Temperature       float64  `toml:"temperature"`
	MaxToolIterations int      `toml:"max_tool_iterations"`
	RequestTimeout    Duration `toml:"request_timeout"`
	SystemPrompt      string   `toml:"system_prompt"`
}

// ProviderConfig describes one model provider endpoint.
type ProviderConfig struct {
	Name       string `toml:"name"`
	ClientType string `toml:"client_type"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	APIKeyEnv  string `toml:"api_key_env"`
	MaxTokens  int    `toml:"max_tokens"`
}

// ResolveAPIKey returns the inline key, or the value of the named environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// ModelConfig is one failover candidate; order in the file is the failover order.
type ModelConfig struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
}

// DeliveryConfig holds strategy selection, pacing and notice texts.
type DeliveryConfig struct {
	DefaultMode         string   `toml:"default_mode"`
	YieldInterval       Duration `toml:"yield_interval"`
	SplitMarker         string   `toml:"split_marker"`
	MaxMessages         int      `toml:"max_messages"`
	DefaultDelay        Duration `toml:"default_delay"`
	MinDelay            Duration `toml:"min_delay"`
	MaxDelay            Duration `toml:"max_delay"`
	CardUpdateInterval  Duration `toml:"card_update_interval"`
	ContentFilterNotice string   `toml:"content_filter_notice"`
	ErrorNotice         string   `toml:"error_notice"`
	MultiMessageChats   []string `toml:"multi_message_chats"`
}

// LockConfig selects the lock store backend.
type LockConfig struct {
	Backend   string   `toml:"backend"`
	TTL       Duration `toml:"ttl"`
	KeyPrefix string   `toml:"key_prefix"`
	BadgerDir string   `toml:"badger_dir"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// FeishuConfig holds the Feishu/Lark app credentials.
type FeishuConfig struct {
	Enabled           bool   `toml:"enabled"`
	AppID             string `toml:"app_id"`
	AppSecret         string `toml:"app_secret"`
	VerificationToken string `toml:"verification_token"`
	EncryptKey        string `toml:"encrypt_key"`
}

// TelegramConfig holds the Telegram bot token. Telegram cards are edited text messages,
// so they get their own, slower, update interval.
type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	BotToken           string   `toml:"bot_token"`
	CardUpdateInterval Duration `toml:"card_update_interval"`
}

// Duration is a time.Duration that decodes from strings such as "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Gateway: GatewayConfig{
			DefaultProvider:   DefaultProvider,
			Temperature:       DefaultTemperature,
			MaxToolIterations: DefaultMaxToolIterations,
			RequestTimeout:    Duration{DefaultRequestTimeout},
		},
		Delivery: DeliveryConfig{
			DefaultMode:         DefaultMode,
			YieldInterval:       Duration{DefaultYieldInterval},
			SplitMarker:         DefaultSplitMarker,
			MaxMessages:         DefaultMaxMessages,
			DefaultDelay:        Duration{DefaultDelay},
			MinDelay:            Duration{DefaultMinDelay},
			MaxDelay:            Duration{DefaultMaxDelay},
			CardUpdateInterval:  Duration{DefaultCardUpdateInterval},
			ContentFilterNotice: DefaultContentFilterText,
			ErrorNotice:         DefaultErrorText,
		},
		Telegram: TelegramConfig{
			CardUpdateInterval: Duration{DefaultTelegramEditEvery},
		},
		Lock: LockConfig{
			Backend:   DefaultLockBackend,
			TTL:       Duration{DefaultLockTTL},
			KeyPrefix: DefaultLockKeyPrefix,
			BadgerDir: DefaultBadgerDir,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that TOML decoding cannot express.
func (c Config) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for _, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			errs = append(errs, errors.New("providers: name is required"))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("providers: duplicate name %q", name))
		}
		seen[name] = true
		switch strings.ToLower(p.ClientType) {
		case "openai", "anthropic", "gemini":
		default:
			errs = append(errs, fmt.Errorf("providers.%s: unsupported client_type %q", name, p.ClientType))
		}
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			errs = append(errs, fmt.Errorf("models[%d]: id is required", i))
		}
	}
	d := c.Delivery
	if d.MaxMessages < 1 {
		errs = append(errs, errors.New("delivery.max_messages must be at least 1"))
	}
	if d.MinDelay.Duration > d.MaxDelay.Duration {
		errs = append(errs, errors.New("delivery.min_delay must not exceed delivery.max_delay"))
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, errors.New("telegram.bot_token is required when telegram is enabled"))
	}
	switch c.Lock.Backend {
	case "memory", "badger", "postgres":
	default:
		errs = append(errs, fmt.Errorf("lock.backend: unsupported backend %q", c.Lock.Backend))
	}
	return errors.Join(errs...)
}
