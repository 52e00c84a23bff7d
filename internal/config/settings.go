// Package config loads the relay's settings tree and the hot-reloadable
// indicator/signal/code-table JSON files (spec §6.3). Settings loading is
// grounded on rewired-gh-poly_oracle's internal/config/config.go
// (viper defaults → file → env, mapstructure tags, a Validate pass); the
// JSON table loaders follow the teacher's trading.LoadTradingBotConfig
// shape (read file, json.Unmarshal, fall back to an in-code default on
// os.IsNotExist, fail fast otherwise).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings is the relay's top-level configuration (SPEC_FULL §6
// expansion: defaults → config.yaml → environment variables
// (MARKETRELAY_* prefix) → .env broker secrets).
type Settings struct {
	Upstream UpstreamSettings `mapstructure:"upstream"`
	Relay    RelaySettings    `mapstructure:"relay"`
	Storage  StorageSettings  `mapstructure:"storage"`
	Telegram TelegramSettings `mapstructure:"telegram"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Logging  LoggingSettings  `mapstructure:"logging"`
}

type UpstreamSettings struct {
	URL      string `mapstructure:"url"`
	AppID    string `mapstructure:"app_id"`
	RestURL  string `mapstructure:"rest_url"`
	APIToken string `mapstructure:"-"` // loaded from .env, never from config.yaml
}

type RelaySettings struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	IndicatorConfig string `mapstructure:"indicator_config_path"`
	SignalTable     string `mapstructure:"signal_table_path"`
	CodeTable       string `mapstructure:"code_table_path"`
}

type StorageSettings struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type TelegramSettings struct {
	BotToken string `mapstructure:"-"` // loaded from .env
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

type MetricsSettings struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load layers defaults, an optional config.yaml, MARKETRELAY_*
// environment variables, and a .env file holding broker/Telegram
// secrets, in that precedence order.
func Load(configPath, envPath string) (*Settings, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETRELAY")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Read the secrets unprefixed: viper's env lookup would add the
	// MARKETRELAY_ prefix, and the .env file sets the plain names.
	s.Upstream.APIToken = os.Getenv("DERIV_API_TOKEN")
	s.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.url", "wss://ws.deriv.com/websockets/v3")
	v.SetDefault("upstream.app_id", "1089")
	v.SetDefault("upstream.rest_url", "")

	v.SetDefault("relay.listen_addr", ":8090")
	v.SetDefault("relay.indicator_config_path", "./config/indicators.json")
	v.SetDefault("relay.signal_table_path", "./config/signals.json")
	v.SetDefault("relay.code_table_path", "./config/codes.json")

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the settings a missing/malformed config would leave
// nonsensical, matching the teacher's fail-fast-on-malformed-config
// posture.
func (s *Settings) Validate() error {
	if s.Upstream.URL == "" {
		return fmt.Errorf("config: upstream.url is required")
	}
	if s.Telegram.Enabled && s.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram.enabled requires TELEGRAM_BOT_TOKEN in the environment")
	}
	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level must be one of debug, info, warn, error, got %q", s.Logging.Level)
	}
	switch s.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be json or text, got %q", s.Logging.Format)
	}
	return nil
}

