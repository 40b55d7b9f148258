// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	Completion CompletionConfig `mapstructure:"completion"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Games      GamesConfig      `mapstructure:"games"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Roleplay   RoleplayConfig   `mapstructure:"roleplay"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// The database only backs the moderation audit log, so it is optional.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// CompletionConfig holds the remote completion endpoint and its throughput limits.
type CompletionConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	GlobalLimit  int           `mapstructure:"global_limit"`
	GlobalWindow time.Duration `mapstructure:"global_window"`
	UserLimit    int           `mapstructure:"user_limit"`
	UserWindow   time.Duration `mapstructure:"user_window"`
}

// SessionsConfig holds session caps, creation quotas and reaper timing.
type SessionsConfig struct {
	GlobalCap              int           `mapstructure:"global_cap"`
	PerUserCap             int           `mapstructure:"per_user_cap"`
	CreationWindow         time.Duration `mapstructure:"creation_window"`
	ConversationDailyLimit int           `mapstructure:"conversation_daily_limit"`
	GameDailyLimit         int           `mapstructure:"game_daily_limit"`
	GlobalCreationLimit    int           `mapstructure:"global_creation_limit"`
	GlobalCreationWindow   time.Duration `mapstructure:"global_creation_window"`
	MessageLimit           int           `mapstructure:"message_limit"`
	MessageWindow          time.Duration `mapstructure:"message_window"`
	IdleTimeout            time.Duration `mapstructure:"idle_timeout"`
	ReapInterval           time.Duration `mapstructure:"reap_interval"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Minesweeper MinesweeperConfig `mapstructure:"minesweeper"`
}

// MinesweeperConfig holds the grid dimensions.
type MinesweeperConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	Mines  int `mapstructure:"mines"`
}

// ModerationConfig holds moderation confirmation settings.
type ModerationConfig struct {
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout"`
	MaxDurationMinutes int           `mapstructure:"max_duration_minutes"`
	MaxReasonLength    int           `mapstructure:"max_reason_length"`
}

// RoleplayConfig holds character validation and transcript limits.
type RoleplayConfig struct {
	MaxHistory         int `mapstructure:"max_history"`
	ContextWindow      int `mapstructure:"context_window"`
	MaxNameLength      int `mapstructure:"max_name_length"`
	MaxPromptLength    int `mapstructure:"max_prompt_length"`
	MaxAvatarURLLength int `mapstructure:"max_avatar_url_length"`
	MaxMessageLength   int `mapstructure:"max_message_length"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g., BOT_TOKEN, COMPLETION_URL, SESSIONS_GLOBAL_CAP
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Registered so that BOT_TOKEN reaches Unmarshal through AutomaticEnv.
	v.SetDefault("bot.token", "")
	v.SetDefault("log.level", "info")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "anya")
	v.SetDefault("database.name", "anya")
	v.SetDefault("database.pool_size", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.max_retries", 5)

	// Completion defaults
	v.SetDefault("completion.url", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("completion.timeout", "5s")
	v.SetDefault("completion.global_limit", 30)
	v.SetDefault("completion.global_window", "60s")
	v.SetDefault("completion.user_limit", 10)
	v.SetDefault("completion.user_window", "60s")

	// Session defaults
	v.SetDefault("sessions.global_cap", 20)
	v.SetDefault("sessions.per_user_cap", 1)
	v.SetDefault("sessions.creation_window", "24h")
	v.SetDefault("sessions.conversation_daily_limit", 3)
	v.SetDefault("sessions.game_daily_limit", 30)
	v.SetDefault("sessions.global_creation_limit", 60)
	v.SetDefault("sessions.global_creation_window", "1m")
	v.SetDefault("sessions.message_limit", 10)
	v.SetDefault("sessions.message_window", "600s")
	v.SetDefault("sessions.idle_timeout", "15m")
	v.SetDefault("sessions.reap_interval", "5m")

	// Game defaults
	v.SetDefault("games.minesweeper.width", 4)
	v.SetDefault("games.minesweeper.height", 4)
	v.SetDefault("games.minesweeper.mines", 4)

	// Moderation defaults
	v.SetDefault("moderation.confirm_timeout", "60s")
	v.SetDefault("moderation.max_duration_minutes", 28*24*60)
	v.SetDefault("moderation.max_reason_length", 256)

	// Roleplay defaults
	v.SetDefault("roleplay.max_history", 20)
	v.SetDefault("roleplay.context_window", 10)
	v.SetDefault("roleplay.max_name_length", 64)
	v.SetDefault("roleplay.max_prompt_length", 1024)
	v.SetDefault("roleplay.max_avatar_url_length", 512)
	v.SetDefault("roleplay.max_message_length", 512)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects limits that would make the bot unusable.
func (c *Config) Validate() error {
	var errs []error

	s := c.Sessions
	if s.GlobalCap <= 0 || s.PerUserCap <= 0 {
		errs = append(errs, errors.New("sessions: caps must be positive"))
	}
	if s.ConversationDailyLimit <= 0 || s.GameDailyLimit <= 0 || s.GlobalCreationLimit <= 0 || s.MessageLimit <= 0 {
		errs = append(errs, errors.New("sessions: rate limits must be positive"))
	}
	if s.CreationWindow <= 0 || s.GlobalCreationWindow <= 0 || s.MessageWindow <= 0 {
		errs = append(errs, errors.New("sessions: rate windows must be positive"))
	}
	if s.IdleTimeout <= 0 || s.ReapInterval <= 0 {
		errs = append(errs, errors.New("sessions: idle timeout and reap interval must be positive"))
	}

	cc := c.Completion
	if cc.GlobalLimit <= 0 || cc.UserLimit <= 0 || cc.GlobalWindow <= 0 || cc.UserWindow <= 0 {
		errs = append(errs, errors.New("completion: rate limits must be positive"))
	}

	m := c.Games.Minesweeper
	if m.Width <= 0 || m.Height <= 0 {
		errs = append(errs, errors.New("minesweeper: dimensions must be positive"))
	} else if m.Mines <= 0 || m.Mines >= m.Width*m.Height {
		errs = append(errs, fmt.Errorf("minesweeper: mines must be between 1 and %d", m.Width*m.Height-1))
	}

	if c.Moderation.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("moderation: confirm timeout must be positive"))
	}

	r := c.Roleplay
	if r.ContextWindow > r.MaxHistory {
		errs = append(errs, errors.New("roleplay: context window cannot exceed history"))
	}

	return errors.Join(errs...)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
