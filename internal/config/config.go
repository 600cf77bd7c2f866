package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gold-rate-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Treasury  TreasuryConfig  `mapstructure:"treasury"`
	Spot      ResolverConfig  `mapstructure:"spot"`
	FX        ResolverConfig  `mapstructure:"fx"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Promo     PromoConfig     `mapstructure:"promo"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the HTTP read surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// TreasuryConfig covers the primary gold rate feed.
type TreasuryConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ResolverConfig parameterises one multi-source value resolver.
type ResolverConfig struct {
	Min           float64       `mapstructure:"min"`
	Max           float64       `mapstructure:"max"`
	Tolerance     float64       `mapstructure:"tolerance"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// WatcherConfig governs price polling and the broadcast gate.
type WatcherConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MinChange  float64       `mapstructure:"min_change"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	RingSize   int           `mapstructure:"ring_size"`
}

// PromoConfig covers the promotional status feed. Credentials have no
// defaults and must come from the environment or config file.
type PromoConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	NominalURL   string        `mapstructure:"nominal_url"`
	SignInURL    string        `mapstructure:"signin_url"`
	Email        string        `mapstructure:"email"`
	Password     string        `mapstructure:"password"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	DeviceID     string        `mapstructure:"device_id"`
	TokenPath    string        `mapstructure:"token_path"`
	Interval     time.Duration `mapstructure:"interval"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

// BroadcastConfig tunes fan-out behaviour.
type BroadcastConfig struct {
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
	SendSpacing   time.Duration `mapstructure:"send_spacing"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// CommandsConfig throttles the inbound command surface.
type CommandsConfig struct {
	ChatCooldown  time.Duration `mapstructure:"chat_cooldown"`
	GlobalSpacing time.Duration `mapstructure:"global_spacing"`
}

// CalendarConfig covers the economic calendar feed.
type CalendarConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxEvents      int           `mapstructure:"max_events"`
	HideAfter      time.Duration `mapstructure:"hide_after"`
}

// TelegramConfig describes the bot transport.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity for the
// broadcast audit table.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOLDWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goldwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.port", 3000)

	v.SetDefault("treasury.url", "https://api.treasury.id/api/v1/antigrvty/gold/rate")
	v.SetDefault("treasury.request_timeout", "3s")
	v.SetDefault("treasury.user_agent", "goldwatcher/1.0")

	v.SetDefault("spot.min", 1000.0)
	v.SetDefault("spot.max", 10000.0)
	v.SetDefault("spot.tolerance", 10.0)
	v.SetDefault("spot.source_timeout", "6s")
	v.SetDefault("spot.cache_ttl", "60s")

	v.SetDefault("fx.min", 10000.0)
	v.SetDefault("fx.max", 25000.0)
	v.SetDefault("fx.tolerance", 150.0)
	v.SetDefault("fx.source_timeout", "6s")
	v.SetDefault("fx.cache_ttl", "60s")

	v.SetDefault("watcher.interval", "1s")
	v.SetDefault("watcher.min_change", 1.0)
	v.SetDefault("watcher.cooldown", "50s")
	v.SetDefault("watcher.stale_after", "5m")
	v.SetDefault("watcher.ring_size", 500)

	v.SetDefault("promo.enabled", false)
	v.SetDefault("promo.nominal_url", "https://connect.treasury.id/nominal/suggestion")
	v.SetDefault("promo.signin_url", "https://connect.treasury.id/user/signin")
	v.SetDefault("promo.token_path", "promo_token.txt")
	v.SetDefault("promo.interval", "1s")
	v.SetDefault("promo.cooldown", "60s")

	v.SetDefault("broadcast.dedup_window", "65s")
	v.SetDefault("broadcast.send_spacing", "300ms")
	v.SetDefault("broadcast.prune_interval", "2m")

	v.SetDefault("commands.chat_cooldown", "60s")
	v.SetDefault("commands.global_spacing", "3s")

	v.SetDefault("calendar.enabled", true)
	v.SetDefault("calendar.url", "https://nfs.faireconomy.media/ff_calendar_thisweek.json")
	v.SetDefault("calendar.request_timeout", "5s")
	v.SetDefault("calendar.cache_ttl", "5m")
	v.SetDefault("calendar.max_events", 10)
	v.SetDefault("calendar.hide_after", "3h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.poll_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	if c.Treasury.URL == "" {
		return fmt.Errorf("treasury.url is required")
	}
	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be greater than zero")
	}
	if c.Watcher.MinChange < 0 {
		return fmt.Errorf("watcher.min_change cannot be negative")
	}
	if c.Watcher.Cooldown <= 0 {
		return fmt.Errorf("watcher.cooldown must be greater than zero")
	}
	if c.Spot.Min >= c.Spot.Max {
		return fmt.Errorf("spot.min must be below spot.max")
	}
	if c.FX.Min >= c.FX.Max {
		return fmt.Errorf("fx.min must be below fx.max")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	if c.Promo.Enabled {
		if c.Promo.Email == "" || c.Promo.Password == "" {
			return fmt.Errorf("promo.email and promo.password are required when promo is enabled")
		}
	}
	return nil
}
