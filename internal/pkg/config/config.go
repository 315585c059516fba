package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Locator   LocatorConfig   `mapstructure:"locator"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	CORSOrigins  string `mapstructure:"cors_origins"`
}

// Data sources for the line index, point files and corrections.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

type LocatorConfig struct {
	DataSource         string        `mapstructure:"data_source"`
	DataDir            string        `mapstructure:"data_dir"`
	DataURL            string        `mapstructure:"data_url"`
	MarginDeg          float64       `mapstructure:"margin_deg"`
	MaxCacheSize       int           `mapstructure:"max_cache_size"`
	CacheExpiry        time.Duration `mapstructure:"cache_expiry"`
	RetryAfter         time.Duration `mapstructure:"retry_after"`
	LoadTimeout        time.Duration `mapstructure:"load_timeout"`
	ProximityM         float64       `mapstructure:"proximity_m"`
	Resolution         string        `mapstructure:"resolution"`
	UpdateInterval     time.Duration `mapstructure:"update_interval"`
	FastUpdateInterval time.Duration `mapstructure:"fast_update_interval"`
	HighSpeedKmh       float64       `mapstructure:"high_speed_kmh"`
	DeviceID           string        `mapstructure:"device_id"`
	SharedCache        bool          `mapstructure:"shared_cache"`
}

// Location sources for the tracker.
const (
	TrackNATS   = "nats"
	TrackMQTT   = "mqtt"
	TrackReplay = "replay"
)

type TrackerConfig struct {
	Source            string        `mapstructure:"source"`
	ReplayFile        string        `mapstructure:"replay_file"`
	ReplayLoop        bool          `mapstructure:"replay_loop"`
	MaxTimeoutRetries int           `mapstructure:"max_timeout_retries"`
	RetryInitial      time.Duration `mapstructure:"retry_initial"`
	RetryMax          time.Duration `mapstructure:"retry_max"`
	FixTimeout        time.Duration `mapstructure:"fix_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

type TemporalConfig struct {
	HostPort  string        `mapstructure:"host_port"`
	Namespace string        `mapstructure:"namespace"`
	TaskQueue string        `mapstructure:"task_queue"`
	Interval  time.Duration `mapstructure:"interval"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env
// file in the working directory is loaded into the environment first.
func Load(service string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.cors_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("locator.data_source", SourceFile)
	v.SetDefault("locator.data_dir", "./data")
	v.SetDefault("locator.data_url", "")
	v.SetDefault("locator.margin_deg", 0.18)
	v.SetDefault("locator.max_cache_size", 50)
	v.SetDefault("locator.cache_expiry", time.Hour)
	v.SetDefault("locator.retry_after", 30*time.Second)
	v.SetDefault("locator.load_timeout", 10*time.Second)
	v.SetDefault("locator.proximity_m", 5.0)
	v.SetDefault("locator.resolution", "nearest")
	v.SetDefault("locator.update_interval", time.Second)
	v.SetDefault("locator.fast_update_interval", 500*time.Millisecond)
	v.SetDefault("locator.high_speed_kmh", 50.0)
	v.SetDefault("locator.device_id", "default")
	v.SetDefault("locator.shared_cache", false)
	v.SetDefault("tracker.source", TrackNATS)
	v.SetDefault("tracker.replay_file", "")
	v.SetDefault("tracker.replay_loop", false)
	v.SetDefault("tracker.max_timeout_retries", 3)
	v.SetDefault("tracker.retry_initial", time.Second)
	v.SetDefault("tracker.retry_max", 30*time.Second)
	v.SetDefault("tracker.fix_timeout", 15*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pklocator")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pklocator")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", service)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "pklocator-warmup")
	v.SetDefault("temporal.interval", 15*time.Minute)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PKLOCATOR_LOCATOR_MAX_CACHE_SIZE → locator.max_cache_size
	v.SetEnvPrefix("PKLOCATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Locator.DataSource {
	case SourceFile:
		if c.Locator.DataDir == "" {
			errs = append(errs, "locator.data_dir is required for the file data source")
		}
	case SourceHTTP:
		if c.Locator.DataURL == "" {
			errs = append(errs, "locator.data_url is required for the http data source")
		}
	case SourcePostgres:
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("locator.data_source must be file, http or postgres, got %q", c.Locator.DataSource))
	}

	if c.Locator.MarginDeg <= 0 {
		errs = append(errs, "locator.margin_deg must be positive")
	}
	if c.Locator.MaxCacheSize <= 0 {
		errs = append(errs, "locator.max_cache_size must be positive")
	}
	if c.Locator.CacheExpiry < 0 {
		errs = append(errs, "locator.cache_expiry must not be negative")
	}
	if c.Locator.LoadTimeout <= 0 {
		errs = append(errs, "locator.load_timeout must be positive")
	}
	if c.Locator.ProximityM <= 0 {
		errs = append(errs, "locator.proximity_m must be positive")
	}
	if c.Locator.Resolution != "nearest" && c.Locator.Resolution != "first_usable" {
		errs = append(errs, fmt.Sprintf("locator.resolution must be nearest or first_usable, got %q", c.Locator.Resolution))
	}
	if c.Locator.UpdateInterval <= 0 || c.Locator.FastUpdateInterval <= 0 {
		errs = append(errs, "locator update intervals must be positive")
	}
	if c.Locator.SharedCache && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when locator.shared_cache is set")
	}

	switch c.Tracker.Source {
	case TrackNATS:
		if c.NATS.URL == "" {
			errs = append(errs, "nats.url is required")
		}
	case TrackMQTT:
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("mqtt.qos must be 0-2, got %d", c.MQTT.QoS))
		}
	case TrackReplay:
		if c.Tracker.ReplayFile == "" {
			errs = append(errs, "tracker.replay_file is required for the replay source")
		}
	default:
		errs = append(errs, fmt.Sprintf("tracker.source must be nats, mqtt or replay, got %q", c.Tracker.Source))
	}
	if c.Tracker.MaxTimeoutRetries < 0 {
		errs = append(errs, "tracker.max_timeout_retries must not be negative")
	}
	if c.Temporal.Interval <= 0 {
		errs = append(errs, "temporal.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
