package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Defaults match the timings the
// coordinator was designed around: 5 minute lock TTL, 30 minute presence
// timeout, 60 minute idle session grace, 60 second sweep interval.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Collab  CollabConfig  `mapstructure:"collab"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Store   StoreConfig   `mapstructure:"store"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"` // debug or release
}

type CollabConfig struct {
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	PresenceTimeout    time.Duration `mapstructure:"presence_timeout"`
	IdleSessionTimeout time.Duration `mapstructure:"idle_session_timeout"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	EventBuffer        int           `mapstructure:"event_buffer"`
}

type GatewayConfig struct {
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	MessageRate     float64       `mapstructure:"message_rate"`
	MessageBurst    int           `mapstructure:"message_burst"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	Path   string `mapstructure:"path"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Mode:         "release",
		},
		Collab: CollabConfig{
			LockTTL:            5 * time.Minute,
			PresenceTimeout:    30 * time.Minute,
			IdleSessionTimeout: time.Hour,
			SweepInterval:      time.Minute,
			EventBuffer:        1024,
		},
		Gateway: GatewayConfig{
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    54 * time.Second,
			SendBuffer:      100,
			MaxMessageBytes: 64 * 1024,
			MessageRate:     30,
			MessageBurst:    60,
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   "./collabd.db",
		},
		Auth: AuthConfig{
			Secret: "collabd-dev-secret",
		},
		Log: LogConfig{
			File:       "logs/collabd.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads configuration with precedence file > environment > defaults.
// path may be empty, in which case only environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLABD")
	v.AutomaticEnv()

	v.BindEnv("server.host", "COLLABD_HOST")
	v.BindEnv("server.port", "COLLABD_PORT")
	v.BindEnv("server.mode", "COLLABD_MODE")
	v.BindEnv("collab.lock_ttl", "COLLABD_LOCK_TTL")
	v.BindEnv("collab.presence_timeout", "COLLABD_PRESENCE_TIMEOUT")
	v.BindEnv("collab.idle_session_timeout", "COLLABD_IDLE_SESSION_TIMEOUT")
	v.BindEnv("collab.sweep_interval", "COLLABD_SWEEP_INTERVAL")
	v.BindEnv("store.driver", "COLLABD_STORE_DRIVER")
	v.BindEnv("store.path", "COLLABD_STORE_PATH")
	v.BindEnv("auth.secret", "COLLABD_AUTH_SECRET")
	v.BindEnv("log.file", "COLLABD_LOG_FILE")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Unmarshal only overwrites fields present in the file or environment,
	// so defaults survive partial configs.
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break the coordinator's timing
// assumptions before any component starts.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("server mode must be debug or release, got %q", c.Server.Mode)
	}
	if c.Collab.LockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive")
	}
	if c.Collab.PresenceTimeout <= 0 {
		return fmt.Errorf("presence timeout must be positive")
	}
	if c.Collab.IdleSessionTimeout <= 0 {
		return fmt.Errorf("idle session timeout must be positive")
	}
	if c.Collab.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Collab.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive")
	}
	if c.Gateway.SendBuffer <= 0 {
		return fmt.Errorf("gateway send buffer must be positive")
	}
	if c.Gateway.MessageRate <= 0 || c.Gateway.MessageBurst <= 0 {
		return fmt.Errorf("gateway message rate and burst must be positive")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path cannot be empty with sqlite driver")
		}
	default:
		return fmt.Errorf("store driver must be memory or sqlite, got %q", c.Store.Driver)
	}
	if c.Server.Mode == "release" && len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret too short (%d chars) for release mode", len(c.Auth.Secret))
	}
	return nil
}
