// Package config loads the server configuration with viper.
//
// The YAML file uses `nexuscall:` as root key. Every key can be overridden by
// an environment variable with the NEXUSCALL_ prefix, for example
// NEXUSCALL_SERVER_ADDR or NEXUSCALL_CALL_CONNECT_DELAY. A .env file in the
// working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const rootKey = "nexuscall"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Call    CallConfig    `mapstructure:"call" yaml:"call"`
	WebRTC  WebRTCConfig  `mapstructure:"webrtc" yaml:"webrtc"`
	Media   MediaConfig   `mapstructure:"media" yaml:"media"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

type ServerConfig struct {
	Addr            string   `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug | info | warn | error
	Format     string `mapstructure:"format" yaml:"format"` // console | json
	File       string `mapstructure:"file" yaml:"file"`     // empty = stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type CallConfig struct {
	ConnectDelay string `mapstructure:"connect_delay" yaml:"connect_delay"`
	ClearDelay   string `mapstructure:"clear_delay" yaml:"clear_delay"`
	TickInterval string `mapstructure:"tick_interval" yaml:"tick_interval"`
	// 0 keeps idle sessions until their last socket closes.
	SessionIdleTimeout string `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`
}

type WebRTCConfig struct {
	ICEServers    []string `mapstructure:"ice_servers" yaml:"ice_servers"`
	GatherTimeout string   `mapstructure:"gather_timeout" yaml:"gather_timeout"`
}

// MediaConfig tells which capture sources the host pretends to have.
type MediaConfig struct {
	Audio   bool `mapstructure:"audio" yaml:"audio"`
	Video   bool `mapstructure:"video" yaml:"video"`
	Display bool `mapstructure:"display" yaml:"display"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // memory | sqlite
	Path   string `mapstructure:"path" yaml:"path"`
}

type configRoot struct {
	Nexuscall Config `mapstructure:"nexuscall"`
}

// Load reads the file at path (optional), environment overrides and defaults,
// then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "nexuscall.server.addr" maps to env NEXUSCALL_SERVER_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Nexuscall

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := func(key string, value any) {
		v.SetDefault(rootKey+"."+key, value)
	}

	d("server.addr", ":8080")
	d("server.shutdown_timeout", "5s")
	d("server.allowed_origins", []string{"*"})

	d("log.level", "info")
	d("log.format", "console")
	d("log.file", "")
	d("log.max_size_mb", 100)
	d("log.max_backups", 5)
	d("log.max_age_days", 30)
	d("log.compress", true)

	d("call.connect_delay", "3s")
	d("call.clear_delay", "2s")
	d("call.tick_interval", "1s")
	d("call.session_idle_timeout", "5m")

	d("webrtc.ice_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	d("webrtc.gather_timeout", "500ms")

	d("media.audio", true)
	d("media.video", true)
	d("media.display", true)

	d("storage.driver", "memory")
	d("storage.path", "./data/nexuscall.db")
}

func (cfg *Config) Validate() error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil || cfg.Log.Level == "" {
		return fmt.Errorf("invalid log level: %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %q (must be console/json)", cfg.Log.Format)
	}

	durations := []struct {
		key      string
		value    string
		positive bool
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout, true},
		{"call.connect_delay", cfg.Call.ConnectDelay, false},
		{"call.clear_delay", cfg.Call.ClearDelay, false},
		{"call.tick_interval", cfg.Call.TickInterval, true},
		{"call.session_idle_timeout", cfg.Call.SessionIdleTimeout, false},
		{"webrtc.gather_timeout", cfg.WebRTC.GatherTimeout, true},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("invalid %s: %s", d.key, d.value)
		}
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q (must be memory/sqlite)", cfg.Storage.Driver)
	}
	return nil
}

// The accessors below assume Validate passed.

func (c ServerConfig) Shutdown() time.Duration  { return duration(c.ShutdownTimeout) }
func (c CallConfig) Connect() time.Duration     { return duration(c.ConnectDelay) }
func (c CallConfig) Clear() time.Duration       { return duration(c.ClearDelay) }
func (c CallConfig) Tick() time.Duration        { return duration(c.TickInterval) }
func (c CallConfig) SessionIdle() time.Duration { return duration(c.SessionIdleTimeout) }
func (c WebRTCConfig) Gather() time.Duration    { return duration(c.GatherTimeout) }

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
