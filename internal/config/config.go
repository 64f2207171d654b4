package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshp123/catgenie/internal/secrets"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion          = 1
	DefaultPath            = "/etc/catgenie/config.yaml"
	DefaultGRPCAddr        = "0.0.0.0:9000"
	DefaultHTTPAddr        = "0.0.0.0:8080"
	DefaultDashboardDir    = "/var/lib/catgenie/dashboards"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultBaseURL         = "https://iot.petnovations.com"
	DefaultPollInterval    = time.Minute
	MinPollInterval        = 20 * time.Second
	MaxPollInterval        = time.Hour
	DefaultRequestTimeout  = 10 * time.Second
	DefaultRatePerMinute   = 30
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBaseTopic       = "catgenie"
	DefaultClientID        = "catgenie"
	DefaultSubjectPrefix   = "catgenie"
	DefaultArchivePrefix   = "catgenie/snapshots"
	envPrefix              = "CATGENIE"
)

// Config is the full daemon configuration.
type Config struct {
	SchemaVersion int             `mapstructure:"schema_version" yaml:"schema_version"`
	Core          CoreConfig      `mapstructure:"core" yaml:"core"`
	CatGenie      *CatGenieConfig `mapstructure:"catgenie" yaml:"catgenie,omitempty"`
	MQTT          *MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt,omitempty"`
	NATS          *NATSConfig     `mapstructure:"nats" yaml:"nats,omitempty"`
	Archive       *ArchiveConfig  `mapstructure:"archive" yaml:"archive,omitempty"`
}

type CoreConfig struct {
	GRPCAddr     string `mapstructure:"grpc_addr" yaml:"grpc_addr,omitempty"`
	HTTPAddr     string `mapstructure:"http_addr" yaml:"http_addr,omitempty"`
	DashboardDir string `mapstructure:"dashboard_dir" yaml:"dashboard_dir,omitempty"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level,omitempty"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format,omitempty"`
}

// CatGenieConfig is the config entry produced by the setup flow.
type CatGenieConfig struct {
	Name             string        `mapstructure:"name" yaml:"name"`
	RefreshToken     string        `mapstructure:"refresh_token" yaml:"refresh_token,omitempty"`
	RefreshTokenFile string        `mapstructure:"refresh_token_file" yaml:"refresh_token_file,omitempty"`
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval,omitempty"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout,omitempty"`
	RatePerMinute    int           `mapstructure:"rate_per_minute" yaml:"rate_per_minute,omitempty"`
	DeviceIDs        []string      `mapstructure:"device_ids" yaml:"device_ids,omitempty"`
}

type MQTTConfig struct {
	Broker          string `mapstructure:"broker" yaml:"broker"`
	Username        string `mapstructure:"username" yaml:"username,omitempty"`
	Password        string `mapstructure:"password" yaml:"password,omitempty"`
	PasswordFile    string `mapstructure:"password_file" yaml:"password_file,omitempty"`
	ClientID        string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix" yaml:"discovery_prefix,omitempty"`
	BaseTopic       string `mapstructure:"base_topic" yaml:"base_topic,omitempty"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix,omitempty"`
}

type ArchiveConfig struct {
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region        string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKeyFile string `mapstructure:"access_key_file" yaml:"access_key_file"`
	SecretKeyFile string `mapstructure:"secret_key_file" yaml:"secret_key_file"`
}

// Load parses the YAML config file, applies env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv registers keys that may only be set through the environment;
// AutomaticEnv alone does not surface them during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"core.grpc_addr",
		"core.http_addr",
		"core.log_level",
		"core.log_format",
		"catgenie.refresh_token",
		"catgenie.name",
		"mqtt.broker",
		"nats.url",
	} {
		_ = v.BindEnv(key)
	}
}

func resolveSecrets(cfg *Config) error {
	if cfg.CatGenie != nil && cfg.CatGenie.RefreshToken == "" && cfg.CatGenie.RefreshTokenFile != "" {
		token, err := secrets.ReadFile(cfg.CatGenie.RefreshTokenFile)
		if err != nil {
			return fmt.Errorf("read catgenie refresh token: %w", err)
		}
		cfg.CatGenie.RefreshToken = token
	}
	if cfg.MQTT != nil && cfg.MQTT.Password == "" && cfg.MQTT.PasswordFile != "" {
		password, err := secrets.ReadFile(cfg.MQTT.PasswordFile)
		if err != nil {
			return fmt.Errorf("read mqtt password: %w", err)
		}
		cfg.MQTT.Password = password
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}
	if cfg.Core.LogFormat == "" {
		cfg.Core.LogFormat = DefaultLogFormat
	}

	if cg := cfg.CatGenie; cg != nil {
		if cg.BaseURL == "" {
			cg.BaseURL = DefaultBaseURL
		}
		if cg.PollInterval == 0 {
			cg.PollInterval = DefaultPollInterval
		}
		cg.PollInterval = ClampPollInterval(cg.PollInterval)
		if cg.RequestTimeout == 0 {
			cg.RequestTimeout = DefaultRequestTimeout
		}
		if cg.RatePerMinute == 0 {
			cg.RatePerMinute = DefaultRatePerMinute
		}
	}

	if m := cfg.MQTT; m != nil {
		if m.ClientID == "" {
			m.ClientID = DefaultClientID
		}
		if m.DiscoveryPrefix == "" {
			m.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
		if m.BaseTopic == "" {
			m.BaseTopic = DefaultBaseTopic
		}
	}

	if n := cfg.NATS; n != nil && n.SubjectPrefix == "" {
		n.SubjectPrefix = DefaultSubjectPrefix
	}

	if a := cfg.Archive; a != nil && a.Prefix == "" {
		a.Prefix = DefaultArchivePrefix
	}
}

// ClampPollInterval keeps the poll cadence within the supported range.
func ClampPollInterval(interval time.Duration) time.Duration {
	if interval < MinPollInterval {
		return MinPollInterval
	}
	if interval > MaxPollInterval {
		return MaxPollInterval
	}
	return interval
}

// Validate enforces required invariants after defaults are applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	if cg := cfg.CatGenie; cg != nil {
		if strings.TrimSpace(cg.RefreshToken) == "" {
			return fmt.Errorf("catgenie.refresh_token or catgenie.refresh_token_file is required")
		}
		if cg.RequestTimeout < 0 {
			return fmt.Errorf("catgenie.request_timeout must be positive")
		}
		if cg.RatePerMinute < 0 {
			return fmt.Errorf("catgenie.rate_per_minute must be positive")
		}
	}

	if m := cfg.MQTT; m != nil && m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if n := cfg.NATS; n != nil && n.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if a := cfg.Archive; a != nil {
		if a.Endpoint == "" {
			return fmt.Errorf("archive.endpoint is required")
		}
		if a.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		if a.AccessKeyFile == "" || a.SecretKeyFile == "" {
			return fmt.Errorf("archive.access_key_file and archive.secret_key_file are required")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.CatGenie != nil {
		enabled["catgenie"] = true
	}
	return enabled
}

// WriteEntry stores a validated CatGenie entry in the config file at path,
// creating the file when missing and keeping other sections intact.
func WriteEntry(path string, entry CatGenieConfig) error {
	var doc map[string]any

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{"schema_version": SchemaVersion}
	}

	section := map[string]any{}
	if existing, ok := doc["catgenie"].(map[string]any); ok {
		section = existing
	}
	section["name"] = entry.Name
	if entry.RefreshTokenFile != "" {
		section["refresh_token_file"] = entry.RefreshTokenFile
		delete(section, "refresh_token")
	} else {
		section["refresh_token"] = entry.RefreshToken
		delete(section, "refresh_token_file")
	}
	if entry.BaseURL != "" {
		section["base_url"] = entry.BaseURL
	}
	doc["catgenie"] = section

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
