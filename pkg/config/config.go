// Package config provides the configuration system for freightsync.
//
// The configuration is organized into sections, one per component:
//   - App, Log, HTTP: process identity, logging and the API listener
//   - Engine: retry policy and per-request timeout for carrier fetches
//   - Monitor: health polling interval, history size and alert thresholds
//   - Pipeline: free time, dedup retention and significant fields
//   - Vault: master secrets for credential encryption
//   - Store, Dedup, Sink: persistence, dedup cache and downstream publishers
//   - Tracing, Carriers: OpenTelemetry and generic carrier definitions
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Engine.MaxRetries = 5
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/freightsync/pkg/logger"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// FREIGHTSYNC_STORE_DSN overrides store.dsn.
const EnvPrefix = "FREIGHTSYNC"

// Config is the root configuration structure.
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app" json:"app"`
	Log      logger.Config  `mapstructure:"log" yaml:"log" json:"log"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine" json:"engine"`
	Monitor  MonitorConfig  `mapstructure:"monitor" yaml:"monitor" json:"monitor"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Vault    VaultConfig    `mapstructure:"vault" yaml:"vault" json:"-"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store" json:"store"`
	Dedup    DedupConfig    `mapstructure:"dedup" yaml:"dedup" json:"dedup"`
	Sink     SinkConfig     `mapstructure:"sink" yaml:"sink" json:"sink"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http" json:"http"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Carriers CarriersConfig `mapstructure:"carriers" yaml:"carriers" json:"carriers"`
}

// AppConfig identifies the running process.
type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Env  string `mapstructure:"env" yaml:"env" json:"env" validate:"oneof=development staging production test"`
}

// EngineConfig controls fetch dispatch and retry policy.
type EngineConfig struct {
	// MaxRetries is the number of retries after the first failed attempt
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	// BaseDelay is the backoff for the first retry; each retry doubles it
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay" json:"base_delay" validate:"gt=0"`
	// MaxDelay caps a single backoff
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay" validate:"gtefield=BaseDelay"`
	// RequestTimeout bounds every carrier HTTP call
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
}

// MonitorConfig controls periodic health checks and alerting.
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Interval           time.Duration `mapstructure:"interval" yaml:"interval" json:"interval" validate:"gt=0"`
	HistorySize        int           `mapstructure:"history_size" yaml:"history_size" json:"history_size" validate:"gt=0"`
	MaxAlerts          int           `mapstructure:"max_alerts" yaml:"max_alerts" json:"max_alerts" validate:"gt=0"`
	LatencyThreshold   time.Duration `mapstructure:"latency_threshold" yaml:"latency_threshold" json:"latency_threshold" validate:"gt=0"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold" yaml:"error_rate_threshold" json:"error_rate_threshold" validate:"gte=0,lte=1"`
	CheckTimeout       time.Duration `mapstructure:"check_timeout" yaml:"check_timeout" json:"check_timeout" validate:"gt=0"`
	MaxConcurrency     int           `mapstructure:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency" validate:"gt=0"`
}

// PipelineConfig tunes the enrichment and duplicate detection stages.
type PipelineConfig struct {
	FreeTimeDays      int           `mapstructure:"free_time_days" yaml:"free_time_days" json:"free_time_days" validate:"gt=0"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl" json:"dedup_ttl" validate:"gt=0"`
	SignificantFields []string      `mapstructure:"significant_fields" yaml:"significant_fields" json:"significant_fields" validate:"min=1,dive,oneof=status currentLocation origin destination eta etd ata atd vessel voyage"`
}

// VaultConfig holds the master secrets credentials are encrypted under.
// Keys maps a key id to its secret; ActiveKeyID selects the encrypting key.
type VaultConfig struct {
	ActiveKeyID string            `mapstructure:"active_key_id" yaml:"active_key_id" validate:"required"`
	Keys        map[string]string `mapstructure:"keys" yaml:"keys" validate:"required,min=1,dive,min=16"`
}

// StoreConfig selects the persistence backend for connections, alerts and audit events.
type StoreConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=memory postgres"`
	DSN      string `mapstructure:"dsn" yaml:"dsn" json:"-" validate:"required_if=Driver postgres"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns" json:"max_conns" validate:"gte=0"`
}

// DedupConfig selects the duplicate detection state backend.
type DedupConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=memory redis"`
	Addr      string `mapstructure:"addr" yaml:"addr" json:"addr" validate:"required_if=Driver redis"`
	Password  string `mapstructure:"password" yaml:"password" json:"-"`
	DB        int    `mapstructure:"db" yaml:"db" json:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
}

// SinkConfig configures downstream publishers. Empty sections are disabled.
type SinkConfig struct {
	Kafka   KafkaSinkConfig   `mapstructure:"kafka" yaml:"kafka" json:"kafka"`
	Webhook WebhookSinkConfig `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
}

// KafkaSinkConfig configures the Kafka publisher.
type KafkaSinkConfig struct {
	Brokers     []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	RecordTopic string   `mapstructure:"record_topic" yaml:"record_topic" json:"record_topic"`
	AlertTopic  string   `mapstructure:"alert_topic" yaml:"alert_topic" json:"alert_topic"`
	ClientID    string   `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
}

// WebhookSinkConfig configures the signed webhook publisher.
type WebhookSinkConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url" validate:"omitempty,url"`
	Secret  string        `mapstructure:"secret" yaml:"secret" json:"-" validate:"required_with=URL"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	// Gzip compresses request bodies; the signature covers the uncompressed JSON
	Gzip bool `mapstructure:"gzip" yaml:"gzip" json:"gzip"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr" json:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
}

// CarriersConfig lists generic carrier definition files to register at startup.
type CarriersConfig struct {
	Definitions []string `mapstructure:"definitions" yaml:"definitions" json:"definitions"`
}

// NewDefault returns a configuration with sensible defaults. The vault gets a
// development key so that a bare `freightsync serve` works; production
// deployments must override vault.keys.
func NewDefault() *Config {
	return &Config{
		App: AppConfig{
			Name: "freightsync",
			Env:  "development",
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Engine: EngineConfig{
			MaxRetries:     3,
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:            true,
			Interval:           30 * time.Second,
			HistorySize:        100,
			MaxAlerts:          100,
			LatencyThreshold:   5 * time.Second,
			ErrorRateThreshold: 0.05,
			CheckTimeout:       30 * time.Second,
			MaxConcurrency:     8,
		},
		Pipeline: PipelineConfig{
			FreeTimeDays:      5,
			DedupTTL:          7 * 24 * time.Hour,
			SignificantFields: []string{"status", "currentLocation", "eta", "ata"},
		},
		Vault: VaultConfig{
			ActiveKeyID: "dev",
			Keys:        map[string]string{"dev": "freightsync-development-only-secret"},
		},
		Store: StoreConfig{
			Driver:   "memory",
			MaxConns: 10,
		},
		Dedup: DedupConfig{
			Driver:    "memory",
			KeyPrefix: "freightsync:dedup:",
		},
		Sink: SinkConfig{
			Kafka: KafkaSinkConfig{
				RecordTopic: "freightsync.records",
				AlertTopic:  "freightsync.alerts",
				ClientID:    "freightsync",
			},
			Webhook: WebhookSinkConfig{
				Timeout: 10 * time.Second,
			},
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "freightsync",
			SampleRate:  1.0,
		},
	}
}

// Load reads configuration from path, or from freightsync.yaml in the usual
// search paths when path is empty. Environment variables with the
// FREIGHTSYNC_ prefix override file values, which override the defaults.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewDefault())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("freightsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/freightsync")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	// vault.keys is a map, so a viper default would be merged into file keys.
	if len(cfg.Vault.Keys) == 0 {
		cfg.Vault.Keys = NewDefault().Vault.Keys
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so that AutomaticEnv can
// override keys absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.env", d.App.Env)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)

	v.SetDefault("engine.max_retries", d.Engine.MaxRetries)
	v.SetDefault("engine.base_delay", d.Engine.BaseDelay)
	v.SetDefault("engine.max_delay", d.Engine.MaxDelay)
	v.SetDefault("engine.request_timeout", d.Engine.RequestTimeout)

	v.SetDefault("monitor.enabled", d.Monitor.Enabled)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.history_size", d.Monitor.HistorySize)
	v.SetDefault("monitor.max_alerts", d.Monitor.MaxAlerts)
	v.SetDefault("monitor.latency_threshold", d.Monitor.LatencyThreshold)
	v.SetDefault("monitor.error_rate_threshold", d.Monitor.ErrorRateThreshold)
	v.SetDefault("monitor.check_timeout", d.Monitor.CheckTimeout)
	v.SetDefault("monitor.max_concurrency", d.Monitor.MaxConcurrency)

	v.SetDefault("pipeline.free_time_days", d.Pipeline.FreeTimeDays)
	v.SetDefault("pipeline.dedup_ttl", d.Pipeline.DedupTTL)
	v.SetDefault("pipeline.significant_fields", d.Pipeline.SignificantFields)

	v.SetDefault("vault.active_key_id", d.Vault.ActiveKeyID)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.max_conns", d.Store.MaxConns)

	v.SetDefault("dedup.driver", d.Dedup.Driver)
	v.SetDefault("dedup.addr", d.Dedup.Addr)
	v.SetDefault("dedup.password", d.Dedup.Password)
	v.SetDefault("dedup.db", d.Dedup.DB)
	v.SetDefault("dedup.key_prefix", d.Dedup.KeyPrefix)

	v.SetDefault("sink.kafka.brokers", d.Sink.Kafka.Brokers)
	v.SetDefault("sink.kafka.record_topic", d.Sink.Kafka.RecordTopic)
	v.SetDefault("sink.kafka.alert_topic", d.Sink.Kafka.AlertTopic)
	v.SetDefault("sink.kafka.client_id", d.Sink.Kafka.ClientID)
	v.SetDefault("sink.webhook.url", d.Sink.Webhook.URL)
	v.SetDefault("sink.webhook.secret", d.Sink.Webhook.Secret)
	v.SetDefault("sink.webhook.timeout", d.Sink.Webhook.Timeout)
	v.SetDefault("sink.webhook.gzip", d.Sink.Webhook.Gzip)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	v.SetDefault("carriers.definitions", d.Carriers.Definitions)
}

var validate = validator.New()

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := c.Vault.Keys[c.Vault.ActiveKeyID]; !ok {
		return fmt.Errorf("invalid configuration: vault.active_key_id %q has no key", c.Vault.ActiveKeyID)
	}
	if len(c.Sink.Kafka.Brokers) > 0 && c.Sink.Kafka.RecordTopic == "" {
		return fmt.Errorf("invalid configuration: sink.kafka.record_topic is required with brokers")
	}
	return nil
}
