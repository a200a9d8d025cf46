// Package config loads the processor's configuration from environment
// variables, optionally layered over a config file. Keys are flat and match
// the deployment surface one-to-one (kafka_bootstrap_servers, mongodb_uri,
// ...).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Kafka struct {
	BootstrapServers []string
	Topic            string
	GroupID          string
	AutoOffsetReset  string
	EnableAutoCommit bool
	MaxPollRecords   int
}

type Mongo struct {
	URI                      string
	Database                 string
	ConnectTimeoutMS         int
	ServerSelectionTimeoutMS int
}

type App struct {
	LogLevel string
	// Reserved for a future dead-letter / backoff policy; loaded and
	// validated but not consulted by the processing loop.
	ProcessingBatchSize    int
	MaxRetries             int
	RetryDelaySeconds      int
	ShutdownTimeoutSeconds int
}

type Ops struct {
	HTTPAddr string
}

type Config struct {
	Kafka Kafka
	Mongo Mongo
	App   App
	Ops   Ops
}

// LoadConfig reads configuration with env-first precedence. configFile may
// be empty.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("kafka_bootstrap_servers", "localhost:9092")
	v.SetDefault("kafka_topic", "postgres.activity.event_outbox")
	v.SetDefault("kafka_group_id", "event-processor-group")
	v.SetDefault("kafka_auto_offset_reset", "earliest")
	v.SetDefault("kafka_enable_auto_commit", false)
	v.SetDefault("kafka_max_poll_records", 100)

	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "activity_read")
	v.SetDefault("mongodb_connect_timeout_ms", 5000)
	v.SetDefault("mongodb_server_selection_timeout_ms", 5000)

	v.SetDefault("log_level", "info")
	v.SetDefault("processing_batch_size", 100)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay_seconds", 5)
	v.SetDefault("shutdown_timeout_seconds", 30)

	v.SetDefault("ops_http_addr", ":8081")

	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Kafka: Kafka{
			BootstrapServers: splitServers(v.GetString("kafka_bootstrap_servers")),
			Topic:            v.GetString("kafka_topic"),
			GroupID:          v.GetString("kafka_group_id"),
			AutoOffsetReset:  v.GetString("kafka_auto_offset_reset"),
			EnableAutoCommit: v.GetBool("kafka_enable_auto_commit"),
			MaxPollRecords:   v.GetInt("kafka_max_poll_records"),
		},
		Mongo: Mongo{
			URI:                      v.GetString("mongodb_uri"),
			Database:                 v.GetString("mongodb_database"),
			ConnectTimeoutMS:         v.GetInt("mongodb_connect_timeout_ms"),
			ServerSelectionTimeoutMS: v.GetInt("mongodb_server_selection_timeout_ms"),
		},
		App: App{
			LogLevel:               v.GetString("log_level"),
			ProcessingBatchSize:    v.GetInt("processing_batch_size"),
			MaxRetries:             v.GetInt("max_retries"),
			RetryDelaySeconds:      v.GetInt("retry_delay_seconds"),
			ShutdownTimeoutSeconds: v.GetInt("shutdown_timeout_seconds"),
		},
		Ops: Ops{
			HTTPAddr: v.GetString("ops_http_addr"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("config: kafka_bootstrap_servers must not be empty")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("config: kafka_topic must not be empty")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka_group_id must not be empty")
	}
	// At-least-once depends on offsets being committed only after dispatch.
	if c.Kafka.EnableAutoCommit {
		return fmt.Errorf("config: kafka_enable_auto_commit must be false")
	}
	switch c.Kafka.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("config: kafka_auto_offset_reset must be earliest or latest, got %q", c.Kafka.AutoOffsetReset)
	}
	if c.Kafka.MaxPollRecords <= 0 {
		return fmt.Errorf("config: kafka_max_poll_records must be positive")
	}
	if c.App.MaxRetries < 0 || c.App.RetryDelaySeconds < 0 {
		return fmt.Errorf("config: retry settings must be non-negative")
	}
	if c.App.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: shutdown_timeout_seconds must be positive")
	}
	return nil
}

func splitServers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RedactURI strips credentials from a connection URI so it is safe to log.
func RedactURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	at := strings.LastIndex(uri, "@")
	if schemeEnd < 0 || at < 0 || at < schemeEnd {
		return uri
	}
	return uri[:schemeEnd+3] + "***@" + uri[at+1:]
}
