package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "WORKLOG"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "worklog.db"
	defaultLogLevel          = "info"
	defaultSessionIssuer     = "worklog-auth"
	defaultEnrichTimeoutMS   = 2000
	defaultEnrichConcurrency = 8
	defaultNotifyQueueSize   = 64
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	SessionSecret     string
	SessionIssuer     string
	DatabasePath      string
	LogLevel          string
	EnrichTimeout     time.Duration
	EnrichConcurrency int
	NotifyQueueSize   int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("enrich.timeout_ms", defaultEnrichTimeoutMS)
	configViper.SetDefault("enrich.concurrency", defaultEnrichConcurrency)
	configViper.SetDefault("notify.queue_size", defaultNotifyQueueSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		SessionSecret:     configViper.GetString("session.signing_secret"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		EnrichTimeout:     time.Duration(configViper.GetInt("enrich.timeout_ms")) * time.Millisecond,
		EnrichConcurrency: configViper.GetInt("enrich.concurrency"),
		NotifyQueueSize:   configViper.GetInt("notify.queue_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.EnrichTimeout <= 0 {
		return fmt.Errorf("enrich.timeout_ms must be positive")
	}
	if c.EnrichConcurrency <= 0 {
		return fmt.Errorf("enrich.concurrency must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be positive")
	}
	return nil
}
