package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "MERIDIAN"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "meridian.db"
	defaultStoragePath      = "storage"
	defaultLogLevel         = "info"
	defaultSignedURLSeconds = 3600
	defaultTokenTTLMinutes  = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	StoragePath      string
	SigningSecret    string
	SignedURLSeconds int
	TokenTTLMinutes  int
	AdminEmails      []string
	LogLevel         string
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
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("signed_url.ttl_seconds", defaultSignedURLSeconds)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		StoragePath:      configViper.GetString("storage.path"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		SignedURLSeconds: configViper.GetInt("signed_url.ttl_seconds"),
		TokenTTLMinutes:  configViper.GetInt("token.ttl_minutes"),
		AdminEmails:      splitEmails(configViper.GetString("admin.emails")),
		LogLevel:         configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.SignedURLSeconds <= 0 {
		return fmt.Errorf("signed_url.ttl_seconds must be positive")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}

// splitEmails parses a comma-separated address list, dropping empty entries.
func splitEmails(raw string) []string {
	parts := strings.Split(raw, ",")
	emails := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	return emails
}
