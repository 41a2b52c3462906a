package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabasesConfig       `mapstructure:"database"`
	Notifier        NotifierConfig        `mapstructure:"notifier"`
	TokenRevocation TokenRevocationConfig `mapstructure:"token_revocation"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Consent         ConsentConfig         `mapstructure:"consent"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
}

// DatabasesConfig holds the live and retention store configurations
type DatabasesConfig struct {
	Consent   DatabaseConfig `mapstructure:"consent"`
	Retention DatabaseConfig `mapstructure:"retention"`
}

// DatabaseConfig holds individual database configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// NotifierConfig holds state-change notifier (message broker) configuration
type NotifierConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// TokenRevocationConfig holds the external token revocation endpoint configuration
type TokenRevocationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the detailed-consent read cache configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConsentConfig holds consent-related configuration
type ConsentConfig struct {
	StatusMappings ConsentStatusMappings `mapstructure:"status_mappings"`
}

// ConsentStatusMappings holds the mapping of specific consent lifecycle states.
// Status values are domain-configurable strings, not a fixed enum.
type ConsentStatusMappings struct {
	CreatedStatus string `mapstructure:"created_status"`
	ActiveStatus  string `mapstructure:"active_status"`
	AmendedStatus string `mapstructure:"amended_status"`
	RevokedStatus string `mapstructure:"revoked_status"`
	ExpiredStatus string `mapstructure:"expired_status"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONSENT_CORE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Consent.Hostname == "" {
		return fmt.Errorf("consent database hostname is required")
	}

	if config.Database.Consent.Database == "" {
		return fmt.Errorf("consent database name is required")
	}

	if config.Notifier.Enabled && config.Notifier.URL == "" {
		return fmt.Errorf("notifier URL is required when the notifier is enabled")
	}

	if config.TokenRevocation.Enabled && config.TokenRevocation.BaseURL == "" {
		return fmt.Errorf("token revocation base URL is required when token revocation is enabled")
	}

	if config.Cache.Enabled && config.Cache.Addr == "" {
		return fmt.Errorf("cache address is required when the cache is enabled")
	}

	if config.Consent.StatusMappings.RevokedStatus == "" {
		return fmt.Errorf("revoked status mapping is required")
	}

	if config.Consent.StatusMappings.AmendedStatus == "" {
		return fmt.Errorf("amended status mapping is required")
	}

	return nil
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// IsRetentionConfigured reports whether a retention store is configured
func (d *DatabasesConfig) IsRetentionConfigured() bool {
	return d.Retention.Hostname != "" && d.Retention.Database != ""
}

// IsRevokedStatus checks if the given status represents a revoked consent
func (c *ConsentConfig) IsRevokedStatus(status string) bool {
	return status == c.StatusMappings.RevokedStatus
}
