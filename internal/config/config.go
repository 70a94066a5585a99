// Package config loads the service configuration from config.yaml and
// MAILVERIFY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/studiocloud/mailverify/types"
)

// Config holds all application configuration.
type Config struct {
	Environment string                  `mapstructure:"environment" validate:"oneof=development production test"`
	Server      ServerConfig            `mapstructure:"server"`
	Logging     LoggingConfig           `mapstructure:"logging"`
	DNS         DNSConfig               `mapstructure:"dns"`
	SMTP        SMTPConfig              `mapstructure:"smtp"`
	Batch       BatchConfig             `mapstructure:"batch"`
	Redis       RedisConfig             `mapstructure:"redis"`
	Providers   []types.ProviderProfile `mapstructure:"providers"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	MaxUploadMB       int64         `mapstructure:"max_upload_mb" validate:"min=1"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Output    string `mapstructure:"output" validate:"oneof=stdout stderr file"`
	Format    string `mapstructure:"format" validate:"oneof=json console"`
	FilePath  string `mapstructure:"file_path" validate:"required_if=Output file"`
	MaxSizeMB int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxFiles  int    `mapstructure:"max_files" validate:"min=0"`
}

// DNSConfig holds domain resolution configuration.
type DNSConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" validate:"min=0"`
	FallbackToA bool          `mapstructure:"fallback_to_a"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
	Nameserver  string        `mapstructure:"nameserver"`
}

// SMTPConfig holds SMTP probe configuration.
type SMTPConfig struct {
	Port               int           `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"min=0"`
	HeloFallbacks      []string      `mapstructure:"helo_fallbacks"`
	FromFallbacks      []string      `mapstructure:"from_fallbacks"`
	TempFailOptimistic bool          `mapstructure:"temp_fail_optimistic"`
	VerifyTLS          bool          `mapstructure:"verify_tls"`
	Proxy              ProxyConfig   `mapstructure:"proxy"`
}

// ProxyConfig holds the optional SOCKS5 proxy for outbound SMTP.
type ProxyConfig struct {
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BatchConfig holds bulk validation pacing.
type BatchConfig struct {
	Size       int           `mapstructure:"size" validate:"min=1"`
	GroupSize  int           `mapstructure:"group_size" validate:"min=1"`
	GroupPause time.Duration `mapstructure:"group_pause" validate:"min=0"`
}

// RedisConfig holds the optional shared DNS cache.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// IsProduction reports whether error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

var validate = validator.New()

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory; a missing file
// leaves the defaults in place. Environment variables with prefix
// MAILVERIFY_ override file values. For example, MAILVERIFY_SMTP_TIMEOUT
// overrides smtp.timeout.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAILVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the provider table.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
	}

	for i, p := range c.Providers {
		if p.Key == "" {
			return fmt.Errorf("invalid config: providers[%d] has no key", i)
		}
		if len(p.Domains) == 0 && len(p.MXDomains) == 0 {
			return fmt.Errorf("invalid config: provider %q matches nothing", p.Key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.keepalive_interval", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("dns.timeout", 5*time.Second)
	v.SetDefault("dns.fallback_to_a", false)
	v.SetDefault("dns.cache_ttl", time.Duration(0))
	v.SetDefault("dns.nameserver", "")

	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.timeout", 10*time.Second)
	v.SetDefault("smtp.helo_fallbacks", []string{"verify.local", "validator.local", "example.com"})
	v.SetDefault("smtp.from_fallbacks", []string{"verify@example.com", "check@validator.local"})
	v.SetDefault("smtp.temp_fail_optimistic", true)
	v.SetDefault("smtp.verify_tls", false)
	v.SetDefault("smtp.proxy.address", "")
	v.SetDefault("smtp.proxy.username", "")
	v.SetDefault("smtp.proxy.password", "")

	v.SetDefault("batch.size", 25)
	v.SetDefault("batch.group_size", 4)
	v.SetDefault("batch.group_pause", 100*time.Millisecond)

	v.SetDefault("redis.url", "")
}
