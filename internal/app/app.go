// Package app wires the validator and batch runner from configuration for
// the binaries.
package app

import (
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/studiocloud/mailverify"
	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/internal/config"
	"github.com/studiocloud/mailverify/provider"
)

// Services are the long-lived components shared by request handlers.
type Services struct {
	Validator *mailverify.Validator
	Runner    *batch.Runner

	redis *redis.Client
}

// New builds the services described by cfg.
func New(cfg *config.Config, log zerolog.Logger) (*Services, error) {
	rdb, err := newRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	policy := mailverify.DefaultRcptPolicy()
	policy.TempFailOptimistic = cfg.SMTP.TempFailOptimistic

	smtpOpts := mailverify.SMTPOptions{
		Port:          cfg.SMTP.Port,
		Timeout:       cfg.SMTP.Timeout,
		HeloFallbacks: cfg.SMTP.HeloFallbacks,
		FromFallbacks: cfg.SMTP.FromFallbacks,
		Policy:        policy,
	}
	if cfg.SMTP.VerifyTLS {
		smtpOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SMTP.Proxy.Address != "" {
		smtpOpts.Proxy = &mailverify.ProxyOptions{
			Address:  cfg.SMTP.Proxy.Address,
			Username: cfg.SMTP.Proxy.Username,
			Password: cfg.SMTP.Proxy.Password,
		}
	}

	// Configured profiles are consulted before the built-in ones.
	profiles := append(append([]mailverify.ProviderProfile{}, cfg.Providers...), provider.Default().Profiles()...)

	v := mailverify.New().
		WithLogger(log).
		WithDNS(mailverify.DNSOptions{
			Timeout:     cfg.DNS.Timeout,
			FallbackToA: cfg.DNS.FallbackToA,
			CacheTTL:    cfg.DNS.CacheTTL,
			Nameserver:  cfg.DNS.Nameserver,
			Redis:       rdb,
		}).
		WithSMTP(smtpOpts).
		WithProviders(provider.New(profiles...))
	if err := v.Err(); err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	runner := batch.NewRunner(v, batch.Options{
		BatchSize:  cfg.Batch.Size,
		GroupSize:  cfg.Batch.GroupSize,
		GroupPause: cfg.Batch.GroupPause,
		Logger:     log,
	})

	log.Info().
		Int("providers", len(profiles)).
		Bool("redis", rdb != nil).
		Str("nameserver", cfg.DNS.Nameserver).
		Msg("validator configured")

	return &Services{Validator: v, Runner: runner, redis: rdb}, nil
}

// Close releases the Redis connection pool, if any.
func (s *Services) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
