// Package api is the HTTP surface of the validator: single and bulk
// validation, health and metrics.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/types"
)

// Validator produces the verdict for one address.
type Validator interface {
	Validate(ctx context.Context, email string) (types.CheckResult, error)
}

// BatchRunner validates a record set and streams its events.
type BatchRunner interface {
	Run(ctx context.Context, rows []map[string]string, headers []string) <-chan batch.Event
}

// Options tune the handlers.
type Options struct {
	// Production hides internal error text from clients.
	Production bool
	// MaxUploadBytes caps the bulk upload size. Default: 50MB
	MaxUploadBytes int64
	// KeepaliveInterval is the gap between keepalive lines on a bulk
	// stream. Default: 15s
	KeepaliveInterval time.Duration
}

const (
	defaultMaxUploadBytes    = 50 << 20
	defaultKeepaliveInterval = 15 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = defaultMaxUploadBytes
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = defaultKeepaliveInterval
	}
	return o
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(v Validator, runner BatchRunner, log zerolog.Logger, opts Options) *chi.Mux {
	opts = opts.withDefaults()

	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HealthzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", ValidateHandler(v, opts))
		r.Post("/validate/bulk", BulkValidateHandler(runner, opts))
	})

	return r
}
