package mailverify

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studiocloud/mailverify/batch"
)

// DNSOptions configures domain resolution.
type DNSOptions struct {
	// Timeout is the maximum time for one DNS lookup. Default: 5s
	Timeout time.Duration
	// FallbackToA when true uses the domain itself as the mail host when it
	// has no MX records but resolves to an address. Default: false
	FallbackToA bool
	// CacheTTL is how long answers are reused. Zero only merges concurrent
	// lookups of the same name. Default: 0
	CacheTTL time.Duration
	// Nameserver, e.g. "1.1.1.1:53", queries that server directly instead of
	// the system resolver.
	Nameserver string
	// Redis, when set and CacheTTL is positive, shares answers between
	// processes.
	Redis *redis.Client
}

func defaultDNSOptions() DNSOptions {
	return DNSOptions{
		Timeout: 5 * time.Second,
	}
}

// ProxyOptions routes SMTP connections through a SOCKS5 proxy.
type ProxyOptions struct {
	Address  string // host:port
	Username string
	Password string
}

// SMTPOptions configures the SMTP probe. A matching provider profile
// overrides Port and Timeout.
type SMTPOptions struct {
	// Port is the SMTP port. Default: 25
	Port int
	// Timeout bounds a whole probe. Default: 10s
	Timeout time.Duration
	// HeloFallbacks are greeting names tried after the provider, domain and
	// MX host names.
	HeloFallbacks []string
	// FromFallbacks are senders tried after the provider and target-domain
	// senders.
	FromFallbacks []string
	// Policy interprets RCPT TO replies. Default: DefaultRcptPolicy()
	Policy RcptPolicy
	// TLSConfig is used for STARTTLS. Default: certificate verification off
	TLSConfig *tls.Config
	// Proxy, when set, dials through SOCKS5.
	Proxy *ProxyOptions
	// Dial replaces the dialer. It takes precedence over Proxy.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// ConcurrencyOptions configures ValidateMany.
type ConcurrencyOptions struct {
	// BatchSize is the number of records per batch. Default: 25
	BatchSize int
	// GroupSize is the number of batches validated at once. Default: 4
	GroupSize int
	// GroupPause is the pause between groups. Default: 100ms
	GroupPause time.Duration
}

func (o ConcurrencyOptions) batchOptions() batch.Options {
	def := batch.DefaultOptions()
	if o.BatchSize > 0 {
		def.BatchSize = o.BatchSize
	}
	if o.GroupSize > 0 {
		def.GroupSize = o.GroupSize
	}
	if o.GroupPause > 0 {
		def.GroupPause = o.GroupPause
	}
	return def
}
