package check

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/studiocloud/mailverify/internal/dnscache"
	"github.com/studiocloud/mailverify/internal/metrics"
	"github.com/studiocloud/mailverify/types"
)

// DNSConfig is the resolver configuration.
type DNSConfig struct {
	// FallbackToA uses the domain itself as the mail host when it has no MX
	// records but resolves to an address (RFC 5321 section 5.1).
	FallbackToA bool
	Logger      zerolog.Logger
}

// Resolver finds the mail route of a domain. Lookups go through a shared
// cache, so concurrent resolutions of the same domain issue one query.
type Resolver struct {
	cfg   DNSConfig
	cache *dnscache.Cache
}

func NewResolver(cfg DNSConfig, cache *dnscache.Cache) *Resolver {
	return &Resolver{cfg: cfg, cache: cache}
}

// Resolve never fails: a lookup error is reported in ResolvedDomain.Error
// with an empty MX list.
func (r *Resolver) Resolve(ctx context.Context, domain string) types.ResolvedDomain {
	res := types.ResolvedDomain{Domain: domain, MXHosts: []string{}}

	records, err := r.cache.LookupMX(ctx, domain)
	hosts := mxHosts(records)

	if len(hosts) == 0 && r.cfg.FallbackToA && !isNullMX(records) {
		if addrs, aErr := r.cache.LookupHost(ctx, domain); aErr == nil && len(addrs) > 0 {
			hosts = []string{domain}
		}
	}

	if len(hosts) > 0 {
		res.MXHosts = hosts
		res.DNSResolvable = true
		metrics.DomainResolutionsTotal.WithLabelValues("routable").Inc()
	} else {
		res.Error = describeMXFailure(records, err)
		metrics.DomainResolutionsTotal.WithLabelValues("no_route").Inc()
		r.cfg.Logger.Debug().Err(err).Str("domain", domain).Str("reason", res.Error).Msg("no mail route")
	}

	res.HasSPF = r.hasSPF(ctx, domain)
	return res
}

func (r *Resolver) hasSPF(ctx context.Context, domain string) bool {
	records, err := r.cache.LookupTXT(ctx, domain)
	if err != nil {
		return false
	}
	for _, txt := range records {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(txt)), "v=spf1") {
			return true
		}
	}
	return false
}

// mxHosts orders records by preference and drops null MX entries.
func mxHosts(records []*net.MX) []string {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		if h := strings.TrimSuffix(mx.Host, "."); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// isNullMX reports an RFC 7505 "no mail accepted" answer.
func isNullMX(records []*net.MX) bool {
	return len(records) == 1 && strings.TrimSuffix(records[0].Host, ".") == ""
}

func describeMXFailure(records []*net.MX, err error) string {
	if isNullMX(records) {
		return "domain does not accept mail (null MX)"
	}
	if err == nil {
		return "no MX records found"
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return "no MX records found"
	case errors.As(err, &dnsErr) && dnsErr.IsTimeout:
		return "DNS lookup timed out"
	case errors.As(err, &dnsErr):
		return "DNS lookup failed: " + dnsErr.Err
	case errors.Is(err, context.DeadlineExceeded):
		return "DNS lookup timed out"
	default:
		return "DNS lookup failed: " + err.Error()
	}
}
