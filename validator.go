package mailverify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/check"
	"github.com/studiocloud/mailverify/internal/dnscache"
	"github.com/studiocloud/mailverify/internal/dnsquery"
	"github.com/studiocloud/mailverify/internal/metrics"
	"github.com/studiocloud/mailverify/internal/parse"
	"github.com/studiocloud/mailverify/internal/smtpwire"
	"github.com/studiocloud/mailverify/provider"
	"github.com/studiocloud/mailverify/types"
)

// Prober runs one SMTP probe. *check.SMTPProber implements it.
type Prober interface {
	Probe(ctx context.Context, target types.ProbeTarget) types.ProbeResult
}

// DomainResolver finds a domain's mail route. *check.Resolver implements it.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string) types.ResolvedDomain
}

// Validator is the main fluent builder struct.
// Instantiate with the New() function.
// A Validator is safe for concurrent use once configured.
type Validator struct {
	syntax    *check.SyntaxChecker
	resolver  DomainResolver
	prober    Prober
	providers *provider.Registry
	log       zerolog.Logger
	err       error // configuration error, returned on Validate()

	dnsOpts        DNSOptions
	smtpOpts       SMTPOptions
	customResolver bool
	customProber   bool
}

// New creates a Validator running the full pipeline (syntax, DNS, SMTP)
// with default options and the built-in provider profiles.
func New() *Validator {
	v := &Validator{
		syntax:    check.NewSyntaxChecker(),
		providers: provider.Default(),
		log:       zerolog.Nop(),
		dnsOpts:   defaultDNSOptions(),
	}
	v.buildResolver()
	v.buildProber()
	return v
}

// WithDNS overrides the DNS options. Unset fields keep their defaults.
func (v *Validator) WithDNS(opts DNSOptions) *Validator {
	if opts.Timeout < 0 || opts.CacheTTL < 0 {
		v.err = ErrInvalidDNSOptions
		return v
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultDNSOptions().Timeout
	}
	v.dnsOpts = opts
	v.buildResolver()
	return v
}

// WithSMTP overrides the SMTP probe options. Unset fields keep their
// defaults.
func (v *Validator) WithSMTP(opts SMTPOptions) *Validator {
	if opts.Port < 0 || opts.Port > 65535 || opts.Timeout < 0 {
		v.err = ErrInvalidSMTPOptions
		return v
	}
	if opts.Proxy != nil && opts.Proxy.Address == "" {
		v.err = fmt.Errorf("%w: proxy address is required", ErrInvalidSMTPOptions)
		return v
	}
	v.smtpOpts = opts
	v.buildProber()
	return v
}

// WithProviders replaces the provider profile table.
func (v *Validator) WithProviders(r *provider.Registry) *Validator {
	v.providers = r
	return v
}

// WithResolver replaces domain resolution, e.g. with a stub in tests.
func (v *Validator) WithResolver(r DomainResolver) *Validator {
	v.resolver = r
	v.customResolver = true
	return v
}

// WithProber replaces the SMTP probe.
func (v *Validator) WithProber(p Prober) *Validator {
	v.prober = p
	v.customProber = true
	return v
}

// WithLogger sets the logger of the built-in resolver and prober.
func (v *Validator) WithLogger(log zerolog.Logger) *Validator {
	v.log = log
	v.buildResolver()
	v.buildProber()
	return v
}

// Err returns the configuration error Validate would return, if any.
func (v *Validator) Err() error {
	return v.err
}

func (v *Validator) buildResolver() {
	if v.customResolver {
		return
	}
	o := v.dnsOpts
	var cache *dnscache.Cache
	if o.Nameserver != "" {
		cache = dnscache.NewWithResolver(o.Timeout, o.CacheTTL, dnsquery.New(o.Nameserver, o.Timeout))
	} else {
		cache = dnscache.New(o.Timeout, o.CacheTTL)
	}
	if o.Redis != nil {
		cache = cache.WithStore(dnscache.NewRedisStore(o.Redis))
	}
	v.resolver = check.NewResolver(check.DNSConfig{FallbackToA: o.FallbackToA, Logger: v.log}, cache)
}

func (v *Validator) buildProber() {
	if v.customProber {
		return
	}
	o := v.smtpOpts
	dial := smtpwire.DialFunc(o.Dial)
	if dial == nil && o.Proxy != nil {
		var err error
		dial, err = smtpwire.SOCKS5Dialer(smtpwire.ProxyConfig{
			Address:  o.Proxy.Address,
			Username: o.Proxy.Username,
			Password: o.Proxy.Password,
		})
		if err != nil {
			v.err = fmt.Errorf("%w: %v", ErrInvalidSMTPOptions, err)
			return
		}
	}
	v.prober = check.NewSMTPProber(check.SMTPConfig{
		Port:          o.Port,
		Timeout:       o.Timeout,
		HeloFallbacks: o.HeloFallbacks,
		FromFallbacks: o.FromFallbacks,
		Policy:        o.Policy,
		TLSConfig:     o.TLSConfig,
		Dial:          dial,
		Logger:        v.log,
	})
}

// Validate returns the verdict for one address. The error is non-nil only
// for a configuration error; every verdict, negative or inconclusive, is a
// CheckResult. At most one SMTP connection is opened.
func (v *Validator) Validate(ctx context.Context, email string) (CheckResult, error) {
	if v.err != nil {
		return CheckResult{}, v.err
	}

	res := v.validate(ctx, email)
	if res.Valid {
		metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	} else {
		metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
	}
	return res, nil
}

func (v *Validator) validate(ctx context.Context, email string) CheckResult {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.Invalid("Email is required")
	}

	parsed := parse.Parse(email)
	if err := v.syntax.Check(parsed); err != nil {
		return types.Invalid("Invalid email syntax: " + err.Error())
	}

	route := v.resolver.Resolve(ctx, parsed.Domain)
	checks := types.Checks{SPF: route.HasSPF}
	if !route.DNSResolvable || route.PrimaryMX() == "" {
		return CheckResult{
			Reason: fmt.Sprintf("Domain has no mail route (%s)", route.Error),
			Checks: checks,
		}
	}
	checks.MX, checks.DNS = true, true

	target := types.ProbeTarget{
		Host:   route.PrimaryMX(),
		Email:  parsed.Address(),
		Domain: parsed.Domain,
	}
	if profile, ok := v.providers.Lookup(parsed.Domain, route.MXHosts); ok {
		target.Profile = &profile
	}

	probe := v.prober.Probe(ctx, target)
	if !probe.Success {
		reason := probe.Error
		if reason == "" {
			reason = "SMTP verification failed"
		}
		return CheckResult{Reason: reason, Checks: checks}
	}

	checks.SMTP = true
	checks.Mailbox = probe.MailboxExists
	reason := probe.Message
	if reason == "" {
		if probe.MailboxExists {
			reason = "Mailbox exists"
		} else {
			reason = "Mailbox does not exist"
		}
	}
	return CheckResult{Valid: probe.MailboxExists, Reason: reason, Checks: checks}
}

// ValidateMany validates emails in paced, bounded-parallel groups and
// returns the verdicts in input order.
func (v *Validator) ValidateMany(ctx context.Context, emails []string, opts ...ConcurrencyOptions) ([]CheckResult, error) {
	if v.err != nil {
		return nil, v.err
	}
	var o ConcurrencyOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	bo := o.batchOptions()
	bo.Logger = v.log

	rows := make([]map[string]string, len(emails))
	for i, e := range emails {
		rows[i] = map[string]string{"email": e}
	}
	records, err := batch.NewRunner(v, bo).Collect(ctx, rows, []string{"email"})
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(records))
	for i, rec := range records {
		results[i] = rec.Result
	}
	return results, nil
}
