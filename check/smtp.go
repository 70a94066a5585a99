package check

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/studiocloud/mailverify/internal/metrics"
	"github.com/studiocloud/mailverify/internal/smtpwire"
	"github.com/studiocloud/mailverify/types"
)

// DefaultProbeTimeout bounds a probe whose provider profile sets no timeout.
const DefaultProbeTimeout = 10 * time.Second

// Probe failure reasons reported in ProbeResult.Error.
const (
	ReasonInvalidGreeting  = "Invalid server greeting"
	ReasonHeloFailed       = "HELO/EHLO failed"
	ReasonTLSNotSupported  = "TLS required but not supported"
	ReasonTLSFailed        = "TLS connection failed"
	ReasonMailFromFailed   = "MAIL FROM command failed"
	ReasonTimeout          = "Connection timeout"
	ReasonCancelled        = "Probe cancelled"
	ReasonInvalidRecipient = "Invalid recipient address"
)

var (
	// DefaultHeloFallbacks are tried after the provider, domain and MX host names.
	DefaultHeloFallbacks = []string{"verify.local", "validator.local", "example.com"}
	// DefaultFromFallbacks are tried after the provider and target-domain senders.
	DefaultFromFallbacks = []string{"verify@example.com", "check@validator.local"}
)

var errTLSRefused = errors.New("STARTTLS refused")

// SMTPConfig is the prober configuration. Zero values select defaults.
type SMTPConfig struct {
	Port          int
	Timeout       time.Duration
	HeloFallbacks []string
	FromFallbacks []string
	Policy        RcptPolicy
	// TLSConfig is used for STARTTLS. The default skips certificate
	// verification: MX certificates rarely match the host name dialed.
	TLSConfig *tls.Config
	Dial      smtpwire.DialFunc
	Logger    zerolog.Logger
}

// SMTPProber asks an MX host whether it would accept mail for an address,
// stopping after RCPT TO. Each probe uses its own connection.
type SMTPProber struct {
	cfg SMTPConfig
}

func NewSMTPProber(cfg SMTPConfig) *SMTPProber {
	if cfg.Port <= 0 {
		cfg.Port = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	if cfg.HeloFallbacks == nil {
		cfg.HeloFallbacks = DefaultHeloFallbacks
	}
	if cfg.FromFallbacks == nil {
		cfg.FromFallbacks = DefaultFromFallbacks
	}
	if cfg.Policy.isZero() {
		cfg.Policy = DefaultRcptPolicy()
	}
	if cfg.TLSConfig == nil {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // see SMTPConfig.TLSConfig
	}
	if cfg.Dial == nil {
		cfg.Dial = smtpwire.DirectDialer()
	}
	return &SMTPProber{cfg: cfg}
}

// Probe runs one probe against target.Host. It never returns an error:
// Success=false means the result is inconclusive and Error says why.
func (p *SMTPProber) Probe(ctx context.Context, target types.ProbeTarget) types.ProbeResult {
	start := time.Now()
	res := p.probe(ctx, target)

	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	switch {
	case !res.Success:
		metrics.ProbesTotal.WithLabelValues("inconclusive").Inc()
	case res.MailboxExists:
		metrics.ProbesTotal.WithLabelValues("exists").Inc()
	default:
		metrics.ProbesTotal.WithLabelValues("absent").Inc()
	}
	return res
}

func (p *SMTPProber) probe(ctx context.Context, target types.ProbeTarget) types.ProbeResult {
	profile := target.Profile
	timeout, port := p.cfg.Timeout, p.cfg.Port
	requireTLS := false
	if profile != nil {
		if profile.Timeout > 0 {
			timeout = profile.Timeout
		}
		if profile.Port > 0 {
			port = profile.Port
		}
		requireTLS = profile.RequireTLS
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := p.cfg.Logger.With().Str("mx", target.Host).Str("email", target.Email).Logger()
	supportsTLS := false
	fail := func(stage, reason string, err error) types.ProbeResult {
		var netErr net.Error
		if ctxErr := ctx.Err(); ctxErr != nil {
			reason = contextReason(ctxErr)
		} else if errors.As(err, &netErr) && netErr.Timeout() {
			reason = ReasonTimeout
		}
		metrics.ProbeFailuresTotal.WithLabelValues(stage).Inc()
		log.Debug().Err(err).Str("stage", stage).Msg(reason)
		return types.ProbeResult{SupportsTLS: supportsTLS, Error: reason}
	}

	if target.Email == "" || strings.ContainsAny(target.Email, "\r\n") {
		return fail("rcpt", ReasonInvalidRecipient, nil)
	}

	// Connecting
	address := net.JoinHostPort(target.Host, strconv.Itoa(port))
	sess, err := smtpwire.Dial(ctx, p.cfg.Dial, address)
	if err != nil {
		return fail("connect", err.Error(), err)
	}
	defer func() { _ = sess.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = sess.Abort() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = sess.SetDeadline(deadline)
	}

	// Greeted
	greeting, err := sess.ReadReply()
	if err != nil {
		return fail("greeting", ReasonInvalidGreeting, err)
	}
	if greeting.Code != 220 {
		return fail("greeting", ReasonInvalidGreeting, fmt.Errorf("greeting: %s", greeting))
	}

	helos := heloCandidates(profile, target, p.cfg.HeloFallbacks)
	ehlo, ok, err := greet(sess, helos)
	if !ok {
		return fail("helo", ReasonHeloFailed, err)
	}
	log.Debug().Int("code", ehlo.Code).Msg("greeted")

	// TLS upgrade
	if requireTLS || ehlo.HasExtension("STARTTLS") {
		err := p.startTLS(ctx, sess, helos[0], log)
		switch {
		case err == nil:
			supportsTLS = true
		case requireTLS && errors.Is(err, errTLSRefused):
			return fail("tls", ReasonTLSNotSupported, err)
		case requireTLS:
			return fail("tls", ReasonTLSFailed, err)
		default:
			log.Debug().Err(err).Msg("optional STARTTLS failed, continuing without TLS")
		}
	}

	// SenderAccepted
	froms := fromCandidates(profile, target.Domain, p.cfg.FromFallbacks)
	if ok, err := mailFrom(sess, froms); !ok {
		return fail("mail_from", ReasonMailFromFailed, err)
	}

	if profile != nil && profile.PreRcptDelay > 0 {
		t := time.NewTimer(profile.PreRcptDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return fail("rcpt", ReasonTimeout, ctx.Err())
		}
	}

	// Probed
	reply, err := sess.Cmd("RCPT TO:<%s>", target.Email)
	if err != nil {
		return fail("rcpt", "RCPT TO failed: "+err.Error(), err)
	}

	class := p.cfg.Policy.Classify(reply.Code)
	metrics.RcptRepliesTotal.WithLabelValues(class.String()).Inc()

	message := reply.Message()
	exists := p.cfg.Policy.MailboxExists(reply.Code, message)
	if profile != nil && profile.TempFailNotFoundIsAbsent && class == RcptTempFail &&
		containsAnyFold(message, []string{"not found"}) {
		exists = false
	}
	log.Debug().Int("code", reply.Code).Str("class", class.String()).Bool("exists", exists).Msg("rcpt")

	return types.ProbeResult{
		Success:       true,
		MailboxExists: exists,
		SupportsTLS:   supportsTLS,
		Code:          reply.Code,
		Message:       message,
	}
}

// greet tries EHLO then HELO for each name until one is answered 250. A read
// error, including a malformed reply, ends the attempt: the rest of that
// reply is still unread and would be taken as the answer to the next command.
func greet(sess *smtpwire.Session, names []string) (smtpwire.Reply, bool, error) {
	for _, name := range names {
		for _, verb := range []string{"EHLO", "HELO"} {
			reply, err := sess.Cmd("%s %s", verb, name)
			if err != nil {
				return smtpwire.Reply{}, false, err
			}
			if reply.Code == 250 {
				return reply, true, nil
			}
		}
	}
	return smtpwire.Reply{}, false, nil
}

func (p *SMTPProber) startTLS(ctx context.Context, sess *smtpwire.Session, helo string, log zerolog.Logger) error {
	reply, err := sess.Cmd("STARTTLS")
	if err != nil {
		return err
	}
	if reply.Code != 220 {
		return fmt.Errorf("%w: %s", errTLSRefused, reply)
	}
	if err := sess.StartTLS(ctx, p.cfg.TLSConfig); err != nil {
		return err
	}

	// The session state is reset by the upgrade, so greet again.
	reply, err = sess.Cmd("EHLO %s", helo)
	if err != nil {
		return fmt.Errorf("EHLO after STARTTLS: %w", err)
	}
	if reply.Code != 250 {
		log.Debug().Int("code", reply.Code).Msg("EHLO after STARTTLS not accepted")
	}
	return nil
}

// mailFrom offers senders in order until one is accepted. Like greet, it
// stops at the first read error.
func mailFrom(sess *smtpwire.Session, senders []string) (bool, error) {
	for _, from := range senders {
		reply, err := sess.Cmd("MAIL FROM:<%s>", from)
		if err != nil {
			return false, err
		}
		if reply.Code == 250 {
			return true, nil
		}
	}
	return false, nil
}

func heloCandidates(profile *types.ProviderProfile, target types.ProbeTarget, fallbacks []string) []string {
	var names []string
	if profile != nil {
		names = append(names, profile.HeloHost)
	}
	names = append(names, target.Domain, target.Host)
	return dedupe(append(names, fallbacks...))
}

func fromCandidates(profile *types.ProviderProfile, domain string, fallbacks []string) []string {
	var senders []string
	if profile != nil {
		senders = append(senders, profile.FromAddresses...)
	}
	if domain != "" {
		senders = append(senders, "verify@"+domain, "postmaster@"+domain, "check@"+domain)
	}
	return dedupe(append(senders, fallbacks...))
}

// dedupe drops empty entries, entries with line breaks and case-insensitive
// repeats, keeping the first occurrence.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] || strings.ContainsAny(s, "\r\n") {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func contextReason(err error) string {
	if errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}
	return ReasonTimeout
}
