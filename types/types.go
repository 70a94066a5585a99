// Package types contains the shared types for mailverify.
// This package does not import anything from other mailverify packages
// to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Checks records which stages of a validation passed.
type Checks struct {
	MX      bool `json:"mx"`
	DNS     bool `json:"dns"`
	SPF     bool `json:"spf"`
	Mailbox bool `json:"mailbox"`
	SMTP    bool `json:"smtp"`
}

// CheckResult is the verdict for one address. The shape is identical on
// every path, including failures.
type CheckResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
	Checks Checks `json:"checks"`
}

// Invalid returns a negative verdict with all checks false.
func Invalid(reason string) CheckResult {
	return CheckResult{Valid: false, Reason: reason}
}

// ResolvedDomain is the outcome of resolving a domain's mail route.
type ResolvedDomain struct {
	Domain        string   `json:"domain"`
	MXHosts       []string `json:"mxHosts"` // ordered by preference, trailing dot trimmed
	HasSPF        bool     `json:"hasSpf"`
	DNSResolvable bool     `json:"dnsResolvable"`
	Error         string   `json:"error,omitempty"`
}

// PrimaryMX returns the most preferred MX host, or "" if there is none.
func (r ResolvedDomain) PrimaryMX() string {
	if len(r.MXHosts) == 0 {
		return ""
	}
	return r.MXHosts[0]
}

// ProviderProfile overrides probe behavior for a specific mail provider.
type ProviderProfile struct {
	Key           string        `json:"key" mapstructure:"key"`
	Domains       []string      `json:"domains" mapstructure:"domains"`
	MXDomains     []string      `json:"mxDomains" mapstructure:"mx_domains"`
	HeloHost      string        `json:"heloHost" mapstructure:"helo_host"`
	FromAddresses []string      `json:"fromAddresses" mapstructure:"from_addresses"`
	RequireTLS    bool          `json:"requireTls" mapstructure:"require_tls"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	Port          int           `json:"port" mapstructure:"port"`
	// PreRcptDelay is slept between MAIL FROM and RCPT TO.
	PreRcptDelay time.Duration `json:"preRcptDelay" mapstructure:"pre_rcpt_delay"`
	// TempFailNotFoundIsAbsent treats a 45x reply mentioning "not found"
	// as a definitive negative instead of an inconclusive one.
	TempFailNotFoundIsAbsent bool `json:"tempFailNotFoundIsAbsent" mapstructure:"temp_fail_not_found_is_absent"`
}

// MatchesDomain reports whether domain is one of the profile's domains.
func (p ProviderProfile) MatchesDomain(domain string) bool {
	for _, d := range p.Domains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// MatchesMX reports whether any MX host contains one of the profile's MX domains.
func (p ProviderProfile) MatchesMX(mxHosts []string) bool {
	for _, host := range mxHosts {
		host = strings.ToLower(host)
		for _, md := range p.MXDomains {
			if md != "" && strings.Contains(host, strings.ToLower(md)) {
				return true
			}
		}
	}
	return false
}

// ProbeTarget is the input of one SMTP probe.
type ProbeTarget struct {
	Host    string
	Email   string
	Domain  string
	Profile *ProviderProfile
}

// ProbeResult is the outcome of one SMTP probe. Success=false means the
// probe was inconclusive and MailboxExists carries no information.
type ProbeResult struct {
	Success       bool   `json:"success"`
	MailboxExists bool   `json:"mailboxExists"`
	SupportsTLS   bool   `json:"supportsTls"`
	Code          int    `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}
