// Package mailverify estimates whether an email address is deliverable
// without sending mail to it.
//
// Cheap checks (syntax, DNS) run first; an address that passes them is
// probed over SMTP: the MX host is greeted, a sender is announced and the
// recipient is offered with RCPT TO. The probe stops there and never sends
// DATA.
//
// Basic usage:
//
//	result, err := mailverify.New().Validate(ctx, "user@example.com")
//
// Tuned pipeline:
//
//	result, err := mailverify.New().
//	    WithDNS(mailverify.DNSOptions{Timeout: 3 * time.Second, FallbackToA: true}).
//	    WithSMTP(mailverify.SMTPOptions{Timeout: 15 * time.Second}).
//	    WithLogger(log).
//	    Validate(ctx, "user@example.com")
//
// Many addresses:
//
//	results, err := v.ValidateMany(ctx, emails)
package mailverify

import (
	"github.com/studiocloud/mailverify/check"
	"github.com/studiocloud/mailverify/types"
)

// CheckResult is a re-export from the types package so that consumers
// don't need to import the types package directly.
type CheckResult = types.CheckResult

// Checks is a re-export.
type Checks = types.Checks

// ProviderProfile is a re-export.
type ProviderProfile = types.ProviderProfile

// ProbeTarget is a re-export.
type ProbeTarget = types.ProbeTarget

// ProbeResult is a re-export.
type ProbeResult = types.ProbeResult

// ResolvedDomain is a re-export.
type ResolvedDomain = types.ResolvedDomain

// RcptPolicy is a re-export of the RCPT TO reply interpretation.
type RcptPolicy = check.RcptPolicy

// DefaultRcptPolicy is re-exported.
var DefaultRcptPolicy = check.DefaultRcptPolicy
