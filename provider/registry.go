// Package provider holds the table of mail providers whose SMTP servers need
// non-default probe behavior, and the lookup that selects one for a domain.
package provider

import (
	"time"

	"github.com/studiocloud/mailverify/types"
)

// Outlook is the built-in profile for Microsoft consumer mailboxes.
var Outlook = types.ProviderProfile{
	Key:           "outlook",
	Domains:       []string{"outlook.com", "hotmail.com", "live.com", "msn.com"},
	MXDomains:     []string{"outlook.com", "hotmail.com", "microsoft.com"},
	HeloHost:      "outlook-com.olc.protection.outlook.com",
	FromAddresses: []string{"postmaster@outlook.com", "verify@outlook.com", "check@outlook.com"},
	RequireTLS:    true,
	Timeout:       20 * time.Second,
	Port:          25,
	PreRcptDelay:  500 * time.Millisecond,

	TempFailNotFoundIsAbsent: true,
}

// Registry is an ordered, read-only list of provider profiles.
// It is safe for concurrent use.
type Registry struct {
	profiles []types.ProviderProfile
}

// New builds a registry from the given profiles. Earlier profiles win when
// more than one matches.
func New(profiles ...types.ProviderProfile) *Registry {
	cp := make([]types.ProviderProfile, len(profiles))
	copy(cp, profiles)
	return &Registry{profiles: cp}
}

// Default returns the registry with the built-in profiles.
func Default() *Registry {
	return New(Outlook)
}

// Lookup returns the first profile whose domains contain domain
// (case-insensitive) or whose MX domains appear in any of mxHosts.
func (r *Registry) Lookup(domain string, mxHosts []string) (types.ProviderProfile, bool) {
	if r == nil {
		return types.ProviderProfile{}, false
	}
	for _, p := range r.profiles {
		if p.MatchesDomain(domain) || p.MatchesMX(mxHosts) {
			return p, true
		}
	}
	return types.ProviderProfile{}, false
}

// Profiles returns a copy of the table in lookup order.
func (r *Registry) Profiles() []types.ProviderProfile {
	if r == nil {
		return nil
	}
	out := make([]types.ProviderProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}
