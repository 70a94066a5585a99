// Package parse splits an email address into its local part and domain,
// normalizing the domain to both its ASCII (punycode) and Unicode forms.
package parse

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// Email is a parsed address. The zero value is an invalid, empty address.
type Email struct {
	Raw           string // trimmed input
	Local         string
	Domain        string // lowercase ASCII/punycode, used for DNS and SMTP
	DomainUnicode string // Unicode form, used in messages
	Valid         bool   // false if Raw has no usable local@domain split
}

// Address returns local@domain with the ASCII domain, the form sent in
// RCPT TO. A local part that is not a dot-atom is quoted again. It returns
// Raw for an invalid address.
func (e Email) Address() string {
	if !e.Valid {
		return e.Raw
	}
	return quoteLocal(e.Local) + "@" + e.Domain
}

func quoteLocal(local string) string {
	if isDotAtom(local) {
		return local
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range local {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// isDotAtom reports whether local needs no quoting. Non-ASCII runes are
// atext under RFC 6531.
func isDotAtom(local string) bool {
	if local == "" || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	for _, r := range local {
		switch {
		case r > 127, r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-/=?^_`{|}~.", r):
		default:
			return false
		}
	}
	return true
}

// Parse parses raw, trimming surrounding whitespace. Display-name forms
// ("Name <user@host>") are accepted; Unicode local parts (RFC 6531) and
// internationalized domains (IDNA2008) are supported.
func Parse(raw string) Email {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Email{}
	}

	local, domain, ok := split(raw)
	if !ok {
		return Email{Raw: raw}
	}

	ascii, unicode, ok := normalizeDomain(domain)
	if !ok {
		return Email{Raw: raw}
	}

	return Email{
		Raw:           raw,
		Local:         local,
		Domain:        ascii,
		DomainUnicode: unicode,
		Valid:         true,
	}
}

// split tries net/mail first and falls back to the last '@' for input that
// net/mail rejects, such as non-ASCII local parts.
func split(raw string) (local, domain string, ok bool) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		addr, err = mail.ParseAddress("<" + raw + ">")
	}
	if err == nil {
		local, domain, ok = strings.Cut(addr.Address, "@")
		return local, domain, ok && local != "" && domain != ""
	}

	at := strings.LastIndex(raw, "@")
	if at < 1 || at >= len(raw)-1 {
		return "", "", false
	}
	return raw[:at], raw[at+1:], true
}

// normalizeDomain returns the lowercase ASCII and Unicode forms of domain.
// ok is false when a non-ASCII domain fails IDNA2008 conversion.
func normalizeDomain(domain string) (ascii, unicode string, ok bool) {
	domain = strings.ToLower(domain)

	if !isASCII(domain) {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return "", "", false
		}
		return a, domain, true
	}

	// xn-- labels decode for display; anything undecodable is shown as is.
	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
