package check

import (
	"strings"
	"unicode"

	"github.com/studiocloud/mailverify/internal/parse"
)

// Address parts named by SyntaxError.
const (
	PartAddress = "address"
	PartLocal   = "local"
	PartDomain  = "domain"
)

// RFC 5321 size limits.
const (
	maxAddressLen = 254
	maxLocalLen   = 64
	maxLabelLen   = 63
)

// SyntaxError describes why an address failed the syntax check.
type SyntaxError struct {
	Part   string // PartAddress, PartLocal or PartDomain
	Detail string
}

func (e *SyntaxError) Error() string { return e.Detail }

func syntaxErr(part, detail string) *SyntaxError {
	return &SyntaxError{Part: part, Detail: detail}
}

// SyntaxChecker validates email syntax according to RFC 5321/5322
// with RFC 6531 (SMTPUTF8) and IDNA2008 internationalization support.
// It does no I/O.
type SyntaxChecker struct{}

func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// Check returns nil for a well-formed address and a *SyntaxError otherwise.
// A well-formed address has a non-empty local part and a domain of at least
// two labels; everything else refines those two rules.
func (c *SyntaxChecker) Check(email parse.Email) error {
	switch {
	case email.Raw == "":
		return syntaxErr(PartAddress, "empty email address")
	case !email.Valid:
		return syntaxErr(PartAddress, "address must have the form local@domain")
	case len(email.Raw) > maxAddressLen:
		return syntaxErr(PartAddress, "email address exceeds 254 characters")
	}

	if err := checkLocal(email); err != nil {
		return err
	}
	if err := checkDomain(email.DomainUnicode); err != nil {
		return err
	}
	return nil
}

// checkLocal applies the dot-atom rules. A quoted local part may hold any
// printable character, so only its length is checked; net/mail strips the
// quotes, hence the look at the raw input.
func checkLocal(email parse.Email) *SyntaxError {
	local := email.Local
	switch {
	case local == "":
		return syntaxErr(PartLocal, "local part is empty")
	case len(local) > maxLocalLen:
		return syntaxErr(PartLocal, "local part exceeds 64 characters")
	case quotedLocal(email.Raw):
		return nil
	}

	for _, r := range local {
		if detail := localRune(r); detail != "" {
			return syntaxErr(PartLocal, detail)
		}
	}
	if local[0] == '.' || local[len(local)-1] == '.' {
		return syntaxErr(PartLocal, "local part cannot start or end with a dot")
	}
	if strings.Contains(local, "..") {
		return syntaxErr(PartLocal, "local part cannot contain consecutive dots")
	}
	return nil
}

// localRune accepts RFC 5321 atext plus dots, and any non-control rune
// above ASCII (SMTPUTF8).
func localRune(r rune) string {
	switch {
	case r > unicode.MaxASCII:
		if unicode.IsControl(r) {
			return "local part contains control character"
		}
		return ""
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return ""
	case strings.ContainsRune("!#$%&'*+/=?^_`{|}~-.", r):
		return ""
	default:
		return "local part contains invalid character: " + string(r)
	}
}

func quotedLocal(raw string) bool {
	at := strings.LastIndex(raw, "@")
	if at < 2 {
		return false
	}
	return raw[0] == '"' && raw[at-1] == '"'
}

// checkDomain validates the Unicode form of the domain; IDNA conversion
// already succeeded during parsing.
func checkDomain(domain string) *SyntaxError {
	if domain == "" {
		return syntaxErr(PartDomain, "domain is empty")
	}
	// Address literals have no MX to probe.
	if strings.HasPrefix(domain, "[") {
		return syntaxErr(PartDomain, "domain literals are not supported")
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return syntaxErr(PartDomain, "domain must have at least two labels")
	}
	for _, label := range labels {
		if detail := checkLabel(label); detail != "" {
			return syntaxErr(PartDomain, detail)
		}
	}

	tld := labels[len(labels)-1]
	if strings.IndexFunc(tld, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return syntaxErr(PartDomain, "TLD cannot be all digits")
	}
	return nil
}

func checkLabel(label string) string {
	switch {
	case label == "":
		return "domain contains empty label (consecutive dots)"
	case len(label) > maxLabelLen:
		return "domain label exceeds 63 characters"
	case label[0] == '-' || label[len(label)-1] == '-':
		return "domain label cannot start or end with a hyphen"
	}
	for _, r := range label {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
			return "domain label contains invalid character: " + string(r)
		}
	}
	return ""
}
