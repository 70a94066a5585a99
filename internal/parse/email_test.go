package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studiocloud/mailverify/internal/parse"
)

func TestParse_ASCII(t *testing.T) {
	e := parse.Parse("user@example.com")
	assert.True(t, e.Valid)
	assert.Equal(t, "user", e.Local)
	assert.Equal(t, "example.com", e.Domain)
	assert.Equal(t, "example.com", e.DomainUnicode)
	assert.Equal(t, "user@example.com", e.Address())
}

func TestParse_Whitespace(t *testing.T) {
	e := parse.Parse("  user@example.com  ")
	assert.True(t, e.Valid)
	assert.Equal(t, "user@example.com", e.Raw)
}

func TestParse_DisplayName(t *testing.T) {
	e := parse.Parse("Jane Doe <jane@example.com>")
	assert.True(t, e.Valid)
	assert.Equal(t, "jane", e.Local)
	assert.Equal(t, "example.com", e.Domain)
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "noatsign", "@nodomain", "nolocal@"} {
		e := parse.Parse(raw)
		assert.False(t, e.Valid, "expected invalid for %q", raw)
	}
}

func TestParse_InvalidAddressKeepsRaw(t *testing.T) {
	e := parse.Parse("noatsign")
	assert.Equal(t, "noatsign", e.Address())
}

func TestParse_IDN(t *testing.T) {
	tests := []struct {
		raw, ascii, unicode string
	}{
		{"user@münchen.de", "xn--mnchen-3ya.de", "münchen.de"},
		{"user@xn--mnchen-3ya.de", "xn--mnchen-3ya.de", "münchen.de"},
		{"user@例え.jp", "xn--r8jz45g.jp", "例え.jp"},
		{"user@почта.рф", "xn--80a1acny.xn--p1ai", "почта.рф"},
	}
	for _, tt := range tests {
		e := parse.Parse(tt.raw)
		assert.True(t, e.Valid, tt.raw)
		assert.Equal(t, tt.ascii, e.Domain, tt.raw)
		assert.Equal(t, tt.unicode, e.DomainUnicode, tt.raw)
	}
}

func TestParse_UnicodeLocal(t *testing.T) {
	e := parse.Parse("用户@münchen.de")
	assert.True(t, e.Valid)
	assert.Equal(t, "用户", e.Local)
	assert.Equal(t, "用户@xn--mnchen-3ya.de", e.Address())
}

func TestParse_DomainLowercased(t *testing.T) {
	e := parse.Parse("User@EXAMPLE.COM")
	assert.True(t, e.Valid)
	assert.Equal(t, "User", e.Local)
	assert.Equal(t, "example.com", e.Domain)
}

func TestParse_QuotedLocalIsRequoted(t *testing.T) {
	e := parse.Parse(`"user name"@example.com`)
	assert.True(t, e.Valid)
	assert.Equal(t, "user name", e.Local)
	assert.Equal(t, `"user name"@example.com`, e.Address())
}
