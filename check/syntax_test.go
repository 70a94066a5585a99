package check_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiocloud/mailverify/check"
	"github.com/studiocloud/mailverify/internal/parse"
)

func TestSyntaxChecker(t *testing.T) {
	c := check.NewSyntaxChecker()

	tests := []struct {
		name   string
		email  string
		wantOK bool
	}{
		{"valid simple", "user@example.com", true},
		{"valid with plus", "user+tag@example.com", true},
		{"valid with dots", "first.last@example.com", true},
		{"valid quoted local", `"user name"@example.com`, true},
		{"valid subdomain", "user@mail.example.co.uk", true},
		{"empty", "", false},
		{"blank", "   ", false},
		{"no at sign", "userexample.com", false},
		{"no domain", "user@", false},
		{"no local", "@example.com", false},
		{"single label domain", "user@localhost", false},
		{"domain literal", "user@[192.0.2.1]", false},
		{"double dot local", "user..name@example.com", false},
		{"leading dot local", ".user@example.com", false},
		{"trailing dot local", "user.@example.com", false},
		{"consecutive dots domain", "user@exam..ple.com", false},
		{"too long total", strings.Repeat("a", 64) + "@" + strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 63) + ".com", false},
		{"too long local", strings.Repeat("a", 65) + "@example.com", false},
		{"numeric TLD", "user@example.123", false},
		{"label starts with hyphen", "user@-example.com", false},
		{"label ends with hyphen", "user@example-.com", false},

		{"valid IDN german", "user@münchen.de", true},
		{"valid IDN japanese", "user@例え.jp", true},
		{"valid IDN cyrillic", "user@почта.рф", true},
		{"valid Punycode", "user@xn--mnchen-3ya.de", true},

		{"valid EAI chinese local", "用户@example.com", true},
		{"valid EAI arabic local", "معلومات@example.com", true},
		{"valid EAI both unicode", "用户@münchen.de", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(parse.Parse(tt.email))
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSyntaxChecker_ErrorDetail(t *testing.T) {
	err := check.NewSyntaxChecker().Check(parse.Parse("user..name@example.com"))

	var syntaxErr *check.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Equal(t, "local part cannot contain consecutive dots", syntaxErr.Detail)
}

func TestSyntaxChecker_Part(t *testing.T) {
	c := check.NewSyntaxChecker()

	tests := []struct {
		email string
		part  string
	}{
		{"userexample.com", check.PartAddress},
		{"user..name@example.com", check.PartLocal},
		{"us er@example.com", check.PartLocal},
		{strings.Repeat("a", 65) + "@example.com", check.PartLocal},
		{"user@localhost", check.PartDomain},
		{"user@[192.0.2.1]", check.PartDomain},
		{"user@exa_mple.com", check.PartDomain},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			var syntaxErr *check.SyntaxError
			require.ErrorAs(t, c.Check(parse.Parse(tt.email)), &syntaxErr)
			assert.Equal(t, tt.part, syntaxErr.Part)
		})
	}
}

func TestSyntaxChecker_QuotedLocalSkipsAtext(t *testing.T) {
	c := check.NewSyntaxChecker()

	assert.NoError(t, c.Check(parse.Parse(`"a..b"@example.com`)))
	assert.Error(t, c.Check(parse.Parse(`"`+strings.Repeat("a", 70)+`"@example.com`)))
}
