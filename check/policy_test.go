package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studiocloud/mailverify/check"
)

func TestRcptPolicy_Default(t *testing.T) {
	p := check.DefaultRcptPolicy()

	tests := []struct {
		code   int
		msg    string
		class  check.RcptClass
		exists bool
	}{
		{250, "2.1.5 OK", check.RcptAccepted, true},
		{251, "User not local; will forward", check.RcptAccepted, true},
		{252, "Cannot verify user", check.RcptAccepted, true},
		{550, "5.1.1 User unknown", check.RcptRejected, false},
		{553, "Mailbox name not allowed", check.RcptRejected, false},
		{554, "Transaction failed", check.RcptRejected, false},
		{450, "Mailbox busy", check.RcptTempFail, true},
		{451, "Greylisted, try again later", check.RcptTempFail, true},
		{452, "User does not exist", check.RcptTempFail, false},
		{450, "Recipient NOT FOUND", check.RcptTempFail, false},
		{503, "Bad sequence of commands", check.RcptUnknown, false},
		{421, "Service not available", check.RcptUnknown, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.class, p.Classify(tt.code), "%d %s", tt.code, tt.msg)
		assert.Equal(t, tt.exists, p.MailboxExists(tt.code, tt.msg), "%d %s", tt.code, tt.msg)
	}
}

func TestRcptPolicy_Pessimistic(t *testing.T) {
	p := check.DefaultRcptPolicy()
	p.TempFailOptimistic = false

	assert.False(t, p.MailboxExists(451, "Greylisted"))
	assert.True(t, p.MailboxExists(250, "OK"))
}

func TestRcptClass_String(t *testing.T) {
	assert.Equal(t, "accepted", check.RcptAccepted.String())
	assert.Equal(t, "rejected", check.RcptRejected.String())
	assert.Equal(t, "temp_fail", check.RcptTempFail.String())
	assert.Equal(t, "unknown", check.RcptUnknown.String())
}
