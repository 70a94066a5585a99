package check

import (
	"slices"
	"strings"
)

// RcptClass is the interpretation of a RCPT TO reply code.
type RcptClass int

const (
	RcptUnknown RcptClass = iota
	RcptAccepted
	RcptRejected
	RcptTempFail
)

func (c RcptClass) String() string {
	switch c {
	case RcptAccepted:
		return "accepted"
	case RcptRejected:
		return "rejected"
	case RcptTempFail:
		return "temp_fail"
	default:
		return "unknown"
	}
}

// RcptPolicy maps a RCPT TO reply to a mailbox verdict.
type RcptPolicy struct {
	Accept   []int
	Reject   []int
	TempFail []int
	// TempFailOptimistic counts a temporary failure as an existing mailbox
	// unless the reply text contains one of NegativePhrases.
	TempFailOptimistic bool
	NegativePhrases    []string
}

// DefaultRcptPolicy accepts 250-252, rejects 550-554 and is optimistic about
// 450-452 unless the server says the mailbox does not exist.
func DefaultRcptPolicy() RcptPolicy {
	return RcptPolicy{
		Accept:             []int{250, 251, 252},
		Reject:             []int{550, 551, 552, 553, 554},
		TempFail:           []int{450, 451, 452},
		TempFailOptimistic: true,
		NegativePhrases:    []string{"not exist", "not found"},
	}
}

func (p RcptPolicy) isZero() bool {
	return len(p.Accept) == 0 && len(p.Reject) == 0 && len(p.TempFail) == 0
}

// Classify returns the class of a reply code. Codes in none of the lists
// are RcptUnknown.
func (p RcptPolicy) Classify(code int) RcptClass {
	switch {
	case slices.Contains(p.Accept, code):
		return RcptAccepted
	case slices.Contains(p.Reject, code):
		return RcptRejected
	case slices.Contains(p.TempFail, code):
		return RcptTempFail
	default:
		return RcptUnknown
	}
}

// MailboxExists applies the policy to a reply.
func (p RcptPolicy) MailboxExists(code int, message string) bool {
	switch p.Classify(code) {
	case RcptAccepted:
		return true
	case RcptTempFail:
		return p.TempFailOptimistic && !containsAnyFold(message, p.NegativePhrases)
	default:
		return false
	}
}

func containsAnyFold(s string, phrases []string) bool {
	s = strings.ToLower(s)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(s, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
