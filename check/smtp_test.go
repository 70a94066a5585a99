package check_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiocloud/mailverify/check"
	"github.com/studiocloud/mailverify/internal/mxtest"
	"github.com/studiocloud/mailverify/provider"
	"github.com/studiocloud/mailverify/types"
)

func probeMX(t *testing.T, srv *mxtest.Server, cfg check.SMTPConfig, email string, profile *types.ProviderProfile) types.ProbeResult {
	t.Helper()
	cfg.Port = srv.Port
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	return check.NewSMTPProber(cfg).Probe(context.Background(), types.ProbeTarget{
		Host:    srv.Host,
		Email:   email,
		Domain:  domain,
		Profile: profile,
	})
}

func TestSMTPProber_MailboxExists(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"user@example.com"}})

	res := probeMX(t, srv, check.SMTPConfig{}, "user@example.com", nil)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists)
	assert.False(t, res.SupportsTLS)
	assert.Equal(t, 250, res.Code)
	assert.Empty(t, res.Error)

	assert.Equal(t, []string{"example.com"}, srv.Helos())
	assert.Equal(t, []string{"verify@example.com"}, srv.Senders())
	assert.Equal(t, []string{"user@example.com"}, srv.Recipients())
	assert.Zero(t, srv.DataCalls())
}

func TestSMTPProber_MailboxAbsent(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"user@example.com"}})

	res := probeMX(t, srv, check.SMTPConfig{}, "nobody@example.com", nil)
	assert.True(t, res.Success)
	assert.False(t, res.MailboxExists)
	assert.Equal(t, 550, res.Code)
	assert.Contains(t, res.Message, "mailbox unavailable")
}

func TestSMTPProber_Idempotent(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"user@example.com"}})

	for _, tt := range []struct {
		email  string
		exists bool
	}{
		{"user@example.com", true},
		{"nobody@example.com", false},
	} {
		first := probeMX(t, srv, check.SMTPConfig{}, tt.email, nil)
		second := probeMX(t, srv, check.SMTPConfig{}, tt.email, nil)

		assert.True(t, first.Success, tt.email)
		assert.True(t, second.Success, tt.email)
		assert.Equal(t, tt.exists, first.MailboxExists, tt.email)
		assert.Equal(t, first.MailboxExists, second.MailboxExists, tt.email)
	}
	assert.Equal(t, []string{"user@example.com", "user@example.com", "nobody@example.com", "nobody@example.com"}, srv.Recipients())
}

func TestSMTPProber_OptionalTLS(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"user@example.com"}, TLS: true})

	res := probeMX(t, srv, check.SMTPConfig{}, "user@example.com", nil)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists)
	assert.True(t, res.SupportsTLS)
}

func TestSMTPProber_RequiredTLSNotOffered(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"user@example.com"}})
	profile := &types.ProviderProfile{Key: "strict", RequireTLS: true}

	res := probeMX(t, srv, check.SMTPConfig{}, "user@example.com", profile)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonTLSNotSupported, res.Error)
	assert.Empty(t, srv.Recipients())
}

func TestSMTPProber_OutlookProfile(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{Mailboxes: []string{"someone@outlook.com"}, TLS: true})
	profile := provider.Outlook
	profile.Port = srv.Port
	profile.PreRcptDelay = 10 * time.Millisecond

	res := probeMX(t, srv, check.SMTPConfig{}, "someone@outlook.com", &profile)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists)
	assert.True(t, res.SupportsTLS)

	helos := srv.Helos()
	require.NotEmpty(t, helos)
	assert.Equal(t, provider.Outlook.HeloHost, helos[0])
	assert.Equal(t, []string{"postmaster@outlook.com"}, srv.Senders())
}

func TestSMTPProber_SenderFallbacks(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{
		Mailboxes:     []string{"user@example.com"},
		RejectSenders: []string{"verify@example.com", "postmaster@example.com"},
	})

	res := probeMX(t, srv, check.SMTPConfig{}, "user@example.com", nil)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"verify@example.com", "postmaster@example.com", "check@example.com"}, srv.Senders())
}

func TestSMTPProber_AllSendersRejected(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{
		Mailboxes:     []string{"user@example.com"},
		RejectSenders: []string{"verify@example.com", "postmaster@example.com", "check@example.com", "bounce@test.local"},
	})

	res := probeMX(t, srv, check.SMTPConfig{FromFallbacks: []string{"bounce@test.local"}}, "user@example.com", nil)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonMailFromFailed, res.Error)
	assert.Len(t, srv.Senders(), 4)
	assert.Empty(t, srv.Recipients())
}

func TestSMTPProber_TempFailNotFound(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{RcptError: &gosmtp.SMTPError{
		Code:         450,
		EnhancedCode: gosmtp.EnhancedCode{4, 1, 1},
		Message:      "Recipient not found",
	}})
	policy := check.RcptPolicy{
		Accept:             []int{250},
		Reject:             []int{550},
		TempFail:           []int{450},
		TempFailOptimistic: true,
	}

	res := probeMX(t, srv, check.SMTPConfig{Policy: policy}, "user@example.com", nil)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists, "optimistic policy without provider override")

	profile := &types.ProviderProfile{Key: "picky", TempFailNotFoundIsAbsent: true}
	res = probeMX(t, srv, check.SMTPConfig{Policy: policy}, "user@example.com", profile)
	assert.True(t, res.Success)
	assert.False(t, res.MailboxExists)
	assert.Equal(t, 450, res.Code)
}

func TestSMTPProber_Greylisted(t *testing.T) {
	srv := mxtest.Start(t, mxtest.Options{RcptError: &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 7, 1},
		Message:      "Greylisted, try again later",
	}})

	res := probeMX(t, srv, check.SMTPConfig{}, "user@example.com", nil)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists)
	assert.Equal(t, 451, res.Code)
}

func TestSMTPProber_ConnectError(t *testing.T) {
	p := check.NewSMTPProber(check.SMTPConfig{
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})

	res := p.Probe(context.Background(), types.ProbeTarget{Host: "mx.example.com", Email: "a@example.com", Domain: "example.com"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
}

func TestSMTPProber_InvalidRecipient(t *testing.T) {
	dialed := false
	p := check.NewSMTPProber(check.SMTPConfig{
		Dial: func(context.Context, string, string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("unexpected dial")
		},
	})

	res := p.Probe(context.Background(), types.ProbeTarget{Host: "mx.example.com", Email: "a@example.com\r\nDATA", Domain: "example.com"})
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonInvalidRecipient, res.Error)
	assert.False(t, dialed)
}

// pipeMX is a scripted SMTP peer over net.Pipe for replies a real server
// would not send.
type pipeMX struct {
	greeting string
	// respond returns the reply for a command. An empty reply stays silent;
	// hangup closes the connection after writing it.
	respond func(cmd string) (reply string, hangup bool)

	mu   sync.Mutex
	cmds []string
}

func (m *pipeMX) dial(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go m.serve(server)
	return client, nil
}

func (m *pipeMX) serve(conn net.Conn) {
	defer conn.Close()
	if m.greeting != "" {
		if _, err := io.WriteString(conn, m.greeting+"\r\n"); err != nil {
			return
		}
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		m.mu.Lock()
		m.cmds = append(m.cmds, cmd)
		m.mu.Unlock()
		if cmd == "QUIT" {
			return
		}

		reply, hangup := m.respond(cmd)
		if reply != "" {
			if _, err := io.WriteString(conn, reply+"\r\n"); err != nil {
				return
			}
		}
		if hangup {
			return
		}
	}
}

func (m *pipeMX) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cmds...)
}

func (m *pipeMX) prober(timeout time.Duration) *check.SMTPProber {
	return check.NewSMTPProber(check.SMTPConfig{Timeout: timeout, Dial: m.dial})
}

var pipeTarget = types.ProbeTarget{Host: "mx.example.com", Email: "user@example.com", Domain: "example.com"}

func TestSMTPProber_HeloFallback(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond: func(cmd string) (string, bool) {
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				return "502 5.5.1 EHLO not implemented", false
			case strings.HasPrefix(cmd, "HELO"):
				return "250 mx.example.com", false
			default:
				return "250 OK", false
			}
		},
	}

	res := m.prober(time.Second).Probe(context.Background(), pipeTarget)
	assert.True(t, res.Success)
	assert.True(t, res.MailboxExists)

	require.Eventually(t, func() bool { return len(m.commands()) == 5 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"EHLO example.com",
		"HELO example.com",
		"MAIL FROM:<verify@example.com>",
		"RCPT TO:<user@example.com>",
		"QUIT",
	}, m.commands())
}

func TestSMTPProber_HeloRejected(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond: func(string) (string, bool) {
			return "550 go away", false
		},
	}

	res := m.prober(time.Second).Probe(context.Background(), pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonHeloFailed, res.Error)
}

func TestSMTPProber_MalformedEhloReply(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond: func(cmd string) (string, bool) {
			if strings.HasPrefix(cmd, "EHLO") {
				return "250-mx.example.com\r\nXYZ\r\n250 OK", false
			}
			return "250 OK", false
		},
	}

	res := m.prober(time.Second).Probe(context.Background(), pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonHeloFailed, res.Error)

	// The stray "250 OK" must not be taken as the answer to a HELO.
	require.Eventually(t, func() bool { return len(m.commands()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"EHLO example.com", "QUIT"}, m.commands())
}

func TestSMTPProber_MalformedMailFromReply(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond: func(cmd string) (string, bool) {
			if strings.HasPrefix(cmd, "MAIL FROM") {
				return "250-sender\r\n???\r\n250 OK", false
			}
			return "250 OK", false
		},
	}

	res := m.prober(time.Second).Probe(context.Background(), pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonMailFromFailed, res.Error)

	require.Eventually(t, func() bool { return len(m.commands()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"EHLO example.com", "MAIL FROM:<verify@example.com>", "QUIT"}, m.commands())
}

func TestSMTPProber_InvalidGreeting(t *testing.T) {
	m := &pipeMX{
		greeting: "554 no service",
		respond:  func(string) (string, bool) { return "250 OK", false },
	}

	res := m.prober(time.Second).Probe(context.Background(), pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonInvalidGreeting, res.Error)
}

func TestSMTPProber_TLSHandshakeFails(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond: func(cmd string) (string, bool) {
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				return "250-mx.example.com\r\n250 STARTTLS", false
			case cmd == "STARTTLS":
				return "220 Ready to start TLS", true
			default:
				return "250 OK", false
			}
		},
	}
	p := check.NewSMTPProber(check.SMTPConfig{Timeout: 2 * time.Second, Dial: m.dial})
	target := pipeTarget
	target.Profile = &types.ProviderProfile{Key: "strict", RequireTLS: true}

	res := p.Probe(context.Background(), target)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonTLSFailed, res.Error)
	assert.False(t, res.SupportsTLS)
}

func TestSMTPProber_Timeout(t *testing.T) {
	m := &pipeMX{respond: func(string) (string, bool) { return "", false }}

	start := time.Now()
	res := m.prober(100 * time.Millisecond).Probe(context.Background(), pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonTimeout, res.Error)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPProber_Cancelled(t *testing.T) {
	m := &pipeMX{respond: func(string) (string, bool) { return "", false }}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := m.prober(5*time.Second).Probe(ctx, pipeTarget)
	assert.False(t, res.Success)
	assert.Equal(t, check.ReasonCancelled, res.Error)
}

func TestSMTPProber_ProfileTimeoutOverrides(t *testing.T) {
	m := &pipeMX{
		greeting: "220 mx.example.com ESMTP",
		respond:  func(string) (string, bool) { return "", false },
	}
	target := pipeTarget
	target.Profile = &types.ProviderProfile{Key: "slow", Timeout: 100 * time.Millisecond}

	start := time.Now()
	res := m.prober(10*time.Second).Probe(context.Background(), target)
	assert.Equal(t, check.ReasonTimeout, res.Error)
	assert.Less(t, time.Since(start), 2*time.Second)
}
