// Package mxtest runs an in-process SMTP server that stands in for a
// recipient's MX host in tests.
package mxtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// Options configures the server.
type Options struct {
	// Mailboxes are the recipients accepted with 250. Others get 550.
	Mailboxes []string
	// TLS advertises STARTTLS with a self-signed certificate.
	TLS bool
	// RejectSenders are MAIL FROM addresses answered with 550.
	RejectSenders []string
	// RcptError, when set, answers every RCPT TO with it.
	RcptError *gosmtp.SMTPError
}

// Server is a running mock MX.
type Server struct {
	Host string
	Port int

	opts Options

	mu        sync.Mutex
	helos     []string
	senders   []string
	rcpts     []string
	sessions  int
	dataCalls int
}

// Start listens on a loopback port and serves until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	s := &Server{opts: opts}
	srv := gosmtp.NewServer(s)
	srv.Domain = "mx.test"
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	if opts.TLS {
		srv.TLSConfig = SelfSignedTLS(t, "mx.test")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	s.Host = "127.0.0.1"
	s.Port = ln.Addr().(*net.TCPAddr).Port
	return s
}

// NewSession implements gosmtp.Backend.
func (s *Server) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	s.mu.Lock()
	s.helos = append(s.helos, c.Hostname())
	s.sessions++
	s.mu.Unlock()
	return &session{srv: s}, nil
}

// Helos returns the greeting names received, in order.
func (s *Server) Helos() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.helos...)
}

// Senders returns the MAIL FROM addresses received, in order.
func (s *Server) Senders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.senders...)
}

// Recipients returns the RCPT TO addresses received, in order.
func (s *Server) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rcpts...)
}

// DataCalls returns how many DATA commands reached the backend.
func (s *Server) DataCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataCalls
}

type session struct {
	srv *Server
}

func (s *session) Reset() {}

func (s *session) Logout() error { return nil }

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.srv.mu.Lock()
	s.srv.senders = append(s.srv.senders, from)
	s.srv.mu.Unlock()

	for _, rejected := range s.srv.opts.RejectSenders {
		if strings.EqualFold(rejected, from) {
			return &gosmtp.SMTPError{Code: 550, EnhancedCode: gosmtp.EnhancedCode{5, 7, 1}, Message: "sender rejected"}
		}
	}
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.srv.mu.Lock()
	s.srv.rcpts = append(s.srv.rcpts, to)
	s.srv.mu.Unlock()

	if s.srv.opts.RcptError != nil {
		return s.srv.opts.RcptError
	}
	for _, mb := range s.srv.opts.Mailboxes {
		if strings.EqualFold(mb, to) {
			return nil
		}
	}
	return &gosmtp.SMTPError{Code: 550, EnhancedCode: gosmtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"}
}

func (s *session) Data(r io.Reader) error {
	s.srv.mu.Lock()
	s.srv.dataCalls++
	s.srv.mu.Unlock()
	_, _ = io.Copy(io.Discard, r)
	return errors.New("DATA not expected")
}

// SelfSignedTLS returns a server TLS config with a fresh certificate for name.
func SelfSignedTLS(t testing.TB, name string) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}
