// Package smtpwire speaks the client side of SMTP over a single connection:
// command/reply framing, the STARTTLS upgrade and a close-once teardown.
// It knows nothing about what the commands mean.
package smtpwire

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxReplyLines bounds a multi-line reply so a hostile server cannot make
// the client buffer forever.
const maxReplyLines = 512

// ErrMalformedReply is returned when the server sends something that is not
// an SMTP reply. The remainder of the reply is left unread, so later
// replies on the same connection can no longer be matched to commands.
var ErrMalformedReply = errors.New("malformed SMTP reply")

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("smtp session closed")

// Reply is one (possibly multi-line) server reply.
type Reply struct {
	Code  int
	Lines []string // text after "NNN-" / "NNN ", one entry per line
}

// Message returns the reply text with lines joined by a space.
func (r Reply) Message() string {
	return strings.Join(r.Lines, " ")
}

// String renders the reply the way it appeared on the wire, one line per
// line joined by " | ".
func (r Reply) String() string {
	parts := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		sep := "-"
		if i == len(r.Lines)-1 {
			sep = " "
		}
		parts[i] = strconv.Itoa(r.Code) + sep + l
	}
	return strings.Join(parts, " | ")
}

// HasExtension reports whether an EHLO reply advertises the keyword.
func (r Reply) HasExtension(keyword string) bool {
	for i, l := range r.Lines {
		if i == 0 {
			continue // greeting line
		}
		name, _, _ := strings.Cut(strings.TrimSpace(l), " ")
		if strings.EqualFold(name, keyword) {
			return true
		}
	}
	return false
}

// Session is one client connection. Methods are not safe for concurrent use,
// except Abort and Close which may be called from any goroutine.
type Session struct {
	raw    net.Conn // the TCP connection, also under TLS
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	host   string
	tls    bool

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex // guards closed and conn swaps
	closed    bool
}

// Dial connects to address with dial and wraps the connection.
func Dial(ctx context.Context, dial DialFunc, address string) (*Session, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	if dial == nil {
		dial = DirectDialer()
	}
	conn, err := dial(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return NewSession(conn, host), nil
}

// NewSession wraps an established connection to host.
func NewSession(conn net.Conn, host string) *Session {
	return &Session{
		raw:    conn,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		host:   host,
	}
}

// Host returns the server host name the session was opened for.
func (s *Session) Host() string { return s.host }

// TLS reports whether the connection has been upgraded.
func (s *Session) TLS() bool { return s.tls }

// SetDeadline applies a read/write deadline to the connection.
func (s *Session) SetDeadline(t time.Time) error {
	return s.raw.SetDeadline(t)
}

// ReadReply reads one reply.
func (s *Session) ReadReply() (Reply, error) {
	if s.isClosed() {
		return Reply{}, ErrClosed
	}
	return readReply(s.reader)
}

// Cmd sends one command line and reads its reply.
func (s *Session) Cmd(format string, args ...any) (Reply, error) {
	if s.isClosed() {
		return Reply{}, ErrClosed
	}
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		return Reply{}, fmt.Errorf("write command: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return Reply{}, fmt.Errorf("write command: %w", err)
	}
	return readReply(s.reader)
}

// StartTLS runs the TLS handshake over the existing connection after the
// server has answered 220 to STARTTLS. On failure the session keeps its
// plaintext reader and writer.
func (s *Session) StartTLS(ctx context.Context, cfg *tls.Config) error {
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" && net.ParseIP(s.host) == nil {
		cfg.ServerName = s.host
	}

	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}

	s.mu.Lock()
	s.conn = tlsConn
	s.mu.Unlock()
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tls = true
	return nil
}

// Abort closes the connection without QUIT. It is safe to call
// concurrently with a blocked command, which then fails.
func (s *Session) Abort() error {
	return s.close(false)
}

// Close sends QUIT (best effort, without waiting for the reply) and closes
// the connection. Only the first call to Close or Abort has an effect.
func (s *Session) Close() error {
	return s.close(true)
}

func (s *Session) close(quit bool) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()

		if !quit {
			s.closeErr = s.raw.Close()
			return
		}
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = s.writer.WriteString("QUIT\r\n")
		_ = s.writer.Flush()
		s.closeErr = conn.Close()
	})
	return s.closeErr
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readReply reads a (possibly multi-line) SMTP reply.
func readReply(r *bufio.Reader) (Reply, error) {
	var reply Reply
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return Reply{}, fmt.Errorf("read SMTP reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return Reply{}, fmt.Errorf("%w: line too short %q", ErrMalformedReply, line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil || code < 100 || code > 599 {
			return Reply{}, fmt.Errorf("%w: invalid code %q", ErrMalformedReply, line[:3])
		}
		if reply.Lines != nil && code != reply.Code {
			return Reply{}, fmt.Errorf("%w: code changed from %d to %d", ErrMalformedReply, reply.Code, code)
		}
		reply.Code = code

		text := ""
		more := false
		if len(line) > 3 {
			more = line[3] == '-'
			text = line[4:]
		}
		reply.Lines = append(reply.Lines, text)

		if !more {
			return reply, nil
		}
		if len(reply.Lines) >= maxReplyLines {
			return Reply{}, fmt.Errorf("%w: more than %d lines", ErrMalformedReply, maxReplyLines)
		}
	}
}
