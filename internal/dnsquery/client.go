// Package dnsquery is a small DNS client that sends queries straight to a
// configured nameserver instead of going through the system resolver.
package dnsquery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Client queries a single nameserver over UDP, retrying over TCP when the
// answer is truncated. Its method set matches the lookups of *net.Resolver
// that the DNS cache uses.
type Client struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

// New returns a client for server ("host" or "host:port", port 53 by default).
func New(server string, timeout time.Duration) *Client {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	return &Client{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Server returns the nameserver address queries are sent to.
func (c *Client) Server() string { return c.server }

// LookupMX returns the MX records of name.
func (c *Client) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	in, err := c.exchange(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []*net.MX
	for _, rr := range in.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			out = append(out, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	return out, nil
}

// LookupTXT returns the TXT records of name, each with its strings joined.
func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	in, err := c.exchange(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	return out, nil
}

// LookupHost returns the IPv4 and IPv6 addresses of host.
func (c *Client) LookupHost(ctx context.Context, host string) ([]string, error) {
	var out []string
	var firstErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		in, err := c.exchange(ctx, host, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				out = append(out, v.A.String())
			case *dns.AAAA:
				out = append(out, v.AAAA.String())
			}
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: c.server, IsNotFound: true}
	}
	return out, nil
}

func (c *Client) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	in, _, err := c.udp.ExchangeContext(ctx, m, c.server)
	if err == nil && in.Truncated {
		in, _, err = c.tcp.ExchangeContext(ctx, m, c.server)
	}
	if err != nil {
		dnsErr := &net.DNSError{Err: err.Error(), Name: name, Server: c.server}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			dnsErr.Err = "i/o timeout"
			dnsErr.IsTimeout = true
		}
		return nil, dnsErr
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
		return in, nil
	case dns.RcodeNameError:
		return nil, &net.DNSError{Err: "no such host", Name: name, Server: c.server, IsNotFound: true}
	default:
		return nil, &net.DNSError{
			Err:         fmt.Sprintf("server answered %s", dns.RcodeToString[in.Rcode]),
			Name:        name,
			Server:      c.server,
			IsTemporary: in.Rcode == dns.RcodeServerFailure,
		}
	}
}
