package smtpwire

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// DialFunc opens a connection. It has the signature of net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProxyConfig configures a SOCKS5 proxy for outbound SMTP.
type ProxyConfig struct {
	Address  string // host:port
	Username string
	Password string
}

// DirectDialer dials without a proxy.
func DirectDialer() DialFunc {
	d := &net.Dialer{}
	return d.DialContext
}

// SOCKS5Dialer dials through the SOCKS5 proxy in cfg.
func SOCKS5Dialer(cfg ProxyConfig) (DialFunc, error) {
	var auth *proxy.Auth
	if cfg.Username != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}

	d, err := proxy.SOCKS5("tcp", cfg.Address, auth, &net.Dialer{})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", cfg.Address, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return cd.DialContext, nil
}
