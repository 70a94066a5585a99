package mxtest

import (
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
)

// Zone maps "name/TYPE" (e.g. "example.com/MX") to the records served for
// it, in zone file syntax. Names missing from the zone get NXDOMAIN; a known
// name asked for another type gets an empty answer.
type Zone map[string][]string

// StartDNS serves z over UDP on a loopback port until the test ends and
// returns the server address.
func StartDNS(t testing.TB, z Zone) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]

		known := false
		for key, records := range z {
			name, qtype, _ := strings.Cut(key, "/")
			if !strings.EqualFold(dns.Fqdn(name), q.Name) {
				continue
			}
			known = true
			if qtype != dns.TypeToString[q.Qtype] {
				continue
			}
			for _, rec := range records {
				if rr, err := dns.NewRR(rec); err == nil {
					m.Answer = append(m.Answer, rr)
				}
			}
		}
		if !known {
			m.SetRcode(r, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}
