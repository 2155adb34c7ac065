// Package resolve turns master server host:port strings into UDP addresses,
// optionally querying a specific DNS server instead of the system resolver.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/miekg/dns"
)

// maxCNAMEHops bounds CNAME chains followed for a single lookup.
const maxCNAMEHops = 3

// ErrNoRecord is returned when the DNS server has no A record for the host.
var ErrNoRecord = errors.New("no A record")

// UDPAddr resolves hostport. Literal IPs bypass DNS. With an empty
// dnsServer the system resolver is used; otherwise an A query is sent to
// dnsServer (host:port).
func UDPAddr(ctx context.Context, hostport, dnsServer string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port in %q", hostport)
	}

	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	if dnsServer == "" {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		return &net.UDPAddr{IP: ips[0], Port: port}, nil
	}

	ip, err := lookupA(ctx, dns.Fqdn(host), dnsServer, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s via %s: %w", host, dnsServer, err)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// lookupA queries server for the A record of fqdn, following CNAMEs.
func lookupA(ctx context.Context, fqdn, server string, hops int) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeA)

	c := new(dns.Client)
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %s", dns.ErrRcode, dns.RcodeToString[r.Rcode])
	}

	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}

	for _, rr := range r.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			if hops >= maxCNAMEHops {
				return nil, fmt.Errorf("cname chain for %s longer than %d", fqdn, maxCNAMEHops)
			}
			return lookupA(ctx, dns.Fqdn(cname.Target), server, hops+1)
		}
	}

	return nil, ErrNoRecord
}
