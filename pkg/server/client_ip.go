package server

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// proxyList matches the addresses of trusted reverse proxies.
type proxyList struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// parseProxies parses IPs and CIDRs. A nil list trusts nobody.
func parseProxies(entries []string) (*proxyList, error) {
	p := &proxyList{addrs: make(map[netip.Addr]struct{})}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			p.prefixes = append(p.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		p.addrs[addr.Unmap()] = struct{}{}
	}
	if len(p.addrs) == 0 && len(p.prefixes) == 0 {
		return nil, nil
	}
	return p, nil
}

func (p *proxyList) trusts(addr netip.Addr) bool {
	if p == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if _, ok := p.addrs[addr]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr returns the client address of r. Forwarding headers are only
// honored when the peer is a trusted proxy; the right-most untrusted hop
// wins.
func clientAddr(r *http.Request, trusted *proxyList) string {
	peer := parseHost(r.RemoteAddr)
	if !peer.IsValid() {
		return r.RemoteAddr
	}
	if !trusted.trusts(peer) {
		return peer.String()
	}

	hops := forwardedFor(r.Header.Get("Forwarded"))
	if len(hops) == 0 {
		hops = xForwardedFor(r.Header.Get("X-Forwarded-For"))
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !trusted.trusts(hops[i]) {
			return hops[i].String()
		}
	}
	if len(hops) > 0 {
		return hops[0].String()
	}
	return peer.String()
}

// forwardedFor extracts the for= parameters of an RFC 7239 header.
func forwardedFor(header string) []netip.Addr {
	var out []netip.Addr
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if addr := parseHost(value); addr.IsValid() {
				out = append(out, addr)
			}
		}
	}
	return out
}

func xForwardedFor(header string) []netip.Addr {
	var out []netip.Addr
	for _, part := range strings.Split(header, ",") {
		if addr := parseHost(part); addr.IsValid() {
			out = append(out, addr)
		}
	}
	return out
}

// parseHost parses "ip", "ip:port", "[v6]:port" or a quoted form of them.
func parseHost(value string) netip.Addr {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" || strings.EqualFold(value, "unknown") {
		return netip.Addr{}
	}
	if ap, err := netip.ParseAddrPort(value); err == nil {
		return ap.Addr().Unmap()
	}
	value = strings.Trim(value, "[]")
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Addr{}
	}
	return addr.WithZone("").Unmap()
}
