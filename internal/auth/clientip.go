// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package auth

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxies resolves the client IP for security decisions.
// Forwarding headers are spoofable, so they are honored only when the
// direct peer is a configured proxy; otherwise the socket address wins.
type TrustedProxies struct {
	nets []*net.IPNet
	ips  map[string]bool
}

// NewTrustedProxies parses a list of proxy addresses. Entries may be
// single IPs or CIDR ranges; unparseable entries are skipped.
func NewTrustedProxies(entries []string) *TrustedProxies {
	tp := &TrustedProxies{ips: make(map[string]bool)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, ipnet, err := net.ParseCIDR(entry); err == nil {
				tp.nets = append(tp.nets, ipnet)
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			tp.ips[ip.String()] = true
		}
	}
	return tp
}

// trusts reports whether the peer address belongs to a configured proxy.
func (tp *TrustedProxies) trusts(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if tp.ips[ip.String()] {
		return true
	}
	for _, ipnet := range tp.nets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address for r. When the request arrived
// through a trusted proxy the first valid X-Forwarded-For hop (or
// X-Real-IP) is used; otherwise the peer address of the connection.
func (tp *TrustedProxies) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if tp == nil || !tp.trusts(host) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	return host
}
