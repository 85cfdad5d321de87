package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const ClientIPKey contextKey = "client_ip"

// RealIP resolves the client address once and stores it in the request
// context. Forwarding headers are only honoured when the peer is a trusted
// proxy; X-Forwarded-For is then walked right to left and the first hop that
// is not itself a trusted proxy wins.
func (m *Middleware) RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.resolveClientIP(r)
		ctx := context.WithValue(r.Context(), ClientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) resolveClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !m.trusted(peer) {
		return peer
	}

	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		leftmost := ""
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			leftmost = hop
			if !m.trusted(hop) {
				return hop
			}
		}
		if leftmost != "" {
			return leftmost
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func (m *Middleware) trusted(ip string) bool {
	if len(m.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address resolved by RealIP, or the host part of
// RemoteAddr when the request did not pass through it.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
