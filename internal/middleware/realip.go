package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIPMiddleware rewrites RemoteAddr to the client IP reported by a trusted
// proxy. Forwarded headers from any other peer are ignored, so rate limiting
// and logging cannot be spoofed by clients that connect directly.
type RealIPMiddleware struct {
	trustedNets []*net.IPNet
}

// NewRealIPMiddleware creates a RealIPMiddleware. trustedProxies may contain
// single IPs ("192.168.1.1") or CIDRs ("10.0.0.0/8"); invalid entries are
// skipped.
func NewRealIPMiddleware(trustedProxies []string) *RealIPMiddleware {
	m := &RealIPMiddleware{}

	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if !strings.Contains(proxy, "/") {
			if ip := net.ParseIP(proxy); ip != nil {
				bits := 8 * net.IPv6len
				if ip.To4() != nil {
					ip, bits = ip.To4(), 8*net.IPv4len
				}
				m.trustedNets = append(m.trustedNets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, network, err := net.ParseCIDR(proxy); err == nil {
			m.trustedNets = append(m.trustedNets, network)
		}
	}

	return m
}

// Handler returns the middleware handler.
func (m *RealIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := m.extractRealIP(r); ip != "" {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}

// extractRealIP prefers CF-Connecting-IP, then the first X-Forwarded-For hop,
// but only when the direct peer is trusted.
func (m *RealIPMiddleware) extractRealIP(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if !m.isTrustedProxy(remoteIP) {
		return remoteIP
	}

	if cfIP := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); net.ParseIP(cfIP) != nil {
		return cfIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); net.ParseIP(first) != nil {
			return first
		}
	}

	return remoteIP
}

func (m *RealIPMiddleware) isTrustedProxy(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range m.trustedNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// parseRemoteAddr extracts just the IP from RemoteAddr (which may include port)
func parseRemoteAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
