package request

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const (
	idContextKey       contextKey = "request_id"
	clientIPContextKey contextKey = "client_ip"
)

// HeaderRequestID is the header carrying the request ID in both directions
const HeaderRequestID = "X-Request-ID"

// IDContextKey returns the context key used for the request ID. Exposed for tests that inject non-string values.
func IDContextKey() contextKey { return idContextKey }

// ClientIP returns the client address resolved by TrustedProxies.Resolve for
// this request, or the connection's peer address when none was stored.
// Forwarding headers are never read here.
func ClientIP(r *http.Request) string {
	if ip, _ := r.Context().Value(clientIPContextKey).(string); ip != "" {
		return ip
	}
	return peerIP(r)
}

// WithClientIP returns a context carrying the resolved client address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

// TrustedProxies is the set of peers allowed to report the client address
// through X-Forwarded-For or X-Real-IP
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies reads a comma-separated list of IPs and CIDR ranges.
// An empty list trusts no proxy.
func ParseTrustedProxies(list string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		p.nets = append(p.nets, ipNet)
	}
	return p, nil
}

// Len returns the number of trusted ranges
func (p *TrustedProxies) Len() int {
	if p == nil {
		return 0
	}
	return len(p.nets)
}

func (p *TrustedProxies) trusts(addr string) bool {
	if p == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve returns the client address. Forwarding headers count only when the
// peer is a trusted proxy; X-Forwarded-For is read right to left and the
// first untrusted hop is the client.
func (p *TrustedProxies) Resolve(r *http.Request) string {
	peer := peerIP(r)
	if !p.trusts(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !p.trusts(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func peerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithID returns a context with the request ID attached.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idContextKey, id)
}

// IDFromContext returns the request ID, or "" if missing or wrong type.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(idContextKey).(string)
	return id
}
