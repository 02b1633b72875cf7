package ratelimit

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	principal "minha-agenda/backend/internal/principal/domain"
)

// proxyHeaders are consulted in order when proxy headers are trusted: edge CDN first, direct socket last.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// reservedPrefixes are ranges netip does not classify as private or loopback but which a client cannot own.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::ffff:0:0/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// Identify returns the counter identifier for r: user:{role}:{id} for an authenticated principal,
// otherwise anon:ip:{ip}:ua:{first 8 hex chars of md5(User-Agent)}.
func Identify(r *http.Request, p *principal.View, trustProxy bool) string {
	if p != nil && p.ID > 0 {
		role := string(p.Role)
		if role == "" {
			role = "unknown"
		}
		return "user:" + role + ":" + strconv.FormatInt(p.ID, 10)
	}
	sum := md5.Sum([]byte(r.Header.Get("User-Agent")))
	return "anon:ip:" + ClientIP(r, trustProxy) + ":ua:" + hex.EncodeToString(sum[:])[:8]
}

// ClientIP resolves the caller address. With trustProxy, the first public address found in the proxy
// headers wins; private and reserved values are skipped as spoofing candidates. Falls back to the socket
// address, then 127.0.0.1.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := firstHeaderValue(r.Header.Get(h))
			if h == "Forwarded" {
				v = forwardedFor(v)
			}
			if addr, ok := parseAddr(v); ok && isPublic(addr) {
				return addr.String()
			}
		}
	}
	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr.String()
	}
	return "127.0.0.1"
}

func firstHeaderValue(v string) string {
	if i := strings.Index(v, ","); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// forwardedFor extracts the for= parameter of an RFC 7239 element.
func forwardedFor(v string) string {
	for _, part := range strings.Split(v, ";") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(k, "for") {
			val = strings.Trim(val, `"`)
			if host, _, err := net.SplitHostPort(val); err == nil {
				return host
			}
			return strings.TrimSuffix(strings.TrimPrefix(val, "["), "]")
		}
	}
	return v
}

func parseAddr(v string) (netip.Addr, bool) {
	if v == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(v); err == nil {
		v = host
	}
	addr, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone(""), true
}

func isPublic(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsInterfaceLocalMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
