package metadata

import (
	"net"
	"net/http"
	"strings"

	"biblioteca/pkg/platform/middleware/device"
	"biblioteca/pkg/requestcontext"
)

const unknownIP = "unknown"

// ClientMetadata stores the caller's IP, User-Agent and device label in the
// request context. Mount it before anything that keys on the client address.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, device.Label(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the originating address. Proxy headers win over
// the socket address; the first hop of X-Forwarded-For is the client.
func ClientIPFromRequest(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if addr == "" {
		return unknownIP
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
