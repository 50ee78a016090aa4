// Package metadata extracts client metadata (request ID, IP, User-Agent) early
// in the chain so audit events can record who submitted an attestation.
package metadata

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"skyseal/pkg/requestcontext"
)

// RequestID assigns a UUID request ID unless the caller supplied one via
// X-Request-Id, and echoes it back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientMetadata extracts client IP and User-Agent from the request and adds
// them, plus a parsed device label, to the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPFromRequest(r)
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua, deviceLabel(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceLabel condenses a raw User-Agent into "Browser version / OS" for audit
// events. Unparseable agents fall back to the raw string.
func deviceLabel(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	parsed := useragent.New(rawUA)
	name, version := parsed.Browser()
	if name == "" {
		return rawUA
	}
	if os := parsed.OS(); os != "" {
		return fmt.Sprintf("%s %s / %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}

// clientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first one is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is host:port
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
