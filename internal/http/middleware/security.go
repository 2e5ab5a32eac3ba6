package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultPermissionsPolicy disables browser features the gateway never needs.
// Geolocation stays off here: coordinates arrive in request bodies.
const defaultPermissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=()"

// SecurityOptions configures SecurityHeaders.
//
// NoStorePrefixes lists path prefixes whose responses carry user coordinates
// or addresses and must not be stored by shared caches. Expose lists response
// headers browser clients may read; X-Request-ID is always included.
type SecurityOptions struct {
	EnableHSTS        bool
	HSTSMaxAge        time.Duration // defaults to 180 days
	NoStorePrefixes   []string
	EnablePolicy      bool
	PermissionsPolicy string // defaults to defaultPermissionsPolicy
	Expose            []string
}

// SecurityHeaders sets baseline API hardening headers. HSTS is only emitted
// for HTTPS requests, directly or behind a proxy that sets X-Forwarded-Proto.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + itoa(maxAge) + "; includeSubDomains; preload"

	policy := opt.PermissionsPolicy
	if policy == "" {
		policy = defaultPermissionsPolicy
	}
	expose := mergeHeaderList([]string{"X-Request-ID"}, opt.Expose)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", policy)
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if hasAnyPrefix(c.Request.URL.Path, opt.NoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const hdr = "Access-Control-Expose-Headers"
		if cur := h.Get(hdr); cur == "" {
			h.Set(hdr, strings.Join(expose, ", "))
		} else {
			h.Set(hdr, strings.Join(mergeHeaderList(strings.Split(cur, ","), expose), ", "))
		}

		c.Next()
	}
}

// mergeHeaderList appends extra to base, skipping blanks and
// case-insensitive duplicates.
func mergeHeaderList(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			k := strings.ToLower(v)
			if v == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func itoa(i int) string { return strconv.Itoa(i) }
