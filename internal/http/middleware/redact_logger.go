package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
//
// MaskHeaders adds header names (case-insensitive) whose values are replaced
// with "[REDACTED]" on top of Authorization, apikey, Cookie and Set-Cookie.
// MaskQuery adds query parameter names whose values are replaced on top of
// "address" and "q", which carry street addresses on geocode calls.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// Decimal degrees with three or more fractional digits, e.g. 41.76582.
	coordRE = regexp.MustCompile(`(-?\b\d{1,3}\.\d{2})\d+\b`)
)

// scrub coarsens coordinates to two decimals (about 1 km) and replaces ids,
// emails and phone numbers. Coordinates go first so their digit runs never
// read as phone numbers, and UUIDs go before phones for the same reason.
func scrub(s string) string {
	if s == "" {
		return s
	}
	out := coordRE.ReplaceAllString(s, "$1")
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// scrubQuery masks listed parameters wholesale and pattern-scrubs the rest.
// It works on the raw string so malformed queries are still logged.
func scrubQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, _, hasVal := strings.Cut(p, "=")
		if _, ok := masked[strings.ToLower(k)]; ok && hasVal {
			parts[i] = k + "=[REDACTED]"
			continue
		}
		parts[i] = scrub(p)
	}
	return truncate(strings.Join(parts, "&"), maxQueryLogLength)
}

// RedactingLogger attaches a request-scoped logger (see LoggerFrom) and
// writes one access log line per request with sensitive values scrubbed.
// Bodies are never logged. Level is info, warn for 4xx and error for 5xx.
// Place it after RequestID.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "apikey", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"address", "q"}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(loggerKey, &scoped)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}
		query := scrubQuery(c.Request.URL.RawQuery, maskQuery)

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if fn, ok := strings.CutPrefix(route, functionsPrefix); ok {
			ev = ev.Str("function", fn)
		}

		ev.
			Str("user_id", scrub(c.GetString("userID"))).
			Str("role", c.GetString("role")).
			Str("query", query).
			Bool("replayed", c.Writer.Header().Get(HeaderIdempotentReplay) == "true").
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
