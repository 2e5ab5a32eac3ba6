package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Roles granted by BearerAuth.
const (
	RoleService = "service"
	RoleAnon    = "anon"
)

// AuthOptions lists the accepted static tokens. An empty token disables its
// role.
type AuthOptions struct {
	ServiceKey string
	AnonKey    string
	// AllowAnon accepts AnonKey in addition to ServiceKey.
	AllowAnon bool
}

// BearerAuth checks "Authorization: Bearer <token>" against the configured
// keys and stores the granted role under "role". The caller's id is taken from
// X-User-ID and stored under "userID". When no key is configured at all the
// middleware lets every request through as anon.
//
// Failures answer 401 with {"error": "..."}, the shape function clients expect.
func BearerAuth(opts AuthOptions) gin.HandlerFunc {
	disabled := opts.ServiceKey == "" && (opts.AnonKey == "" || !opts.AllowAnon)
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader("X-User-ID")); uid != "" {
			c.Set("userID", uid)
		}
		if disabled {
			c.Set("role", RoleAnon)
			c.Set(ctxAuthDisabled, true)
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		switch {
		case tokenEqual(token, opts.ServiceKey):
			c.Set("role", RoleService)
		case opts.AllowAnon && tokenEqual(token, opts.AnonKey):
			c.Set("role", RoleAnon)
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

const ctxAuthDisabled = "authDisabled"

// RequireRole rejects requests whose granted role is not role with 403. It
// must run after BearerAuth. With authentication disabled every role passes.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ctxAuthDisabled) || c.GetString("role") == role {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

func tokenEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
