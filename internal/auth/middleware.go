package auth

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/dkeye/Consult/internal/domain"
)

const (
	identityKey = "identity"

	sessionUserID    = "uid"
	sessionRole      = "role"
	sessionProfileID = "pid"
)

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	// Browsers cannot set headers on a websocket handshake.
	return c.Query("access_token")
}

func fromSession(c *gin.Context) (domain.Identity, bool) {
	s := sessions.Default(c)
	uid, ok1 := s.Get(sessionUserID).(uint)
	role, ok2 := s.Get(sessionRole).(string)
	pid, _ := s.Get(sessionProfileID).(uint)
	if !ok1 || !ok2 || !domain.Role(role).Valid() {
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: uid, Role: domain.Role(role), ProfileID: pid}, true
}

// Middleware resolves the caller from a bearer token, falling back to the cookie session.
func Middleware(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearer(c); tok != "" {
			id, err := iss.Parse(tok)
			if err != nil {
				abort(c, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			c.Set(identityKey, id)
			c.Next()
			return
		}
		if id, ok := fromSession(c); ok {
			c.Set(identityKey, id)
			c.Next()
			return
		}
		abort(c, http.StatusUnauthorized, "Authentication required")
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Insufficient role")
	}
}

func FromContext(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// SaveSession binds id to the cookie session so later requests, including the
// websocket handshake, authenticate without a token.
func SaveSession(c *gin.Context, id domain.Identity) error {
	s := sessions.Default(c)
	s.Set(sessionUserID, id.UserID)
	s.Set(sessionRole, string(id.Role))
	s.Set(sessionProfileID, id.ProfileID)
	return s.Save()
}

func ClearSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	return s.Save()
}
