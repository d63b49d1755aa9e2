package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/auth"
)

// createSession binds the bearer identity to the cookie session so the
// browser can open the signaling socket without a token in the URL.
func (h *handlers) createSession(c *gin.Context) {
	id := caller(c)
	if err := auth.SaveSession(c, id); err != nil {
		appError(c, apperr.Internal("save session", err))
		return
	}
	log.Debug().Str("module", "adapters.http").Uint("user_id", id.UserID).Str("role", string(id.Role)).Msg("session opened")
	successResponse(c, id)
}

func (h *handlers) deleteSession(c *gin.Context) {
	if err := auth.ClearSession(c); err != nil {
		appError(c, apperr.Internal("clear session", err))
		return
	}
	successResponse(c, nil)
}
