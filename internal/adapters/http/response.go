package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Consult/internal/apperr"
	"github.com/dkeye/Consult/internal/auth"
	"github.com/dkeye/Consult/internal/domain"
)

func successResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// appError maps a service error to its status; internal details stay in the log.
func appError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	errorResponse(c, status, apperr.Message(err))
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		errorResponse(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func caller(c *gin.Context) domain.Identity {
	id, _ := auth.FromContext(c)
	return id
}

// ownDoctor reports whether the caller may see doctorID's billing.
func ownDoctor(id domain.Identity, doctorID uint) bool {
	return id.IsAdmin() || (id.Role == domain.RoleDoctor && id.ProfileID == doctorID)
}
