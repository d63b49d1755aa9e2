package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Consult/internal/storage"
)

type resetRequest struct {
	Confirm string `json:"confirm"`
}

const resetConfirmation = "RESET"

func (h *handlers) reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Confirm != resetConfirmation {
		errorResponse(c, http.StatusBadRequest, `Confirmation required: {"confirm":"RESET"}`)
		return
	}
	counts, err := storage.Reset(c.Request.Context(), h.DB)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{"deleted": counts})
}

func (h *handlers) presence(c *gin.Context) {
	rooms := h.Orch.Registry.Snapshot()
	successResponse(c, gin.H{
		"rooms":       rooms,
		"count":       len(rooms),
		"connections": h.Orch.Registry.ConnectionCount(),
	})
}
