package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Consult/internal/domain"
)

type computeClosureRequest struct {
	DoctorID uint `json:"doctor_id" binding:"required"`
	Month    int  `json:"month" binding:"required"`
	Year     int  `json:"year" binding:"required"`
}

type confirmRequest struct {
	Note string `json:"note"`
}

func (h *handlers) computeClosure(c *gin.Context) {
	var req computeClosureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	cl, err := h.Closures.Compute(c.Request.Context(), req.DoctorID, req.Month, req.Year)
	if err != nil {
		appError(c, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ClosureComputed()
	}
	successResponse(c, cl)
}

// listClosures shows a doctor their own closures; admins may filter by ?doctor=.
func (h *handlers) listClosures(c *gin.Context) {
	id := caller(c)
	var doctorID uint
	if id.Role == domain.RoleDoctor {
		doctorID = id.ProfileID
	} else if s := c.Query("doctor"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid doctor")
			return
		}
		doctorID = uint(v)
	}

	list, err := h.Closures.List(c.Request.Context(), doctorID)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{
		"closures": list,
		"count":    len(list),
	})
}

func (h *handlers) confirmPlatform(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	_ = c.ShouldBindJSON(&req)
	cl, err := h.Closures.ConfirmPlatformPayment(c.Request.Context(), id, req.Note)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, cl)
}

func (h *handlers) confirmDoctor(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	_ = c.ShouldBindJSON(&req)
	cl, err := h.Closures.ConfirmDoctorReceipt(c.Request.Context(), id, caller(c), req.Note)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, cl)
}
