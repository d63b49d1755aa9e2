package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/ledger"
)

type billingConfigRequest struct {
	Price           float64 `json:"price"`
	DoctorPercent   float64 `json:"doctor_percent"`
	PlatformPercent float64 `json:"platform_percent"`
}

func (h *handlers) doctorParam(c *gin.Context) (uint, bool) {
	doctorID, ok := paramID(c, "doctor")
	if !ok {
		return 0, false
	}
	if !ownDoctor(caller(c), doctorID) {
		errorResponse(c, http.StatusForbidden, "Access denied")
		return 0, false
	}
	return doctorID, true
}

func (h *handlers) getBillingConfig(c *gin.Context) {
	doctorID, ok := h.doctorParam(c)
	if !ok {
		return
	}
	cfg, err := h.Billing.Get(c.Request.Context(), doctorID)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, cfg)
}

func (h *handlers) updateBillingConfig(c *gin.Context) {
	doctorID, ok := paramID(c, "doctor")
	if !ok {
		return
	}
	var req billingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg, err := h.Billing.Update(c.Request.Context(), doctorID, req.Price, req.DoctorPercent, req.PlatformPercent)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, cfg)
}

// period reads ?from=YYYY-MM-DD&to=YYYY-MM-DD; both days are inclusive.
func (h *handlers) period(c *gin.Context) (ledger.Period, bool) {
	var p ledger.Period
	if s := c.Query("from"); s != "" {
		from, err := time.ParseInLocation(domain.DayLayout, s, h.Location)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid from date")
			return p, false
		}
		p.From = &from
	}
	if s := c.Query("to"); s != "" {
		to, err := time.ParseInLocation(domain.DayLayout, s, h.Location)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid to date")
			return p, false
		}
		to = to.AddDate(0, 0, 1)
		p.To = &to
	}
	return p, true
}

func (h *handlers) billingSummary(c *gin.Context) {
	doctorID, ok := h.doctorParam(c)
	if !ok {
		return
	}
	p, ok := h.period(c)
	if !ok {
		return
	}
	sum, err := h.Ledger.Summary(c.Request.Context(), doctorID, p)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, sum)
}

func (h *handlers) listConsultations(c *gin.Context) {
	doctorID, ok := h.doctorParam(c)
	if !ok {
		return
	}
	p, ok := h.period(c)
	if !ok {
		return
	}
	list, err := h.Ledger.ListByDoctor(c.Request.Context(), doctorID, p)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, gin.H{
		"consultations": list,
		"count":         len(list),
	})
}

func (h *handlers) markPaid(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rec, err := h.Ledger.MarkPaid(c.Request.Context(), id)
	if err != nil {
		appError(c, err)
		return
	}
	successResponse(c, rec)
}
