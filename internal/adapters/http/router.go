package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/dkeye/Consult/internal/adapters/rtc"
	"github.com/dkeye/Consult/internal/adapters/signal"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/auth"
	"github.com/dkeye/Consult/internal/billing"
	"github.com/dkeye/Consult/internal/closure"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/ledger"
	"github.com/dkeye/Consult/internal/metrics"
	"github.com/dkeye/Consult/internal/notes"
	"github.com/dkeye/Consult/internal/rooms"
)

// Services is everything the HTTP layer dispatches to.
type Services struct {
	DB       *gorm.DB
	Orch     *orch.Orchestrator
	Rooms    *rooms.Service
	Notes    *notes.Service
	Billing  *billing.Service
	Ledger   *ledger.Ledger
	Closures *closure.Service
	Issuer   *auth.Issuer
	Metrics  *metrics.Metrics
	ICE      webrtc.Configuration
	Location *time.Location
}

type handlers struct {
	*Services
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc *Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConsultSessions", store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{Services: svc}
	r.GET("/healthz", h.health)
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.Use(auth.Middleware(svc.Issuer))

	ctrl := signal.NewSignalWSController(svc.Orch, signal.Options{
		SendBuffer: cfg.Signal.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Limiter:    signal.NewRoomRateLimiter(cfg.Signal.JoinLimit, cfg.Signal.JoinWindow),
	})
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rtc/config", h.rtcConfig)
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)

	roomsAPI := api.Group("/rooms")
	roomsAPI.POST("", auth.RequireRole(domain.RoleDoctor, domain.RoleAdmin), h.openRoom)
	roomsAPI.GET("/:code", h.getRoom)
	roomsAPI.POST("/:code/finish", auth.RequireRole(domain.RoleDoctor, domain.RoleAdmin), h.finishRoom)
	roomsAPI.GET("/:code/notes", h.listNotes)
	roomsAPI.POST("/:code/notes", auth.RequireRole(domain.RoleDoctor), h.saveNote)

	billingAPI := api.Group("/billing")
	billingAPI.GET("/config/:doctor", h.getBillingConfig)
	billingAPI.PUT("/config/:doctor", auth.RequireRole(domain.RoleAdmin), h.updateBillingConfig)
	billingAPI.GET("/summary/:doctor", h.billingSummary)
	billingAPI.GET("/consultations/:doctor", h.listConsultations)

	api.POST("/consultations/:id/paid", auth.RequireRole(domain.RoleAdmin), h.markPaid)

	closuresAPI := api.Group("/closures")
	closuresAPI.POST("", auth.RequireRole(domain.RoleAdmin), h.computeClosure)
	closuresAPI.GET("", auth.RequireRole(domain.RoleDoctor, domain.RoleAdmin), h.listClosures)
	closuresAPI.POST("/:id/platform-confirmation", auth.RequireRole(domain.RoleAdmin), h.confirmPlatform)
	closuresAPI.POST("/:id/doctor-confirmation", auth.RequireRole(domain.RoleDoctor), h.confirmDoctor)

	admin := api.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.POST("/reset", h.reset)
	api.GET("/presence", auth.RequireRole(domain.RoleAdmin), h.presence)

	return r
}

func (h *handlers) health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("health check failed")
		errorResponse(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) rtcConfig(c *gin.Context) {
	successResponse(c, rtc.ToClient(h.ICE))
}
