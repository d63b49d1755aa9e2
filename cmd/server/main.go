package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Consult/internal/adapters/http"
	"github.com/dkeye/Consult/internal/adapters/rtc"
	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/auth"
	"github.com/dkeye/Consult/internal/billing"
	"github.com/dkeye/Consult/internal/clock"
	"github.com/dkeye/Consult/internal/closure"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/events"
	"github.com/dkeye/Consult/internal/ledger"
	"github.com/dkeye/Consult/internal/metrics"
	"github.com/dkeye/Consult/internal/notes"
	"github.com/dkeye/Consult/internal/rooms"
	"github.com/dkeye/Consult/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	loc, _ := cfg.Location()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	ice, err := rtc.ICEConfig(cfg.RTC.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ice servers")
	}

	m := metrics.New(nil)
	clk := clock.Real{}
	billingSvc := billing.NewService(db, billing.Defaults{
		Price:           cfg.Billing.DefaultPrice,
		DoctorPercent:   cfg.Billing.DefaultDoctorPercent,
		PlatformPercent: cfg.Billing.DefaultPlatformPercent,
	})
	led := ledger.New(db, billingSvc, ledger.Options{
		Clock:    clk,
		Location: loc,
		LockWait: cfg.Database.LockTimeout,
		Metrics:  m,
	})
	roomSvc := rooms.NewService(db)

	var bus events.Bus = events.NewLocalBus()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		bus = events.NewRedisBus(client, cfg.Redis.Channel)
		log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("note events over redis")
	}
	defer bus.Close()

	hostname, _ := os.Hostname()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(app.NewRoomManager()),
		Policy:   app.SimplePolicy{},
		Rooms:    roomSvc,
		Ledger:   led,
		Bus:      bus,
		Metrics:  m,
		Retry: orch.Retry{
			Attempts: cfg.Ledger.RetryAttempts,
			Initial:  cfg.Ledger.RetryDelay,
			Max:      cfg.Ledger.RetryMaxDelay,
		},
		Origin: fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
	}

	go func() {
		if err := o.ConsumeNotes(ctx); err != nil {
			log.Error().Err(err).Msg("note events consumer stopped")
		}
	}()

	r := router.SetupRouter(ctx, cfg, &router.Services{
		DB:       db,
		Orch:     o,
		Rooms:    roomSvc,
		Notes:    notes.NewService(db, roomSvc),
		Billing:  billingSvc,
		Ledger:   led,
		Closures: closure.NewService(db, clk, loc),
		Issuer:   auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		Metrics:  m,
		ICE:      ice,
		Location: loc,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("origin", o.Origin).Msg("Consult server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
