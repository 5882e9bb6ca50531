// Command server runs the session gateway: provider-backed messaging
// sessions, the realtime relay, the profile store and the payment ledger.
//
// @title       Session Gateway API
// @version     1.0
// @description Messaging-session gateway, realtime relay, profile store and payment ledger.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-session-gateway/internal/cache"
	"github.com/tbourn/go-session-gateway/internal/config"
	httpapi "github.com/tbourn/go-session-gateway/internal/http"
	"github.com/tbourn/go-session-gateway/internal/observability"
	"github.com/tbourn/go-session-gateway/internal/provider"
	"github.com/tbourn/go-session-gateway/internal/repo"
	"github.com/tbourn/go-session-gateway/internal/services"
	"github.com/tbourn/go-session-gateway/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const idempotencySweep = 15 * time.Minute

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	target := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		target = cfg.DBDSN
	}
	db, err := repo.Open(cfg.DBDriver, target)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open ledger database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate ledger database")
	}

	var store cache.Store
	if cfg.Redis.Addr != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "gateway:")
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("connect redis")
		}
		defer rs.Close()
		store = rs
	} else {
		log.Warn().Msg("REDIS_ADDR not set; profiles and QR codes are kept in process memory")
		store = cache.NewMemoryStore()
	}

	client := provider.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	payments := services.NewPaymentService(db, cfg.IdempotencyTTL)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Sessions: services.NewSessionService(client, store, cfg.QRCacheTTL),
		Profiles: services.NewProfileService(store, cfg.ProfileTTL),
		Payments: payments,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go sweepIdempotency(ctx, payments)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Str("provider", cfg.Provider.BaseURL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// sweepIdempotency drops expired idempotency records until ctx ends.
func sweepIdempotency(ctx context.Context, payments *services.PaymentService) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := payments.PurgeIdempotency(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency records purged")
			}
		}
	}
}
