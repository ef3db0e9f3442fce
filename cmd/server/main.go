package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/claim"
	"github.com/sbaj179/School-Connect-2/internal/config"
	"github.com/sbaj179/School-Connect-2/internal/db"
	internalhttp "github.com/sbaj179/School-Connect-2/internal/http"
	"github.com/sbaj179/School-Connect-2/internal/identity"
	"github.com/sbaj179/School-Connect-2/internal/ratelimit"
	"github.com/sbaj179/School-Connect-2/internal/repository"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connection failed")
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close error")
			}
		}()
	}

	var counter ratelimit.Counter
	if redisClient != nil {
		counter = ratelimit.NewRedisCounter(redisClient)
	} else {
		counter = ratelimit.NewMemoryCounter()
	}
	limiter := ratelimit.New(counter, cfg.ClaimRateLimit, cfg.ClaimRateWindow)

	store := repository.NewStore(pool)
	provider := identity.NewPG(pool, cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	claims := claim.NewService(store, provider, limiter)
	server := internalhttp.NewServer(cfg, store, provider, claims, redisClient)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("school-connect listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
}
