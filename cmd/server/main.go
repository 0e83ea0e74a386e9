package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/movie-catalog/internal/auth"
	"github.com/Clark-Hu/movie-catalog/internal/config"
	httpserver "github.com/Clark-Hu/movie-catalog/internal/http"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/review"
	"github.com/Clark-Hu/movie-catalog/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Logger()
		bootLogger.Fatal().Err(err).Msg("config error")
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Caller: cfg.Development(),
	})
	logger := logging.Component("movie-catalog")

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.OptionsFromConfig(cfg, logging.Logger()))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()

	if err := metrics.RegisterPoolStats(prometheus.DefaultRegisterer, st); err != nil {
		logger.Fatal().Err(err).Msg("register pool metrics")
	}

	// Without Redis tokens stay valid until expiry and logout is not offered.
	var denylist auth.Denylist
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(dbCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
		}
		defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)
		denylist = auth.NewRedisDenylist(rdb)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("token revocation enabled")
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLSecs)*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("init token codec")
	}
	logger.Info().Dur("token_ttl", codec.TTL()).Msg("token codec ready")
	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("init password hasher")
	}

	repo := repository.New(st)
	authSvc, err := auth.NewService(repo.Users, hasher, codec, denylist, logging.Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("init auth service")
	}

	server := httpserver.New(cfg, st, repo, httpserver.Services{
		Auth:   authSvc,
		Guard:  auth.NewGuard(codec, denylist, logging.Logger()),
		Ledger: review.NewLedger(repo.Reviews, logging.Logger()),
	}, logging.Component("http"))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}
