// @title        Users API
// @version      1.0
// @description  User accounts, JWT authentication and role-based access.
// @BasePath     /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/echos/users-api/docs"
	"github.com/echos/users-api/internal/api"
	"github.com/echos/users-api/internal/core/ports"
	"github.com/echos/users-api/internal/core/service"
	"github.com/echos/users-api/internal/infrastructure/config"
	mongodb "github.com/echos/users-api/internal/infrastructure/db/mongo"
	rediscache "github.com/echos/users-api/internal/infrastructure/db/redis"
	apphttp "github.com/echos/users-api/internal/infrastructure/http"
	"github.com/echos/users-api/internal/infrastructure/security"
	"github.com/echos/users-api/pkg/logger"
)

var version = "dev"

func main() {
	envErr := godotenv.Load()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger level comes from config, so fall back to a bare one.
		fallback := logger.New(logger.Options{Pretty: true})
		fallback.Fatal().Err(err).Msg("load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "users-api",
		Env:     cfg.Env,
	})
	if envErr != nil {
		log.Debug().Msg("no .env file found; relying on existing environment")
	}

	client, users, err := mongodb.Setup(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("init user directory")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	var cache ports.SubjectCache
	ops := apphttp.OpsDeps{Version: version, Mongo: client, Docs: cfg.DocsEnabled}
	if cfg.CacheEnabled() {
		rdb, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init subject cache")
		}
		defer rdb.Close()
		cache = rediscache.NewSubjectCache(rdb, cfg.Redis.SubjectTTL)
		ops.Redis = rdb
	} else {
		log.Info().Msg("subject cache disabled")
	}

	issuer, err := security.NewJWTIssuer(security.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init token issuer")
	}
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)

	authService := service.NewAuthService(users, hasher, issuer, cache, service.AuthOptions{
		BindUserAgent:       cfg.Auth.BindUserAgent,
		RevalidateOnRefresh: cfg.Auth.RevalidateOnRefresh,
	}, log.With().Str("component", "auth").Logger())
	userService := service.NewUserService(users, hasher, cache, log.With().Str("component", "users").Logger())

	e := api.NewRouter(api.Deps{
		Auth:        authService,
		Users:       userService,
		Tokens:      issuer,
		Log:         log,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})
	apphttp.RegisterOps(e, ops)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("users api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	waitForShutdown(srv, log)
}

func waitForShutdown(srv *http.Server, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
}
