package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkosyakov/authcore/internal/cache"
	"github.com/mkosyakov/authcore/internal/db"
	"github.com/mkosyakov/authcore/internal/handlers"
	"github.com/mkosyakov/authcore/internal/logger"
	"github.com/mkosyakov/authcore/internal/rbac"
	"github.com/mkosyakov/authcore/internal/repository/postgres"
	"github.com/mkosyakov/authcore/internal/service/auth"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	cron    *cron.Cron
	cleanup func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db: %w", err)
	}

	revocationCache, err := cache.New(cache.Config{
		RedisURL: c.RedisURL,
		UserTTL:  c.UserCacheTTL,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while connecting to redis: %w", err)
	}

	storage := postgres.NewStorage(pool)

	resolver, err := rbac.NewResolver(rbac.DefaultTable(), storage.Grant())
	if err != nil {
		return nil, fmt.Errorf("error while creating permission resolver: %w", err)
	}

	tokenManager, err := auth.NewTokenManager(
		auth.TokenManagerConfig{
			SecretKey:  c.SecretKey,
			Issuer:     c.Issuer,
			Audience:   c.Audience,
			AccessTTL:  c.AccessTokenTTL,
			RefreshTTL: c.RefreshTokenTTL,
		},
		storage.Refresh(),
		auth.CachedUserSource{Cache: revocationCache, Users: storage.User()},
		revocationCache,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	authService, err := auth.NewService(
		auth.Config{DemoToken: c.DemoToken},
		tokenManager,
		storage.User(),
		resolver,
		revocationCache,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service: %w", err)
	}

	// Hourly ledger sweep; expired rows linger one refresh TTL for forensics
	sweeper, err := auth.NewSweeper(storage.Refresh(), c.RefreshTokenTTL, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating sweeper: %w", err)
	}
	cronRunner := cron.New()
	if err := sweeper.Schedule(cronRunner); err != nil {
		return nil, fmt.Errorf("error while scheduling sweeper: %w", err)
	}

	mux := handlers.NewRouter(authService, handlers.RouterConfig{}, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Logger:     log,
		cron:       cronRunner,
		cleanup: func() {
			_ = revocationCache.Close()
			pool.Close()
		},
	}, nil
}

// Run starts the http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	s.cron.Start()
	defer s.cron.Stop()
	defer s.cleanup()

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	s.Logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
