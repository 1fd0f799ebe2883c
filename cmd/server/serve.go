package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/songbook/internal/config"
	"github.com/and161185/songbook/internal/csrf"
	"github.com/and161185/songbook/internal/limiter"
	"github.com/and161185/songbook/internal/migrate"
	"github.com/and161185/songbook/internal/pagecache"
	"github.com/and161185/songbook/internal/repository/postgres"
	"github.com/and161185/songbook/internal/server/httpserver"
	"github.com/and161185/songbook/internal/service"
	"github.com/and161185/songbook/internal/session"
	"github.com/and161185/songbook/internal/upload"
)

func serveCommand() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on start")
	return cmd
}

func newStore(cfg *config.Config) (upload.Store, error) {
	st := cfg.Storage
	switch st.Backend {
	case "s3":
		return upload.NewS3Store(upload.S3Config{
			Endpoint:  st.S3.Endpoint,
			Region:    st.S3.Region,
			Bucket:    st.S3.Bucket,
			AccessKey: st.S3.AccessKey,
			SecretKey: st.S3.SecretKey,
		})
	case "http":
		return upload.NewHTTPStore(st.BaseURL, st.AccessKey, st.Timeout), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", st.Backend)
}

func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (pagecache.Cache, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("page cache disabled")
		return pagecache.Nop{}, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c := pagecache.NewRedis(client, cfg.Redis.TTL, log)
	if err := c.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, func() { _ = client.Close() }, nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, runMigrations bool) error {
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
	)

	if runMigrations {
		if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	}

	dbs, err := postgres.NewRegistry(cfg.Database.PoolCache, nil)
	if err != nil {
		return err
	}
	defer dbs.Close()
	db, err := dbs.Get(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	cache, closeCache, err := newCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	users := postgres.NewUserRepo(db)
	sessions, err := session.NewProvider(session.Config{
		TTL:         cfg.Session.TTL,
		Secure:      cfg.Session.Secure,
		SignKey:     []byte(cfg.Session.SignKey),
		Generations: users,
	})
	if err != nil {
		return err
	}

	lim := limiter.NewPG(db.Pool, limiter.Policy{
		Window:   cfg.Login.Window,
		MaxFails: cfg.Login.MaxFails,
		BlockFor: cfg.Login.BlockFor,
	})
	clients, err := httpserver.NewClientLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, cfg.HTTP.MaxClients)
	if err != nil {
		return err
	}

	api := httpserver.New(httpserver.Deps{
		Log:      log,
		Sessions: sessions,
		CSRF: csrf.New(csrf.Config{
			TTL:      cfg.CSRF.TTL,
			HTTPOnly: cfg.CSRF.HTTPOnly,
			Secure:   cfg.CSRF.Secure,
		}),
		Accounts:         service.NewAccountService(users, lim, log),
		Songs:            service.NewSongService(postgres.NewSongRepo(db), cache, log),
		Uploads:          upload.NewGateway(store, log),
		RevalidateSecret: cfg.Revalidate.Secret,
		Limiter:          clients,
		Health: func(ctx context.Context) error {
			h, err := dbs.Get(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			return h.Ping(ctx)
		},
	})
	if cfg.Revalidate.Secret == "" {
		log.Warn("revalidate endpoint disabled: no secret configured")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
		_ = srv.Close()
	}
	log.Info("shutdown complete")
	return nil
}
