package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/config"
	"github.com/princinho/eldercarebackend/controllers"
	"github.com/princinho/eldercarebackend/database"
	"github.com/princinho/eldercarebackend/logging"
	"github.com/princinho/eldercarebackend/metrics"
	"github.com/princinho/eldercarebackend/ratelimit"
	"github.com/princinho/eldercarebackend/services"
	"github.com/princinho/eldercarebackend/storage"
	"github.com/princinho/eldercarebackend/store"
	"github.com/princinho/eldercarebackend/utils"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

const (
	Version = "0.1.0"
	appName = "eldercare-server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Elder care platform API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), seedAdminCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var port, logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	return cmd
}

func seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the ADMIN_EMAIL account if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			app, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.close()

			return utils.SeedAdminUser(ctx, app.users, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName, log)
		},
	}
}

// app is the composition root: every long-lived dependency of the server.
type app struct {
	log       *zap.Logger
	mongo     *mongo.Client
	redis     *redis.Client
	avatars   storage.AvatarStore
	maxUpload int64 // zero when uploads are disabled
	metrics   *metrics.Metrics
	limiter   ratelimit.Limiter
	tokens    *auth.TokenIssuer
	auth      *services.AuthService
	users     *services.UserService
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log, metrics: metrics.New()}

	client, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoTimeout, log)
	if err != nil {
		return nil, err
	}
	a.mongo = client

	userStore := store.NewMongoUserStore(client.Database(cfg.DatabaseName), cfg.MongoTimeout)
	if err := userStore.EnsureIndexes(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.tokens, err = auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		a.close()
		return nil, err
	}

	rateCfg := ratelimit.Config{Limit: cfg.LoginRateLimit, Window: cfg.LoginRateWindow}
	if cfg.RedisURL != "" {
		a.redis, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.limiter = ratelimit.NewRedisLimiter(a.redis, rateCfg, "eldercare:auth")
		log.Info("using redis rate limiter")
	} else {
		a.limiter = ratelimit.NewMemoryLimiter(rateCfg)
		log.Info("using in-process rate limiter")
	}

	a.avatars, err = storage.New(ctx, cfg.Avatar)
	if err != nil {
		a.close()
		return nil, err
	}
	var validator *storage.FileValidator
	if a.avatars != nil {
		validator = storage.NewImageValidator(cfg.Avatar)
		a.maxUpload = validator.MaxSize()
		log.Info("avatar uploads enabled", zap.String("backend", cfg.Avatar.Backend))
	}

	deps := services.Deps{
		Users:     userStore,
		Hasher:    auth.NewBcryptHasher(cfg.BcryptCost),
		Tokens:    a.tokens,
		Emails:    services.EmailNormalizer{CaseSensitive: cfg.EmailCaseSensitive},
		Avatars:   a.avatars,
		Validator: validator,
		Log:       log,
		Metrics:   a.metrics,
	}
	a.auth = services.NewAuthService(deps)
	a.users = services.NewUserService(deps)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("error closing redis", zap.Error(err))
		}
	}
	if c, ok := a.avatars.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("error closing avatar storage", zap.Error(err))
		}
	}
	if a.mongo != nil {
		database.Disconnect(a.mongo, a.log)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.AdminEmail != "" {
		if err := utils.SeedAdminUser(ctx, a.users, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName, log); err != nil {
			return err
		}
	}

	router := controllers.NewRouter(&controllers.Server{
		Auth:           a.auth,
		Users:          a.users,
		Tokens:         a.tokens,
		Limiter:        a.limiter,
		RateWindow:     cfg.LoginRateWindow,
		Metrics:        a.metrics,
		Log:            log,
		Limits:         utils.QueryLimits{Default: cfg.DefaultQueryLimit, Max: cfg.MaxQueryLimit},
		MaxUploadBytes: a.maxUpload,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
