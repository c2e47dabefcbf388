package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/medimage-insight/internal/application"
	appanalysis "github.com/bryanwahyu/medimage-insight/internal/application/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/config"
	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/domain/history"
	"github.com/bryanwahyu/medimage-insight/internal/infra/ai/openai"
	"github.com/bryanwahyu/medimage-insight/internal/infra/ai/prompt"
	"github.com/bryanwahyu/medimage-insight/internal/infra/ai/stub"
	"github.com/bryanwahyu/medimage-insight/internal/infra/auth"
	mysqlp "github.com/bryanwahyu/medimage-insight/internal/infra/db/mysql"
	"github.com/bryanwahyu/medimage-insight/internal/infra/db/postgres"
	"github.com/bryanwahyu/medimage-insight/internal/infra/db/sqlite"
	"github.com/bryanwahyu/medimage-insight/internal/infra/events/rabbitmq"
	"github.com/bryanwahyu/medimage-insight/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/medimage-insight/internal/infra/storage"
	"github.com/bryanwahyu/medimage-insight/internal/logger"
	"github.com/bryanwahyu/medimage-insight/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logger.WithError(err).Fatal("config load error")
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)

	ctx := context.Background()
	clock := application.SystemClock{}
	checkers := map[string]middleware.HealthChecker{}

	// init history store
	var store history.Repository
	if cfg.PersistenceEnabled() {
		repo, db, err := openStore(ctx, cfg, clock)
		if err != nil {
			logger.WithError(err).WithField("driver", cfg.Database.Driver).Fatal("database init error")
		}
		defer db.Close()
		store = repo
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	shape, err := domain.ParseShape(cfg.Analysis.DefaultShape, domain.ShapeStructured)
	if err != nil {
		logger.WithError(err).Fatal("config load error")
	}

	model := newModelClient(cfg)
	svc := &appanalysis.Service{
		Auth:    newAuthProvider(cfg),
		Model:   model,
		Prompts: prompt.Library{},
		Store:   store,
		Clock:   clock,
		Options: appanalysis.Options{
			PersistenceEnabled: cfg.PersistenceEnabled(),
			AuthRequired:       true,
			DefaultShape:       shape,
		},
	}

	// init minio, opsional
	if cfg.Minio.Enabled {
		archive, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.WithError(err).Fatal("minio init error")
		}
		svc.Archive = archive
		checkers["storage"] = archive
	}

	// init rabbitmq, opsional
	if cfg.RabbitMQ.URL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			logger.WithError(err).Fatal("rabbitmq init error")
		}
		defer pub.Close()
		svc.Events = pub
	}

	opts := httpserver.Options{
		Checkers:       checkers,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if cfg.Analysis.Demo.Enabled {
		opts.Demo = &appanalysis.Service{
			Model:   model,
			Prompts: prompt.Library{},
			Clock:   clock,
			Options: appanalysis.DemoOptions(),
		}
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.RateLimit.RequestsPerSecond > 0 {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		opts.RateLimiter = rl
		go sweepLimiter(sweepCtx, rl)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(svc, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":        addr,
			"driver":      cfg.Database.Driver,
			"provider":    cfg.Model.Provider,
			"persistence": cfg.PersistenceEnabled(),
			"demo":        cfg.Analysis.Demo.Enabled,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}

func openStore(ctx context.Context, cfg *config.Config, clock application.Clock) (history.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return sqlite.Open(ctx, cfg.Database.Path, clock)
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return mysqlp.NewHistoryRepository(db, clock), db, nil
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return postgres.NewHistoryRepository(db), db, nil
	}
}

func newModelClient(cfg *config.Config) ai.Client {
	if cfg.Model.Provider == "stub" {
		logger.Warn("using stub model provider, results are synthetic")
		return stub.NewClient()
	}
	return openai.NewClient(openai.Options{
		Model:      cfg.Model.Name,
		BaseURL:    cfg.Model.BaseURL,
		MaxTokens:  cfg.Model.MaxTokens,
		Detail:     cfg.Model.Detail,
		Timeout:    cfg.Model.Timeout,
		Credential: openai.FromEnv(cfg.Model.APIKeyEnv),
	})
}

func newAuthProvider(cfg *config.Config) auth.Chain {
	var chain auth.Chain
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience))
	}
	if len(cfg.Auth.APIKeys) > 0 {
		chain = append(chain, auth.NewAPIKeyProvider(cfg.Auth.APIKeys))
	}
	if len(chain) == 0 {
		logger.Warn("no auth provider configured, every analysis request will be rejected")
	}
	return chain
}

func sweepLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Sweep(); n > 0 {
				logger.WithField("evicted", n).Debug("rate limiter sweep")
			}
		}
	}
}
