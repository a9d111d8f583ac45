package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-verify/internal/auth"
	"github.com/example/face-verify/internal/cache"
	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/extractor"
	"github.com/example/face-verify/internal/grpcclient"
	"github.com/example/face-verify/internal/handlers"
	"github.com/example/face-verify/internal/repository"
	"github.com/example/face-verify/internal/store"
	"github.com/example/face-verify/internal/usecase"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// application is the wired service shared by the serve, enroll and verify commands.
type application struct {
	uc      *usecase.VerificationUseCase
	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	client, conn, err := grpcclient.DialExtractor(cfg.ExtractorAddr, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { conn.Close() })
	pool := extractor.NewPool(client, cfg.ExtractorWorkers, cfg.ExtractorTimeout, logger)

	var db *gorm.DB
	if cfg.DatabaseDSN != "" {
		if db, err = initDatabase(ctx, cfg.DatabaseDSN, logger); err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		})
	}

	var resultCache cache.Cache = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err := initRedis(redisCtx, cfg.RedisAddr)
		redisCancel()
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { redisClient.Close() })
		resultCache = cache.NewRedisCache(redisClient)
	}

	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreFile:
		fs, err := store.NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		st = fs
	case config.StoreRedis:
		st = store.NewRedisStore(resultCache, cfg.RedisKey, logger)
	case config.StorePostgres:
		pg := store.NewPostgresStore(db, logger)
		if err := pg.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate reference table: %w", err)
		}
		st = pg
	case config.StoreMemory:
		st = store.NewMemoryStore()
	default:
		return nil, config.ErrInvalidStoreBackend
	}

	var repo usecase.VerificationRepository
	if db != nil {
		r := repository.NewVerificationRepository(db)
		if err := r.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate verification logs: %w", err)
		}
		repo = r
	}

	app.uc = usecase.NewVerificationUseCase(
		store.Instrument(st, cfg.StoreBackend),
		pool,
		repo,
		resultCache,
		logger,
		usecase.WithThreshold(cfg.MatchThreshold),
		usecase.WithDimension(cfg.DescriptorDimension),
		usecase.WithResultTTL(cfg.ResultTTL),
	)
	logger.Info("verification service ready",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("extractor_addr", cfg.ExtractorAddr),
		zap.Float64("match_threshold", cfg.MatchThreshold),
		zap.Bool("audit_log", repo != nil))

	ok = true
	return app, nil
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	setupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	app, err := buildApplication(setupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	var authMiddleware gin.HandlerFunc
	if cfg.AuthEnabled() {
		authMiddleware = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}
	handlers.RegisterRoutes(r, app.uc, authMiddleware)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face verification API listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("auth", cfg.AuthEnabled()))
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	httpLogger := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		httpLogger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Error("failed to connect to database", zap.Error(err))
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
