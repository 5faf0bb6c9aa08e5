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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/notify"
	"retailpos/backend/internal/observability"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/guard"
	"retailpos/backend/internal/store/memory"
	pgstore "retailpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Pool{MaxOpenConns: cfg.DBMaxOpenConns, MaxIdleConns: cfg.DBMaxIdleConns})
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(); err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.DefaultWarehouseID, logger)
		logger.Info("repository: in-memory")
	}

	var carts store.CartRepository = memory.NewCartRepository()
	if cfg.RedisAddr != "" {
		redisCarts := cache.NewRedisCartRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CartTTL)
		if err := redisCarts.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, keeping carts in memory", zap.Error(err))
		} else {
			carts = redisCarts
			closers = append(closers, redisCarts.Close)
			logger.Info("carts: redis")
		}
	} else {
		logger.Info("carts: in-memory")
	}

	notifiers := notify.Fanout{notify.NewLogNotifier(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		notifiers = append(notifiers, kafka)
		closers = append(closers, kafka.Close)
		logger.Info("notifications: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	svc := service.New(service.Deps{
		Repo:     repo,
		Stock:    guard.NewStockLedger(repo, guard.Settings{}, logger),
		Carts:    carts,
		Notifier: notifiers,
		Logger:   logger,
		Settings: service.Settings{
			DefaultWarehouseID:    cfg.DefaultWarehouseID,
			MaxFrozen:             cfg.MaxFrozenOrders,
			StepTimeout:           cfg.SagaStepTimeout,
			VoucherValidityMonths: cfg.VoucherValidity,
		},
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, repo)
	if err := auth.Preload(ctx); err != nil {
		logger.Warn("load users failed, retrying on first login", zap.Error(err))
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           otelhttp.NewHandler(api.Handler(), "retailpos"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// validateSecurityConfig only enforces strength in production; development
// runs accept the seeded defaults.
func validateSecurityConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.AppEnv != "production" {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated-digit, sequential and well-known PINs.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"121212": true, "112233": true, "123123": true, "159753": true, "102030": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
