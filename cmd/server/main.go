package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sanjoseboots/backend/internal/cache"
	"sanjoseboots/backend/internal/config"
	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/httpapi"
	"sanjoseboots/backend/internal/logger"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/service"
	"sanjoseboots/backend/internal/store"
	"sanjoseboots/backend/internal/store/memory"
	"sanjoseboots/backend/internal/store/migrations"
	pgstore "sanjoseboots/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		closers = append(closers, pg.Close)
		if cfg.RunMigrations {
			if err := migrations.Up(pg.DB(), log); err != nil {
				log.Fatal("migrations failed", zap.Error(err))
			}
		}
		if err := ensureAdmin(ctx, pg, os.Getenv("SEED_ADMIN_PASSWORD")); err != nil {
			log.Fatal("bootstrap admin failed", zap.Error(err))
		}
		repo = pg
		log.Info("repository ready", zap.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded()
		log.Info("repository ready", zap.String("backend", "memory"))
	}

	opts := service.Options{
		TicketRetries:    cfg.TicketRetries,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		ReportCacheTTL:   cfg.ReportCacheTTL,
		LowStockFallback: cfg.LowStockFallback,
		Reports:          cache.NewMemoryReportCache(),
		Logger:           log,
	}
	if opts.Location, err = cfg.Location(); err != nil {
		log.Fatal("invalid store timezone", zap.Error(err))
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		reports := cache.NewRedisReportCache(client, "")
		if err := reports.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process idempotency and report cache", zap.Error(err))
			_ = client.Close()
		} else {
			opts.Idempotency = cache.NewRedisIdempotencyStore(client, "")
			opts.Reports = reports
			closers = append(closers, client.Close)
			log.Info("cache ready", zap.String("backend", "redis"))
		}
	}

	taxRate, err := cfg.TaxRateDecimal()
	if err != nil {
		log.Fatal("invalid tax rate", zap.Error(err))
	}
	calc, err := pricing.NewCalculator(taxRate)
	if err != nil {
		log.Fatal("invalid tax rate", zap.Error(err))
	}

	svc := service.New(repo, calc, opts)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("POS backend listening", zap.String("addr", cfg.Address()), zap.String("tax_rate", taxRate.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if !cfg.IsProduction() {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the POS front end in production")
	}
	return nil
}

// ensureAdmin creates the first administrator on an empty database. It does
// nothing once an "admin" account exists.
func ensureAdmin(ctx context.Context, users store.Users, password string) error {
	_, err := users.FindUserByUsername(ctx, "admin")
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if len(strings.TrimSpace(password)) < 8 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 8 characters to create the admin account")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = users.CreateUser(ctx, domain.UserAccount{
		Username:     "admin",
		PasswordHash: string(hash),
		FullName:     "Administrador",
		RoleName:     domain.RoleAdmin,
	})
	return err
}
