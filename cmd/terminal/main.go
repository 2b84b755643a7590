package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"odelivery/terminal/internal/cache"
	"odelivery/terminal/internal/config"
	"odelivery/terminal/internal/dispatch"
	"odelivery/terminal/internal/gateway"
	"odelivery/terminal/internal/httpapi"
	"odelivery/terminal/internal/identity"
	"odelivery/terminal/internal/metrics"
	"odelivery/terminal/internal/printer"
	"odelivery/terminal/internal/service"
	"odelivery/terminal/internal/store"
	"odelivery/terminal/internal/store/memory"
	pgstore "odelivery/terminal/internal/store/postgres"
	"odelivery/terminal/internal/telemetry"
)

func main() {
	// Missing .env is fine; env vars may come from the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	docs := cache.DocumentCache(cache.NoopDocumentCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDocumentCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop document cache", err)
		} else {
			docs = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("document cache: redis")
		}
	} else {
		log.Println("document cache: noop")
	}

	device := identity.GetOrCreate(ctx, repo)
	log.Printf("device identity: %s", device.ID)

	debugLog := telemetry.NewLog(cfg.DebugLogCapacity)
	m := metrics.New()
	gw := gateway.New(device.ID, debugLog, m)

	spool, err := printer.NewSpool(cfg.SpoolDir)
	if err != nil {
		log.Fatalf("spool setup: %v", err)
	}

	var print dispatch.PrintFunc = spool.Print
	svc := service.New(repo, gw, docs, m, debugLog, device, print, time.Duration(cfg.PollIntervalSeconds)*time.Second)
	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := svc.StartPolling(); err != nil {
		log.Printf("polling not started: %v (waiting for setup via the UI)", err)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m.Handler())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		log.Printf("terminal API listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		svc.StopPolling()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("terminal stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit, sequential,
// or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
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
