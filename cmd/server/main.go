package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capslock/backend/internal/cache"
	"capslock/backend/internal/config"
	"capslock/backend/internal/httpapi"
	"capslock/backend/internal/inventory"
	"capslock/backend/internal/ledger"
	"capslock/backend/internal/notify"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/rowstore/memory"
	pgstore "capslock/backend/internal/rowstore/postgres"
	"capslock/backend/internal/sequence"
	"capslock/backend/internal/ticket"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store rowstore.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		store = pg
		closers = append(closers, pg.Close)
		log.Println("row store: postgres")
	} else {
		store = memory.NewSeeded()
		log.Println("row store: in-memory")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	var transport notify.Transport = notify.LogTransport{}
	if cfg.WhatsAppGatewayURL != "" {
		transport = notify.NewGatewayTransport(cfg.WhatsAppGatewayURL, cfg.WhatsAppGatewayToken)
		log.Println("wa transport: gateway")
	} else {
		log.Println("wa transport: log")
	}

	var alerter inventory.Alerter
	if telegram := notify.NewTelegramClient(cfg.TelegramBotToken, cfg.TelegramChatID); telegram.Enabled() {
		alerter = telegram
		log.Println("stock alerts: telegram")
	} else {
		log.Println("stock alerts: disabled")
	}

	ticketSeq := sequence.New(store, rowstore.SheetService, ticket.ColID, ticket.ColClaim)
	tickets := ticket.NewService(store, ticketSeq)

	saleSeq := sequence.New(store, rowstore.SheetTransactions, inventory.ColTxID, inventory.ColTxClaim)
	inv := inventory.NewService(store, saleSeq, alerter)

	reports := ledger.NewAggregator(store, reportCache, time.Duration(cfg.ReportTTLSeconds)*time.Second)
	dispatcher := notify.NewDispatcher(transport, tickets, cfg.Shop)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	auth.SeedUser("admin", cfg.AdminPassword, "admin")
	auth.SeedUser("operator", cfg.OperatorPassword, "operator")

	api := httpapi.New(tickets, inv, reports, dispatcher, auth, cfg.Shop, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("servis backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	return nil
}
