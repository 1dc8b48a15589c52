package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"wallet2bank/internal/postgres"
	"wallet2bank/internal/wallet/client"
	"wallet2bank/internal/wallet/config"
	"wallet2bank/internal/wallet/db"
	"wallet2bank/internal/wallet/httpapi"
	"wallet2bank/internal/wallet/service"
	"wallet2bank/internal/wallet/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Initialize database connection pool
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()
	log.Println("database connection pool initialized")

	// Initialize transaction cache. A broken cache is not fatal: the
	// store degrades to the durable repository.
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := cache.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable, running without cache: %v", err)
	}

	// Create repositories and the saga service
	wallets := db.NewWalletRepository(pool)
	transactions := store.New(db.NewTransactionRepository(pool), cache, cfg.Redis.TTL)
	bank := client.NewBankClient(cfg.Bank.BaseURL, cfg.SharedSecret, cfg.Bank.Retry, cfg.Bank.RequestTimeout)
	txManager := postgres.NewTransactionManager(pool)
	svc := service.New(wallets, transactions, bank, txManager)
	log.Println("wallet services initialized")

	// Background reconciliation of UNKNOWN transactions
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-reconcileCtx.Done():
				return
			case <-ticker.C:
				resolved, err := svc.ReconcileUnknown(reconcileCtx)
				if err != nil {
					log.Printf("reconciliation pass failed: %v", err)
					continue
				}
				if resolved > 0 {
					log.Printf("reconciliation resolved %d transactions", resolved)
				}
			}
		}
	}()

	handler := httpapi.NewHandler(svc, cfg.SharedSecret, cfg.FreshnessWindow)
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpapi.NewRouter(handler),
	}

	go func() {
		log.Printf("wallet-service HTTP server starting on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down wallet-service...")
	stopReconcile()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Printf("closing redis client: %v", err)
	}
	log.Println("wallet-service stopped")
}
