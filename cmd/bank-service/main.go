package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet2bank/internal/bank/client"
	"wallet2bank/internal/bank/config"
	"wallet2bank/internal/bank/db"
	"wallet2bank/internal/bank/httpapi"
	"wallet2bank/internal/bank/messaging"
	"wallet2bank/internal/bank/service"
	"wallet2bank/internal/postgres"
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

	// Connect to RabbitMQ and declare the settlement topology
	conn, channel, err := messaging.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("failed to initialize RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer channel.Close()
	producer := messaging.NewProducer(channel, cfg.RabbitMQ)

	// Create repositories and the settlement service
	accounts := db.NewAccountRepository(pool)
	transactions := db.NewTransactionRepository(pool)
	wallet := client.NewWalletClient(cfg.Wallet.BaseURL, cfg.SharedSecret, cfg.Wallet.Retry, cfg.Wallet.RequestTimeout)
	txManager := postgres.NewTransactionManager(pool)
	svc := service.New(accounts, transactions, producer, wallet, txManager, cfg.MaxSettleRetries)
	log.Println("bank services initialized")

	// Start the settlement consumer on its own connection
	consumer, err := messaging.NewConsumer(cfg.RabbitMQ, svc)
	if err != nil {
		log.Fatalf("failed to initialize settlement consumer: %v", err)
	}
	defer consumer.Close()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		if err := consumer.Start(consumeCtx); err != nil {
			log.Fatalf("settlement consumer failed: %v", err)
		}
	}()

	// Sweep records stuck in PROCESSING back onto the queue
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.StaleSweep.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				requeued, err := svc.RequeueStale(sweepCtx, cfg.StaleSweep.OlderThan)
				if err != nil {
					log.Printf("stale sweep failed: %v", err)
					continue
				}
				if requeued > 0 {
					log.Printf("stale sweep requeued %d transactions", requeued)
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
		log.Printf("bank-service HTTP server starting on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down bank-service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	stopSweep()
	stopConsumer()
	log.Println("bank-service stopped")
}
