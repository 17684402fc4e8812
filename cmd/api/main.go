package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/kasir/internal/api"
	"github.com/safar/kasir/internal/checkout"
	"github.com/safar/kasir/internal/config"
	"github.com/safar/kasir/internal/database"
	"github.com/safar/kasir/internal/events"
	"github.com/safar/kasir/internal/gateway"
	"github.com/safar/kasir/internal/metrics"
	"github.com/safar/kasir/internal/store"
	"github.com/safar/kasir/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS, database.Up)
		if err != nil {
			log.Fatalf("Run migrations: %v", err)
		}
		log.Printf("Applied %d migration(s)", len(applied))
	}

	st := store.New(db)
	rates := gateway.NewRateClient(cfg.Gateway.RateURL, cfg.Shop.BaseCurrency, cfg.Gateway.Timeout)
	barcodes := gateway.NewBarcodeClient(cfg.Gateway.BarcodeURL, cfg.Gateway.Timeout)
	serverMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer)

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()

	checkoutSvc := checkout.NewService(st, rates, cfg.Shop.BaseCurrency,
		checkout.WithPublisher(publisher),
		checkout.WithObserver(serverMetrics),
	)

	srv := api.NewServer(api.Deps{
		Catalog:          st,
		Ledger:           st,
		Checkout:         checkoutSvc,
		Rates:            rates,
		Barcodes:         barcodes,
		Metrics:          serverMetrics,
		Gatherer:         prometheus.DefaultGatherer,
		ProductListLimit: cfg.Shop.ProductListLimit,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s (base currency %s)", cfg.Server.Port, cfg.Shop.BaseCurrency)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Server stopped")
}
