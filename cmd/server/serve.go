package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rl1809/catalog/internal/adapter/handler"
	"github.com/rl1809/catalog/internal/adapter/metrics"
	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/config"
	"github.com/rl1809/catalog/internal/core/service"
	"github.com/rl1809/catalog/internal/logging"
)

// loadConfig reads the environment and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := c.String("http-addr"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := c.String("grpc-addr"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	deps, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Initialize services
	productService := service.NewProductService(deps.products)
	reviewService := service.NewReviewService(deps.reviews)
	inventoryService := service.NewInventoryService(deps.ledger, deps.guard, cfg.QueueSize)

	// Start journal workers
	journal := metrics.InstrumentJournal(deps.journal)
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.RunJournalWorker(id, inventoryService.GetPurchaseQueue(), journal, deps.ledger)
		}(i)
	}
	log.WithField("count", cfg.WorkerCount).Info("started journal workers")

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.GRPCAddr)
	}
	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcHandler.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	// Start HTTP server
	httpHandler := handler.NewHTTPHandler(productService, reviewService, inventoryService)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Router(),
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	log.Info("HTTP server stopped")

	grpcHandler.Shutdown()
	log.Info("gRPC server stopped")

	// Close purchase queue and wait for workers
	inventoryService.Close()
	wg.Wait()
	log.Info("workers stopped")

	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := storage.OpenSQL(c.Context, cfg.SQLDriver, cfg.SQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		return err
	}
	log.WithField("driver", cfg.SQLDriver).Info("migrations applied")
	return nil
}
