package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
	"github.com/rl1809/catalog/internal/port"
)

func main() {
	app := &cli.App{
		Name:  "stress_test",
		Usage: "race concurrent purchases against one inventory ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Value: "memory", Usage: "ledger backend: memory or redis"},
			&cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", EnvVars: []string{"REDIS_ADDR"}},
			&cli.Int64Flag{Name: "product-id", Value: 900001},
			&cli.Int64Flag{Name: "stock", Value: 20},
			&cli.IntFlag{Name: "requests", Value: 50},
			&cli.Int64Flag{Name: "quantity", Value: 1, Usage: "units per purchase"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("stress test failed")
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()
	productID := c.Int64("product-id")
	initialStock := c.Int64("stock")
	totalRequests := c.Int("requests")
	quantity := c.Int64("quantity")

	var ledger port.LedgerRepository
	switch c.String("backend") {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: c.String("redis-addr")})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "failed to connect redis")
		}
		defer rdb.Close()

		adapter := storage.NewRedisAdapter(rdb)
		if err := adapter.SetStock(ctx, productID, initialStock); err != nil {
			return errors.Wrap(err, "failed to set stock")
		}
		ledger = adapter
	case "memory":
		mem := storage.NewMemoryLedger()
		if _, err := mem.Create(ctx, productID, initialStock); err != nil {
			return err
		}
		ledger = mem
	default:
		return errors.Errorf("unknown backend %q", c.String("backend"))
	}

	inventoryService := service.NewInventoryService(ledger, storage.NewMemoryIdempotencyGuard(time.Minute), totalRequests)
	defer inventoryService.Close()

	// Drain the purchase queue in background
	go func() {
		for range inventoryService.GetPurchaseQueue() {
		}
	}()

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := inventoryService.Purchase(ctx, uuid.NewString(), productID, quantity)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.WithError(err).Warn("purchase failed")
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int64(successCount.Load())
	expectedSuccess := initialStock / quantity
	if expectedSuccess > int64(totalRequests) {
		expectedSuccess = int64(totalRequests)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Backend:          %s\n", c.String("backend"))
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d x %d\n", totalRequests, quantity)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOutCount.Load())
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	inv, err := ledger.Get(ctx, productID)
	if err != nil {
		return err
	}
	fmt.Printf("Final Stock:      %d (version %d)\n", inv.Quantity, inv.Version)

	if success != expectedSuccess {
		return errors.Errorf("expected %d successful purchases, got %d", expectedSuccess, success)
	}
	if want := initialStock - success*quantity; inv.Quantity != want {
		return errors.Errorf("expected final stock %d, got %d", want, inv.Quantity)
	}
	fmt.Println("PASS: no overselling, ledger matches successful purchases")
	return nil
}
