package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/adapter/storage"
	"github.com/rl1809/armory-atlas/internal/config"
	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

const (
	itemCount     = 20
	totalRequests = 50
	itemSize      = "M"
)

// Fires totalRequests concurrent borrows at a product with itemCount items and
// checks that exactly itemCount of them succeed and no item is lent twice.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer closeStore()
	if err := store.CreateAll(ctx); err != nil {
		logger.Fatal("create schema", zap.Error(err))
	}

	lending := service.NewLendingService(store)
	catalog := service.NewCatalogService(store, logger)

	// fresh product and users so reruns do not interfere
	run := uuid.NewString()[:8]
	productID := "STRESS-" + run
	if _, err := lending.RegisterProduct(ctx, domain.Product{ID: productID, Name: "Stress boot " + run, Type: "Boots"}); err != nil {
		logger.Fatal("register product", zap.Error(err))
	}
	for i := 0; i < itemCount; i++ {
		if _, err := lending.RegisterItem(ctx, productID, itemSize, 1); err != nil {
			logger.Fatal("register item", zap.Error(err))
		}
	}
	ssns := make([]string, totalRequests)
	for i := range ssns {
		ssns[i] = fmt.Sprintf("stress-%s-%d", run, i)
		if _, err := lending.RegisterUser(ctx, domain.User{SSN: ssns[i], Name: "Stress " + run}); err != nil {
			logger.Fatal("register user", zap.Error(err))
		}
	}

	// Counters
	var successCount, outOfStockCount, failCount atomic.Int32
	var mu sync.Mutex
	lentTo := make(map[string]string)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(ssn string) {
			defer wg.Done()

			loan, err := lending.BorrowAny(ctx, ssn, productID, itemSize, time.Time{})
			switch {
			case err == nil:
				successCount.Add(1)
				mu.Lock()
				if prev, dup := lentTo[loan.ItemID]; dup {
					logger.Error("item lent twice",
						zap.String("item_id", loan.ItemID),
						zap.String("first", prev),
						zap.String("second", ssn))
				}
				lentTo[loan.ItemID] = ssn
				mu.Unlock()
			case errors.Is(err, domain.ErrItemAlreadyBorrowed):
				outOfStockCount.Add(1)
			default:
				failCount.Add(1)
				logger.Warn("borrow failed", zap.Error(err))
			}
		}(ssns[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	rejected := outOfStockCount.Load()
	failed := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Storage:          %s\n", cfg.Storage)
	fmt.Printf("Items:            %d\n", itemCount)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Borrowed:         %d\n", success)
	fmt.Printf("Out of stock:     %d\n", rejected)
	fmt.Printf("Failed:           %d\n", failed)
	fmt.Printf("Distinct items:   %d\n", len(lentTo))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	stock, err := catalog.StockForProductSize(ctx, productID, itemSize)
	if err != nil {
		logger.Fatal("read stock", zap.Error(err))
	}
	fmt.Printf("Final stock:      %d\n", stock)

	ok := int(success) == len(lentTo) && int(success)+stock == itemCount && failed == 0
	// BorrowAny skips items another transaction holds, so a borrower can see no
	// free item while stock remains; only over-lending is a failure.
	if ok && success == itemCount {
		fmt.Printf("PASS: all %d items lent exactly once\n", itemCount)
	} else if ok {
		fmt.Printf("PASS: %d items lent exactly once, %d skipped while locked\n", success, stock)
	} else {
		fmt.Println("FAIL: lending invariant violated")
		os.Exit(1)
	}
}
