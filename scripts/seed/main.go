package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/app"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

const seedActor int64 = 1

func main() {
	ctx := shared.ContextWithActor(context.Background(), seedActor)

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg, "seed")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()

	services := app.NewServices(cfg, pool, redisClient, logger)

	fmt.Println("→ Seeding chart of accounts...")
	accounts, err := services.Accounting.InitChart(ctx)
	if err != nil {
		log.Fatalf("seed chart: %v", err)
	}
	fmt.Printf("  %d accounts created\n", len(accounts))

	fmt.Println("→ Seeding fiscal year...")
	if err := seedFiscalYear(ctx, services); err != nil {
		log.Fatalf("seed fiscal year: %v", err)
	}

	existing, err := services.Funds.ListFunds(ctx, false)
	if err != nil {
		log.Fatalf("list funds: %v", err)
	}
	if len(existing) > 0 {
		fmt.Println("✓ Funds already present, skipping sample data")
		return
	}

	fmt.Println("→ Seeding funds...")
	bankID, err := seedFunds(ctx, services)
	if err != nil {
		log.Fatalf("seed funds: %v", err)
	}

	fmt.Println("→ Seeding check book...")
	if _, err := services.Operations.RegisterCheckBook(ctx, instruments.CheckBookInput{
		FundID:      bankID,
		Serial:      "A-1001",
		StartNumber: 1,
		EndNumber:   50,
	}); err != nil {
		log.Fatalf("seed check book: %v", err)
	}

	fmt.Println("→ Seeding customers...")
	if err := seedCustomers(ctx, services); err != nil {
		log.Fatalf("seed customers: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedFiscalYear(ctx context.Context, services *app.Services) error {
	year := time.Now().Year()
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	_, err := services.Accounting.OpenFiscalYear(ctx, year, start, end)
	if errors.Is(err, shared.ErrValidation) {
		fmt.Printf("  fiscal year %d already open\n", year)
		return nil
	}
	return err
}

func seedFunds(ctx context.Context, services *app.Services) (int64, error) {
	inputs := []funds.FundInput{
		{Name: "Main cash box", Kind: funds.KindCash, InitialBalance: decimal.NewFromInt(5_000_000), IsDefault: true},
		{Name: "Operating account", Kind: funds.KindBank, BankName: "Mellat", AccountNumber: "1020304050", InitialBalance: decimal.NewFromInt(50_000_000), IsDefault: true},
		{Name: "Office petty cash", Kind: funds.KindPettyCash, InitialBalance: decimal.NewFromInt(1_000_000), IsDefault: true},
	}
	var bankID int64
	for _, in := range inputs {
		fund, err := services.Funds.CreateFund(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", in.Name, err)
		}
		if fund.Kind == funds.KindBank {
			bankID = fund.ID
		}
	}
	return bankID, nil
}

func seedCustomers(ctx context.Context, services *app.Services) error {
	customers := []counterparty.CustomerInput{
		{Name: "Arman Trading", Phone: "09120000001"},
		{Name: "Pars Supplies", Phone: "09120000002"},
		{Name: "Walk-in customer"},
	}
	for _, in := range customers {
		if _, err := services.Customers.CreateCustomer(ctx, in); err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
	}
	return nil
}
