package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/ordercash/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ordercash/internal/app"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  init-chart            create the standard chart of accounts
  reconcile             compare fund balance derivations (exit 10 on drift)
  rebuild               regenerate fund statements
  recalc                rebuild statements and persist balances
  recompute-customers   rebuild every customer balance
  enqueue <job>         enqueue reconcile or customers on the worker queue
  queue                 print default queue statistics
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fundID := fs.Int64("fund", 0, "fund id; zero selects every active fund")
	customerID := fs.Int64("customer", 0, "customer id for enqueue customers")
	jsonOut := fs.Bool("json", false, "print JSON")
	repair := fs.Bool("repair", false, "persist recomputed balances when enqueueing reconcile")
	if err := fs.Parse(rest); err != nil {
		return cli.ExitError
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return cli.ExitError
	}
	out := cli.Output{JSON: *jsonOut, Stdout: stdout, Stderr: stderr}

	switch cmd {
	case "enqueue", "queue":
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() { _ = jobsCLI.Close() }()
		if cmd == "queue" {
			stats, err := jobsCLI.InspectQueue()
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
				return cli.ExitError
			}
			_ = json.NewEncoder(stdout).Encode(stats)
			return cli.ExitOK
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(stderr, "enqueue: job name required (reconcile or customers)")
			return cli.ExitError
		}
		info, err := jobsCLI.Trigger(ctx, fs.Arg(0), cli.TriggerOptions{FundID: *fundID, CustomerID: *customerID, Repair: *repair})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
			return cli.ExitError
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return cli.ExitOK
	}

	logger := app.NewLogger(cfg, "ledgerctl")
	slog.SetDefault(logger)
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
		return cli.ExitError
	}
	defer pool.Close()
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect redis: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = redisClient.Close() }()

	services := app.NewServices(cfg, pool, redisClient, logger)
	ledger := &cli.LedgerCLI{Funds: services.Funds, Chart: services.Accounting, Customers: services.Customers}
	scope := cli.FundScope{FundID: *fundID}

	switch cmd {
	case "init-chart":
		return ledger.InitChartCommand(ctx, out)
	case "reconcile":
		return ledger.ReconcileCommand(ctx, scope, out)
	case "rebuild":
		return ledger.RebuildCommand(ctx, scope, false, out)
	case "recalc":
		return ledger.RebuildCommand(ctx, scope, true, out)
	case "recompute-customers":
		return ledger.RecomputeCustomersCommand(ctx, out)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return cli.ExitError
	}
}
