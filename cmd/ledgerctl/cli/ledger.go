package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Exit codes shared by the ledger commands.
const (
	ExitOK    = 0
	ExitError = 1
	ExitDrift = 10
)

// FundOps is the fund ledger surface used by the operator commands.
type FundOps interface {
	ListFunds(ctx context.Context, activeOnly bool) ([]funds.Fund, error)
	Reconcile(ctx context.Context, fundID int64) (funds.Reconciliation, error)
	RebuildStatements(ctx context.Context, fundID int64) (decimal.Decimal, error)
	RecalculateBalance(ctx context.Context, fundID int64) (funds.Reconciliation, error)
}

// ChartOps initialises the chart of accounts.
type ChartOps interface {
	InitChart(ctx context.Context) ([]accounting.Account, error)
}

// CustomerOps rebuilds customer balances.
type CustomerOps interface {
	RecomputeAll(ctx context.Context) (int, error)
}

// LedgerCLI runs maintenance commands against the ledger services.
type LedgerCLI struct {
	Funds     FundOps
	Chart     ChartOps
	Customers CustomerOps
}

// Output carries the command streams and format.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// FundScope selects one fund or, with a zero FundID, every active fund.
type FundScope struct {
	FundID int64
}

// ReconcileSummary is the JSON body printed by reconcile.
type ReconcileSummary struct {
	OK      bool                   `json:"ok"`
	Reports []funds.Reconciliation `json:"reports"`
}

// ReconcileCommand compares every balance derivation without writing and
// exits with ExitDrift when any fund disagrees.
func (c *LedgerCLI) ReconcileCommand(ctx context.Context, scope FundScope, out Output) int {
	out.defaults()
	ids, err := c.fundIDs(ctx, scope)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "reconcile: %v\n", err)
		return ExitError
	}
	summary := ReconcileSummary{OK: true, Reports: make([]funds.Reconciliation, 0, len(ids))}
	for _, id := range ids {
		rec, err := c.Funds.Reconcile(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "reconcile: fund %d: %v\n", id, err)
			return ExitError
		}
		summary.OK = summary.OK && rec.Consistent()
		summary.Reports = append(summary.Reports, rec)
	}
	if out.JSON {
		if err := json.NewEncoder(out.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "reconcile: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderReconcile(out.Stdout, summary.Reports)
	}
	if !summary.OK {
		return ExitDrift
	}
	return ExitOK
}

func renderReconcile(w io.Writer, reports []funds.Reconciliation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FUND\tSTORED\tTRANSACTIONS\tOPERATIONS\tSTATEMENTS\tSTATUS")
	for _, r := range reports {
		status := "ok"
		if !r.Consistent() {
			status = "DRIFT"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.FundID, r.Stored, r.FromTransactions, r.FromOperations, r.FromStatements, status)
	}
	_ = tw.Flush()
}

// RebuildCommand regenerates statements, and with recalculate also persists
// the replayed balance. Drifting funds are reported and skipped.
func (c *LedgerCLI) RebuildCommand(ctx context.Context, scope FundScope, recalculate bool, out Output) int {
	out.defaults()
	ids, err := c.fundIDs(ctx, scope)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "rebuild: %v\n", err)
		return ExitError
	}
	code := ExitOK
	for _, id := range ids {
		if !recalculate {
			final, err := c.Funds.RebuildStatements(ctx, id)
			if err != nil {
				_, _ = fmt.Fprintf(out.Stderr, "rebuild: fund %d: %v\n", id, err)
				return ExitError
			}
			_, _ = fmt.Fprintf(out.Stdout, "fund %d: statements rebuilt, final balance %s\n", id, final)
			continue
		}
		rec, err := c.Funds.RecalculateBalance(ctx, id)
		var drift *shared.DriftError
		if errors.As(err, &drift) {
			_, _ = fmt.Fprintf(out.Stderr, "recalculate: %v\n", drift)
			code = ExitDrift
			continue
		}
		if err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "recalculate: fund %d: %v\n", id, err)
			return ExitError
		}
		_, _ = fmt.Fprintf(out.Stdout, "fund %d: balance %s\n", id, rec.Stored)
	}
	return code
}

// InitChartCommand creates the standard chart of accounts idempotently.
func (c *LedgerCLI) InitChartCommand(ctx context.Context, out Output) int {
	out.defaults()
	accounts, err := c.Chart.InitChart(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "init-chart: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(out.Stdout, "chart ready: %d accounts\n", len(accounts))
	return ExitOK
}

// RecomputeCustomersCommand rebuilds every customer balance.
func (c *LedgerCLI) RecomputeCustomersCommand(ctx context.Context, out Output) int {
	out.defaults()
	done, err := c.Customers.RecomputeAll(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "recompute-customers: %d rebuilt before failure: %v\n", done, err)
		return ExitError
	}
	_, _ = fmt.Fprintf(out.Stdout, "%d customer balances rebuilt\n", done)
	return ExitOK
}

func (c *LedgerCLI) fundIDs(ctx context.Context, scope FundScope) ([]int64, error) {
	if scope.FundID < 0 {
		return nil, errors.New("--fund must be positive")
	}
	if scope.FundID > 0 {
		return []int64{scope.FundID}, nil
	}
	list, err := c.Funds.ListFunds(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.ID)
	}
	return ids, nil
}
