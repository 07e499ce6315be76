package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/testing/memstore"
	"github.com/odyssey-erp/ordercash/jobs"
)

func newLedgerCLI(t *testing.T) (*LedgerCLI, *memstore.Store, *funds.Service) {
	t.Helper()
	store := memstore.New()
	fundSvc := funds.NewService(store.FundsPort(), nil, nil)
	ledger := &LedgerCLI{
		Funds:     fundSvc,
		Chart:     accounting.NewService(store.Accounting(), nil, nil, "IRR"),
		Customers: counterparty.NewService(store.Counterparty(), nil),
	}
	return ledger, store, fundSvc
}

func TestReconcileCommandJSON(t *testing.T) {
	ledger, _, fundSvc := newLedgerCLI(t)
	ctx := context.Background()
	_, err := fundSvc.CreateFund(ctx, funds.FundInput{Name: "Register", Kind: funds.KindCash, InitialBalance: decimal.NewFromInt(700)})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := ledger.ReconcileCommand(ctx, FundScope{}, Output{JSON: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitOK, code, stderr.String())

	var summary ReconcileSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Len(t, summary.Reports, 1)
	require.True(t, summary.Reports[0].FromStatements.Equal(decimal.NewFromInt(700)))
}

func TestReconcileAndRecalcReportDrift(t *testing.T) {
	ledger, store, fundSvc := newLedgerCLI(t)
	ctx := context.Background()
	fund, err := fundSvc.CreateFund(ctx, funds.FundInput{Name: "Register", Kind: funds.KindCash, InitialBalance: decimal.NewFromInt(700)})
	require.NoError(t, err)
	err = store.FundsPort().WithTx(ctx, func(ctx context.Context, tx funds.TxRepository) error {
		_, err := tx.InsertFundTransaction(ctx, funds.Transaction{
			FundID: fund.ID, Direction: funds.Out, Amount: decimal.NewFromInt(50), Date: time.Now(), RefType: funds.RefManual,
		})
		return err
	})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := ledger.ReconcileCommand(ctx, FundScope{FundID: fund.ID}, Output{Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitDrift, code)
	require.Contains(t, stdout.String(), "DRIFT")

	stdout.Reset()
	code = ledger.RebuildCommand(ctx, FundScope{FundID: fund.ID}, true, Output{Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitDrift, code)
	require.Contains(t, stderr.String(), "reconciliation drift")

	stdout.Reset()
	code = ledger.RebuildCommand(ctx, FundScope{FundID: fund.ID}, false, Output{Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitOK, code)
	require.Contains(t, stdout.String(), "final balance 700")
}

func TestInitChartAndRecomputeCustomers(t *testing.T) {
	ledger, _, _ := newLedgerCLI(t)
	ctx := context.Background()
	stdout := new(bytes.Buffer)

	require.Equal(t, ExitOK, ledger.InitChartCommand(ctx, Output{Stdout: stdout}))
	require.Contains(t, stdout.String(), "chart ready")
	require.Equal(t, ExitOK, ledger.InitChartCommand(ctx, Output{Stdout: stdout}))

	stdout.Reset()
	require.Equal(t, ExitOK, ledger.RecomputeCustomersCommand(ctx, Output{Stdout: stdout}))
	require.Equal(t, "0 customer balances rebuilt\n", stdout.String())
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask("reconcile", TriggerOptions{FundID: 3, Repair: true})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskFundReconcile, task.Type())
	require.JSONEq(t, `{"fund_id":3,"repair":true}`, string(task.Payload()))

	task, err = BuildTask(jobs.TaskCustomerRebuild, TriggerOptions{})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(task.Payload()))

	_, err = BuildTask("mail", TriggerOptions{})
	require.Error(t, err)
}
