package instruments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

func TestCheckTransitions(t *testing.T) {
	cases := []struct {
		from CheckStatus
		tr   Transition
		to   CheckStatus
	}{
		{CheckUnused, TrIssue, CheckIssued},
		{CheckIssued, TrClear, CheckCleared},
		{CheckIssued, TrBounce, CheckBounced},
		{CheckIssued, TrVoid, CheckVoid},
		{CheckUnused, TrVoid, CheckVoid},
		{CheckBounced, TrReset, CheckIssued},
		{CheckCleared, TrReset, CheckIssued},
		{CheckIssued, TrUnissue, CheckUnused},
	}
	for _, tc := range cases {
		got, err := NextCheckStatus(tc.from, tc.tr)
		require.NoError(t, err, "%s %s", tc.from, tc.tr)
		require.Equal(t, tc.to, got)
	}
}

func TestCheckTransitionsRejectUnreachable(t *testing.T) {
	cases := []struct {
		from CheckStatus
		tr   Transition
	}{
		{CheckIssued, TrIssue},
		{CheckUnused, TrClear},
		{CheckBounced, TrBounce},
		{CheckVoid, TrReset},
		{CheckCleared, TrVoid},
		{CheckUnused, TrDeposit},
	}
	for _, tc := range cases {
		_, err := NextCheckStatus(tc.from, tc.tr)
		require.True(t, errors.Is(err, shared.ErrInvalidTransition), "%s %s", tc.from, tc.tr)
	}
}

func TestChequeTransitions(t *testing.T) {
	cases := []struct {
		from ChequeStatus
		tr   Transition
		to   ChequeStatus
	}{
		{ChequeReceived, TrDeposit, ChequeDeposited},
		{ChequeDeposited, TrClear, ChequeCleared},
		{ChequeReceived, TrManualClear, ChequeManuallyCleared},
		{ChequeReceived, TrSpend, ChequeSpent},
		{ChequeSpent, TrReturn, ChequeReturned},
		{ChequeReturned, TrRespend, ChequeSpent},
		{ChequeSpent, TrBounce, ChequeBounced},
		{ChequeCleared, TrBounce, ChequeBounced},
	}
	for _, tc := range cases {
		got, err := NextChequeStatus(tc.from, tc.tr)
		require.NoError(t, err, "%s %s", tc.from, tc.tr)
		require.Equal(t, tc.to, got)
	}

	for _, bad := range []struct {
		from ChequeStatus
		tr   Transition
	}{
		{ChequeDeposited, TrSpend},
		{ChequeBounced, TrBounce},
		{ChequeReceived, TrClear},
		{ChequeReceived, TrReturn},
		{ChequeSpent, TrDeposit},
	} {
		_, err := NextChequeStatus(bad.from, bad.tr)
		require.True(t, errors.Is(err, shared.ErrInvalidTransition), "%s %s", bad.from, bad.tr)
	}
}

func TestCheckCompensationReturnsToSnapshotState(t *testing.T) {
	for tr, comp := range checkCompensation {
		rule := checkRules[tr]
		back, err := NextCheckStatus(rule.to, comp)
		require.NoError(t, err, "%s undone by %s", tr, comp)
		require.Contains(t, rule.from, back)
	}
}

func TestClearIssuance(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cust := int64(7)
	c := Check{Status: CheckIssued, Amount: decimal.NewFromInt(10), Payee: "x", CustomerID: &cust, IssueDate: &day, DueDate: &day, Description: "d"}
	c.clearIssuance()
	require.True(t, c.Amount.IsZero())
	require.Empty(t, c.Payee)
	require.Nil(t, c.CustomerID)
	require.Nil(t, c.IssueDate)
	require.Nil(t, c.DueDate)
}

func TestDecodeSnapshotsWithoutBefore(t *testing.T) {
	after, err := json.Marshal(ReceivedCheque{ID: 3, Status: ChequeReceived, Amount: decimal.NewFromInt(500000)})
	require.NoError(t, err)
	var b, a ReceivedCheque
	require.NoError(t, decodeSnapshots(Link{After: after}, &b, &a))
	require.Zero(t, b.ID)
	require.Equal(t, ChequeReceived, a.Status)
	require.True(t, a.Amount.Equal(decimal.NewFromInt(500000)))
}
