package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTextFoldsArabicVariants(t *testing.T) {
	require.Equal(t, NormalizeText("علی  كريمی"), NormalizeText("علی کریمی"))
	require.Equal(t, "bank mellat", NormalizeText("  Bank   MELLAT "))
}

func TestNormalizeDigits(t *testing.T) {
	require.Equal(t, "0123456789", NormalizeDigits("۰۱۲۳۴۵۶۷۸۹"))
	require.Equal(t, "1234567", NormalizeDigits("١٢٣-٤٥ ٦٧"))
}

func TestValidateStructReportsFields(t *testing.T) {
	type input struct {
		Amount   decimal.Decimal `validate:"gt=0"`
		SayadiID string          `validate:"len=16,numeric"`
	}
	err := ValidateStruct(input{Amount: decimal.Zero, SayadiID: "12"})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Amount failed gt")
	require.Contains(t, err.Error(), "SayadiID failed len")

	require.NoError(t, ValidateStruct(input{Amount: decimal.NewFromInt(5), SayadiID: "1234567890123456"}))
}

func TestValidateMoney(t *testing.T) {
	for _, ok := range []string{"1", "0.01", "1250.5", "99999999.99"} {
		require.NoError(t, ValidateMoney("amount", decimal.RequireFromString(ok)), ok)
	}
	for _, bad := range []string{"0", "-5", "0.001", "10.005", "1.000001"} {
		require.ErrorIs(t, ValidateMoney("amount", decimal.RequireFromString(bad)), ErrValidation, bad)
	}
	// Trailing zeros are only a representation.
	require.NoError(t, ValidateMoney("amount", decimal.RequireFromString("3.1000")))
}

func TestDriftErrorUnwraps(t *testing.T) {
	err := error(&DriftError{FundID: 3, Stored: decimal.NewFromInt(1)})
	require.True(t, errors.Is(err, ErrReconciliationDrift))
	require.Contains(t, err.Error(), "fund 3")
}

func TestOperationTypeTables(t *testing.T) {
	require.True(t, OpReceiveFromCustomer.Valid())
	require.False(t, OpPettyCashAdd.Valid())
	require.True(t, OpSalesInvoice.RequiresCustomer())
	require.False(t, OpPaymentToCash.RequiresCustomer())
	require.True(t, PaymentPOS.UsesBank())
	require.True(t, PaymentSpendCheque.UsesInstrument())
}

type execRecorder struct {
	args []any
}

func (e *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerFillsActorAndMeta(t *testing.T) {
	db := &execRecorder{}
	logger := NewAuditLogger(db)
	ctx := ContextWithActor(context.Background(), 42)

	require.NoError(t, logger.Record(ctx, AuditLog{Action: "operation.cancel", Entity: "operation", EntityID: "7"}))
	require.Equal(t, int64(42), db.args[0])
	require.JSONEq(t, `{}`, string(db.args[4].([]byte)))

	err := logger.Record(ctx, AuditLog{Action: "operation.cancel"})
	require.ErrorIs(t, err, ErrValidation)
}
