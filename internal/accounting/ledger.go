package accounting

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/sequence"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// PostingRequest describes one business event to materialise as a voucher.
type PostingRequest struct {
	Event       shared.OperationType
	Amount      decimal.Decimal
	Date        time.Time
	Parties     Parties
	Description string
	Reference   string
	SourceType  string
	SourceID    uuid.UUID
}

// NewLedgerContext builds the context of a unit of work dated date.
func NewLedgerContext(ctx context.Context, st TxRepository, date time.Time, currency string, actorID int64, now time.Time) (LedgerContext, error) {
	fy, err := st.GetFiscalYearByDate(ctx, date)
	if err != nil {
		return LedgerContext{}, err
	}
	return LedgerContext{FiscalYear: fy, Currency: currency, ActorID: actorID, Now: now}, nil
}

// Post resolves the accounts of req through the posting rules and writes a
// two-line voucher numbered within the active fiscal year.
func Post(ctx context.Context, st TxRepository, lc LedgerContext, req PostingRequest) (Voucher, error) {
	if !req.Amount.IsPositive() {
		return Voucher{}, ErrAmountNotPositive
	}
	if err := shared.ValidateMoney("posting amount", req.Amount); err != nil {
		return Voucher{}, err
	}
	if req.SourceID == uuid.Nil {
		return Voucher{}, shared.Validation("voucher source required")
	}
	if !lc.FiscalYear.Covers(req.Date) {
		return Voucher{}, shared.Validation("date %s outside fiscal year %d", req.Date.Format(time.DateOnly), lc.FiscalYear.Year)
	}
	rule, err := RuleFor(req.Event)
	if err != nil {
		return Voucher{}, err
	}
	debitRole, creditRole, err := ResolveRoles(req.Event, req.Parties)
	if err != nil {
		return Voucher{}, err
	}
	debit, err := ResolveOrCreate(ctx, st, lc, debitRole)
	if err != nil {
		return Voucher{}, err
	}
	credit, err := ResolveOrCreate(ctx, st, lc, creditRole)
	if err != nil {
		return Voucher{}, err
	}
	desc := rule.Describe(req.Parties)
	if extra := strings.TrimSpace(req.Description); extra != "" {
		desc = desc + " - " + extra
	}
	voucher := Voucher{
		Date:        req.Date,
		Description: desc,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		IsConfirmed: true,
		CreatedBy:   lc.ActorID,
		Items: []VoucherItem{
			{AccountID: debit.ID, Debit: req.Amount, Credit: decimal.Zero, Description: desc, Reference: req.Reference},
			{AccountID: credit.ID, Debit: decimal.Zero, Credit: req.Amount, Description: desc, Reference: req.Reference},
		},
	}
	return write(ctx, st, lc, voucher)
}

// Reverse posts one voucher cancelling the net effect of every voucher of
// the source. It returns false when the source has no net effect left.
func Reverse(ctx context.Context, st TxRepository, lc LedgerContext, sourceType string, sourceID uuid.UUID, date time.Time, description string) (Voucher, bool, error) {
	vouchers, err := st.ListVouchersBySource(ctx, sourceType, sourceID)
	if err != nil {
		return Voucher{}, false, err
	}
	net := make(map[int64]decimal.Decimal)
	for _, v := range vouchers {
		for _, item := range v.Items {
			net[item.AccountID] = net[item.AccountID].Add(item.Debit).Sub(item.Credit)
		}
	}
	accountIDs := make([]int64, 0, len(net))
	for id, amount := range net {
		if !amount.IsZero() {
			accountIDs = append(accountIDs, id)
		}
	}
	if len(accountIDs) == 0 {
		return Voucher{}, false, nil
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })
	if !lc.FiscalYear.Covers(date) {
		return Voucher{}, false, shared.Validation("date %s outside fiscal year %d", date.Format(time.DateOnly), lc.FiscalYear.Year)
	}
	reversal := Voucher{
		Date:        date,
		Description: description,
		SourceType:  sourceType,
		SourceID:    sourceID,
		IsReversal:  true,
		IsConfirmed: true,
		CreatedBy:   lc.ActorID,
	}
	for _, id := range accountIDs {
		amount := net[id]
		item := VoucherItem{AccountID: id, Debit: decimal.Zero, Credit: decimal.Zero, Description: description}
		if amount.IsPositive() {
			item.Credit = amount
		} else {
			item.Debit = amount.Neg()
		}
		reversal.Items = append(reversal.Items, item)
	}
	v, err := write(ctx, st, lc, reversal)
	if err != nil {
		return Voucher{}, false, err
	}
	return v, true, nil
}

// DeleteBySource removes every voucher of the source and recomputes the
// balances of the accounts they touched.
func DeleteBySource(ctx context.Context, st TxRepository, sourceType string, sourceID uuid.UUID) (int, error) {
	vouchers, err := st.ListVouchersBySource(ctx, sourceType, sourceID)
	if err != nil {
		return 0, err
	}
	touched := make(map[int64]struct{})
	for _, v := range vouchers {
		for _, item := range v.Items {
			touched[item.AccountID] = struct{}{}
		}
		if err := st.DeleteVoucher(ctx, v.ID); err != nil {
			return 0, err
		}
	}
	for id := range touched {
		if err := RefreshBalance(ctx, st, id); err != nil {
			return 0, err
		}
	}
	return len(vouchers), nil
}

// RefreshBalance recomputes an account's running balance from its voucher items.
func RefreshBalance(ctx context.Context, st TxRepository, accountID int64) error {
	debit, credit, err := st.SumAccountItems(ctx, accountID)
	if err != nil {
		return err
	}
	return st.UpdateAccountBalance(ctx, accountID, debit.Sub(credit))
}

func write(ctx context.Context, st TxRepository, lc LedgerContext, voucher Voucher) (Voucher, error) {
	if err := voucher.Validate(); err != nil {
		return Voucher{}, err
	}
	n, err := sequence.Next(ctx, st, sequence.Child(sequence.KindVoucher, strconv.Itoa(lc.FiscalYear.Year)))
	if err != nil {
		return Voucher{}, err
	}
	voucher.FiscalYearID = lc.FiscalYear.ID
	voucher.Number = n
	inserted, err := st.InsertVoucher(ctx, voucher)
	if err != nil {
		return Voucher{}, fmt.Errorf("accounting: insert voucher: %w", err)
	}
	seen := make(map[int64]struct{}, len(voucher.Items))
	for _, item := range voucher.Items {
		if _, ok := seen[item.AccountID]; ok {
			continue
		}
		seen[item.AccountID] = struct{}{}
		if err := RefreshBalance(ctx, st, item.AccountID); err != nil {
			return Voucher{}, err
		}
	}
	return inserted, nil
}
