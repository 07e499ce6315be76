// Package sequence allocates gapless-under-commit, never-duplicated numbers
// for operations, vouchers, accounts and documents.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the transactional persistence required by the allocator.
type Store interface {
	// LockCounter returns the last issued value of scope and holds an exclusive
	// lock on the counter until the surrounding transaction ends. A missing
	// counter starts at zero.
	LockCounter(ctx context.Context, scope string) (int64, error)
	// SetCounter stores value as the last issued number of scope.
	SetCounter(ctx context.Context, scope string, value int64) error
}

// Well-known scope kinds.
const (
	KindOperation = "operation"
	KindPettyCash = "petty_cash"
	KindVoucher   = "voucher"
	KindAccount   = "account"
	KindDocument  = "document"
)

// ErrEmptyScope is returned when no scope is supplied.
var ErrEmptyScope = errors.New("sequence: scope required")

// Global returns the scope shared by every caller of kind.
func Global(kind string) string {
	return kind
}

// Daily returns the scope of kind restricted to one calendar day.
func Daily(kind string, day time.Time) string {
	return kind + ":" + day.Format("20060102")
}

// Child returns the scope of kind nested under parent, e.g. account codes per parent.
func Child(kind, parent string) string {
	return kind + ":" + parent
}

// Next locks the counter of scope and issues last+1.
func Next(ctx context.Context, st Store, scope string) (int64, error) {
	return NextAtLeast(ctx, st, scope, 1)
}

// NextAtLeast issues max(last+1, floor) so a counter can be moved forward
// without ever reissuing a number.
func NextAtLeast(ctx context.Context, st Store, scope string, floor int64) (int64, error) {
	if strings.TrimSpace(scope) == "" {
		return 0, ErrEmptyScope
	}
	last, err := st.LockCounter(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("sequence: lock %s: %w", scope, err)
	}
	next := last + 1
	if next < floor {
		next = floor
	}
	if err := st.SetCounter(ctx, scope, next); err != nil {
		return 0, fmt.Errorf("sequence: set %s: %w", scope, err)
	}
	return next, nil
}

// Current returns the last issued number of scope without issuing a new one.
func Current(ctx context.Context, st Store, scope string) (int64, error) {
	if strings.TrimSpace(scope) == "" {
		return 0, ErrEmptyScope
	}
	return st.LockCounter(ctx, scope)
}

// NextDaily issues the next day-prefixed number: prefix + YYYYMMDD + four digits.
func NextDaily(ctx context.Context, st Store, kind, prefix string, day time.Time) (string, error) {
	n, err := Next(ctx, st, Daily(kind, day))
	if err != nil {
		return "", err
	}
	return FormatDaily(prefix, day, n), nil
}

// FormatDaily renders a day-scoped counter value.
func FormatDaily(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s%s%04d", prefix, day.Format("20060102"), n)
}

// FormatChildCode renders a child code as parent code followed by a three digit suffix.
func FormatChildCode(parent string, n int64) string {
	return fmt.Sprintf("%s%03d", parent, n)
}

// FormatVoucher renders a voucher number within its fiscal year.
func FormatVoucher(n int64) string {
	return fmt.Sprintf("%06d", n)
}
