package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mapStore struct {
	values map[string]int64
	fail   error
}

func (m *mapStore) LockCounter(_ context.Context, scope string) (int64, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	return m.values[scope], nil
}

func (m *mapStore) SetCounter(_ context.Context, scope string, value int64) error {
	m.values[scope] = value
	return nil
}

func TestNextIncrementsPerScope(t *testing.T) {
	st := &mapStore{values: map[string]int64{}}
	ctx := context.Background()
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	a, err := NextDaily(ctx, st, KindOperation, "", day)
	require.NoError(t, err)
	b, err := NextDaily(ctx, st, KindOperation, "", day)
	require.NoError(t, err)
	c, err := NextDaily(ctx, st, KindOperation, "", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	pc, err := NextDaily(ctx, st, KindPettyCash, "PC", day)
	require.NoError(t, err)

	require.Equal(t, "202403090001", a)
	require.Equal(t, "202403090002", b)
	require.Equal(t, "202403100001", c)
	require.Equal(t, "PC202403090001", pc)
}

func TestNextAtLeastHonoursFloor(t *testing.T) {
	st := &mapStore{values: map[string]int64{"document": 3}}
	n, err := NextAtLeast(context.Background(), st, Global(KindDocument), 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1000), n)
	n, err = NextAtLeast(context.Background(), st, Global(KindDocument), 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1001), n)
}

func TestNextRejectsEmptyScope(t *testing.T) {
	_, err := Next(context.Background(), &mapStore{values: map[string]int64{}}, " ")
	require.ErrorIs(t, err, ErrEmptyScope)
}

func TestNextWrapsStoreFailure(t *testing.T) {
	boom := errors.New("lock timeout")
	_, err := Next(context.Background(), &mapStore{values: map[string]int64{}, fail: boom}, "x")
	require.ErrorIs(t, err, boom)
}

func TestFormatters(t *testing.T) {
	require.Equal(t, "1310007", FormatChildCode("1310", 7))
	require.Equal(t, "000042", FormatVoucher(42))
	require.Equal(t, "account:1120", Child(KindAccount, "1120"))
}
