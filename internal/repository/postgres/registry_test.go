package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

type openRecorder struct {
	opened map[string]pgxmock.PgxPoolIface
	calls  int
	err    error
}

func (o *openRecorder) open(_ context.Context, dsn string) (*DB, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	mock, err := pgxmock.NewPool()
	if err != nil {
		return nil, err
	}
	mock.ExpectClose()
	if o.opened == nil {
		o.opened = map[string]pgxmock.PgxPoolIface{}
	}
	o.opened[dsn] = mock
	return &DB{Pool: mock}, nil
}

func TestRegistry_ReusesHandle(t *testing.T) {
	rec := &openRecorder{}
	reg, err := NewRegistry(2, rec.open)
	require.NoError(t, err)

	a1, err := reg.Get(context.Background(), "dsn-a")
	require.NoError(t, err)
	a2, err := reg.Get(context.Background(), "dsn-a")
	require.NoError(t, err)
	require.Same(t, a1, a2)
	require.Equal(t, 1, rec.calls)
}

func TestRegistry_EvictsLeastRecentlyUsedAndClosesIt(t *testing.T) {
	rec := &openRecorder{}
	reg, err := NewRegistry(2, rec.open)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = reg.Get(ctx, "a")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "b")
	require.NoError(t, err)
	_, err = reg.Get(ctx, "a") // a becomes most recent
	require.NoError(t, err)
	_, err = reg.Get(ctx, "c") // evicts b
	require.NoError(t, err)

	require.Equal(t, 2, reg.Len())
	require.NoError(t, rec.opened["b"].ExpectationsWereMet(), "evicted handle must be closed")

	_, err = reg.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 4, rec.calls)
}

func TestRegistry_OpenError(t *testing.T) {
	rec := &openRecorder{err: errors.New("dial fail")}
	reg, err := NewRegistry(1, rec.open)
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "a")
	require.Error(t, err)
	require.Equal(t, 0, reg.Len())
}

func TestRegistry_BadCapacity(t *testing.T) {
	_, err := NewRegistry(0, nil)
	require.Error(t, err)
}

func TestRegistry_CloseClosesAll(t *testing.T) {
	rec := &openRecorder{}
	reg, err := NewRegistry(3, rec.open)
	require.NoError(t, err)
	for _, dsn := range []string{"a", "b"} {
		_, err := reg.Get(context.Background(), dsn)
		require.NoError(t, err)
	}
	reg.Close()
	require.Equal(t, 0, reg.Len())
	for _, m := range rec.opened {
		require.NoError(t, m.ExpectationsWereMet())
	}
}
