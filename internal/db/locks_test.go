package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func TestTryAcquireLockFreshKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value, updated_at FROM system_config").
		WithArgs("partial_tp_ETH_long_stage1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO system_config").
		WithArgs("partial_tp_ETH_long_stage1", "host-1:42", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := store.TryAcquireLock(context.Background(), "partial_tp_ETH_long_stage1", "host-1:42")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireLockHeldByOther(t *testing.T) {
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"value", "updated_at"}).
		AddRow("host-2:99", time.Now().Add(-5*time.Second))
	mock.ExpectQuery("SELECT value, updated_at FROM system_config").
		WithArgs("reversal_close_ETH_long").
		WillReturnRows(rows)

	ok, err := store.TryAcquireLock(context.Background(), "reversal_close_ETH_long", "host-1:42")
	require.NoError(t, err)
	assert.False(t, ok, "fresh lock held by another holder must not be taken")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireLockPreemptsStaleHolder(t *testing.T) {
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"value", "updated_at"}).
		AddRow("host-2:99", time.Now().Add(-2*time.Minute))
	mock.ExpectQuery("SELECT value, updated_at FROM system_config").
		WithArgs("partial_tp_BTC_short_stage2").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO system_config").
		WithArgs("partial_tp_BTC_short_stage2", "host-1:42", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := store.TryAcquireLock(context.Background(), "partial_tp_BTC_short_stage2", "host-1:42")
	require.NoError(t, err)
	assert.True(t, ok, "a lease older than %s is preemptable", LockLease)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireLockRefreshesOwnLease(t *testing.T) {
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"value", "updated_at"}).
		AddRow("host-1:42", time.Now().Add(-10*time.Second))
	mock.ExpectQuery("SELECT value, updated_at FROM system_config").
		WithArgs("reversal_close_ETH_long").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO system_config").
		WithArgs("reversal_close_ETH_long", "host-1:42", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := store.TryAcquireLock(context.Background(), "reversal_close_ETH_long", "host-1:42")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquireLockLosesRace(t *testing.T) {
	store, mock := newMockStore(t)

	// The read says the lock is free, but a concurrent caller wins the
	// upsert: zero rows affected means not acquired.
	mock.ExpectQuery("SELECT value, updated_at FROM system_config").
		WithArgs("partial_tp_ETH_long_stage1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO system_config").
		WithArgs("partial_tp_ETH_long_stage1", "host-1:42", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := store.TryAcquireLock(context.Background(), "partial_tp_ETH_long_stage1", "host-1:42")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLockOnlyForHolder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM system_config").
		WithArgs("reversal_close_ETH_long", "host-1:42").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := store.ReleaseLock(context.Background(), "reversal_close_ETH_long", "host-1:42")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLockTakenOverIsNotAnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM system_config").
		WithArgs("reversal_close_ETH_long", "host-1:42").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.ReleaseLock(context.Background(), "reversal_close_ETH_long", "host-1:42")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
