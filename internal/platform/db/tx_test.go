package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestSavepointWithoutTxRunsDirectly(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := Savepoint(ctx, func(inner context.Context) error {
		calls++
		require.False(t, InTx(inner))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	boom := errors.New("insert rejected")
	require.ErrorIs(t, Savepoint(ctx, func(context.Context) error { return boom }), boom)
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "journal_entries_entry_number_key"}
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "journal_entries_entry_number_key"))
	require.False(t, IsUniqueViolation(err, "idempotency_keys_pkey"))
	require.False(t, IsUniqueViolation(errors.New("other"), ""))
}
