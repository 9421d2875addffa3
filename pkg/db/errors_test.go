package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}

	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), ""))
	require.True(t, IsUniqueViolation(pgErr, "orders_order_number_key"))
	require.False(t, IsUniqueViolation(pgErr, "payment_transactions_pkey"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	sqliteErr := errors.New("UNIQUE constraint failed: orders.order_number")
	require.True(t, IsUniqueViolation(sqliteErr, "order_number"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}
