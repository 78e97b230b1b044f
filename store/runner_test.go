package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryableClassification(t *testing.T) {
	require.False(t, Retryable(nil))

	// SQLSTATE classification, including wrapped errors.
	require.True(t, Retryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, Retryable(&pgconn.PgError{Code: "40P01"}))
	require.True(t, Retryable(fmt.Errorf("running update: %w", &pgconn.PgError{Code: "40001"})))
	require.False(t, Retryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, Retryable(&pgconn.PgError{Code: "23514"}))

	// Message fallback for errors which lost their SQLSTATE.
	require.True(t, Retryable(errors.New("ERROR: could not serialize access due to concurrent update")))
	require.True(t, Retryable(errors.New("ERROR: deadlock detected")))
	require.False(t, Retryable(errors.New("connection refused")))

	// Per-attempt timeouts retry until attempts run out.
	require.True(t, Retryable(context.DeadlineExceeded))
	require.True(t, Retryable(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	require.False(t, Retryable(context.Canceled))
}

func TestRetryBackoffBounds(t *testing.T) {
	var expect = []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // Capped.
		time.Second,
	}
	for attempt, want := range expect {
		// Sample repeatedly; jitter stays within ±10% of the base.
		for i := 0; i != 50; i++ {
			var d = RetryBackoff(attempt)
			require.GreaterOrEqual(t, d, want-want/10, "attempt %d", attempt)
			require.LessOrEqual(t, d, want+want/10, "attempt %d", attempt)
		}
	}
}

func TestSchemaStatementsAreWellFormed(t *testing.T) {
	require.NotEmpty(t, schemaStatements)
	for i, stmt := range schemaStatements {
		require.NotEmpty(t, stmt, "statement %d", i)
	}
}
