package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{0, 0, 0}}

	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, wantCalls: 4},
		{name: "deadlock", err: fmt.Errorf("lock: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), wantCalls: 4},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantCalls: 4},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, wantCalls: 1},
		{name: "business error", err: model.ErrInsufficientFunds, wantCalls: 1},
		{name: "context canceled", err: context.Canceled, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := r.withRetry(context.Background(), func() error {
				calls++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestWithRetryRecovers(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{0, 0}}

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.withRetry(ctx, func() error {
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError("op", nil))
	assert.ErrorIs(t, mapError("get plan", pgx.ErrNoRows), model.ErrNotFound)
	assert.ErrorIs(t, mapError("insert plan", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "investment_plans_plan_key_key"}), model.ErrInvalidArgument)
	assert.ErrorIs(t, mapError("insert deposit", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}), model.ErrNotFound)
	assert.ErrorIs(t, mapError("insert plan", &pgconn.PgError{Code: pgerrcode.CheckViolation}), model.ErrInvalidArgument)
	assert.ErrorIs(t, mapError("adjust profile funds", &pgconn.PgError{Code: pgerrcode.NumericValueOutOfRange}), model.ErrInvalidArgument)

	raw := errors.New("boom")
	err := mapError("op", raw)
	assert.ErrorIs(t, err, raw)
	assert.False(t, model.IsBusiness(err))
}

func TestListFilterClause(t *testing.T) {
	id := uuid.New()

	clause, args := ListFilter{}.clause()
	assert.Equal(t, " ORDER BY created_at DESC LIMIT $1", clause)
	assert.Equal(t, []any{defaultListLimit}, args)

	clause, args = ListFilter{UserID: &id, Status: "pending", Limit: 10_000}.clause()
	assert.Equal(t, " WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3", clause)
	assert.Equal(t, []any{id, "pending", maxListLimit}, args)

	clause, args = ListFilter{Status: "pending", Limit: 5}.clause()
	assert.Equal(t, " WHERE status = $1 ORDER BY created_at DESC LIMIT $2", clause)
	assert.Equal(t, []any{"pending", 5}, args)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "up.id, up.user_id, up.status", qualify("up", "id, user_id,\n\tstatus"))
}
