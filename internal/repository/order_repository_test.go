package repository

import (
	"allocation-service/internal/entity"
	"allocation-service/internal/sharding"
	"context"
	"database/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"regexp"
	"testing"
)

func newShardedRepo(t *testing.T, shards int) (*OrderRepository, []sqlmock.Sqlmock) {
	t.Helper()
	dbs := make([]*sql.DB, shards)
	mocks := make([]sqlmock.Sqlmock, shards)
	for i := range dbs {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		dbs[i], mocks[i] = db, mock
	}
	return NewOrderRepository(dbs, sharding.NewShardRouter(shards)), mocks
}

func TestOrderRepository_TransitionStatusIsConditional(t *testing.T) {
	repo, mocks := newShardedRepo(t, 2)
	ctx := context.Background()
	query := regexp.QuoteMeta(`UPDATE orders SET status = ? WHERE id = ? AND status IN (?, ?)`)

	mocks[1].ExpectExec(query).
		WithArgs(entity.OrderStatusSale, 1001, entity.OrderStatusDraft, entity.OrderStatusSent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mocks[1].ExpectExec(query).
		WithArgs(entity.OrderStatusSale, 1001, entity.OrderStatusDraft, entity.OrderStatusSent).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.TransitionStatus(ctx, 1001, entity.OrderStatusSale, entity.OrderStatusDraft, entity.OrderStatusSent)
	require.NoError(t, err)
	assert.True(t, moved)

	// the second confirm finds the order already sold
	moved, err = repo.TransitionStatus(ctx, 1001, entity.OrderStatusSale, entity.OrderStatusDraft, entity.OrderStatusSent)
	require.NoError(t, err)
	assert.False(t, moved)

	for _, mock := range mocks {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestOrderRepository_CreateOrderBatchesLinesOnItsShard(t *testing.T) {
	repo, mocks := newShardedRepo(t, 2)

	mocks[0].ExpectBegin()
	mocks[0].ExpectExec(`INSERT INTO orders`).
		WithArgs(1002, 1, 3, entity.OrderStatusDraft, entity.AllocationReady, "", "k").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mocks[0].ExpectExec(regexp.QuoteMeta(`INSERT INTO order_lines (order_id, product_id, quantity) VALUES (?, ?, ?),(?, ?, ?)`)).
		WithArgs(1002, 1, decimal.NewFromInt(5), 1002, 2, decimal.NewFromInt(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mocks[0].ExpectCommit()

	_, err := repo.CreateOrder(context.Background(), &entity.Order{
		ID:              1002,
		CompanyID:       1,
		Customer:        entity.Customer{ID: 3},
		Status:          entity.OrderStatusDraft,
		AllocationState: entity.AllocationReady,
		IdempotentKey:   "k",
		Lines: []entity.OrderLine{
			{Product: entity.Product{ID: 1}, Quantity: decimal.NewFromInt(5)},
			{Product: entity.Product{ID: 2}, Quantity: decimal.NewFromInt(3)},
		},
	})
	require.NoError(t, err)

	for _, mock := range mocks {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestOrderRepository_GetOrderNotFound(t *testing.T) {
	repo, mocks := newShardedRepo(t, 1)

	mocks[0].ExpectQuery(`FROM orders WHERE id = \?`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "customer_id", "status", "allocation_state", "allocation_message", "idempotent_key"}))

	_, err := repo.GetOrderByID(context.Background(), 5)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
