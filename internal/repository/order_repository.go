package repository

import (
	"allocation-service/internal/entity"
	"allocation-service/internal/sharding"
	"context"
	"database/sql"
	"errors"
	"github.com/shopspring/decimal"
	"strings"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func NewOrderRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *OrderRepository {
	return &OrderRepository{dbShards, router}
}

func (r *OrderRepository) shard(orderID int) *sql.DB {
	return r.dbShards[r.router.GetShard(orderID)]
}

// GetOrderByID loads the order and its lines. Products and the customer only carry
// their ids; the caller resolves them from master data.
func (r *OrderRepository) GetOrderByID(ctx context.Context, id int) (*entity.Order, error) {
	orderQuery := `SELECT id, company_id, customer_id, status, allocation_state, allocation_message, idempotent_key FROM orders WHERE id = ?`
	lineQuery := `SELECT product_id, quantity FROM order_lines WHERE order_id = ? ORDER BY id`

	db := r.shard(id)

	order := &entity.Order{}
	err := db.QueryRowContext(ctx, orderQuery, id).Scan(&order.ID, &order.CompanyID, &order.Customer.ID, &order.Status, &order.AllocationState, &order.AllocationMessage, &order.IdempotentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := db.QueryContext(ctx, lineQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		line := entity.OrderLine{}
		var qty decimal.Decimal
		if err := rows.Scan(&line.Product.ID, &qty); err != nil {
			return nil, err
		}
		line.Quantity = qty
		order.Lines = append(order.Lines, line)
	}

	return order, rows.Err()
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	db := r.shard(order.ID)

	// Start a transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	orderQuery := `INSERT INTO orders (id, company_id, customer_id, status, allocation_state, allocation_message, idempotent_key) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, orderQuery, order.ID, order.CompanyID, order.Customer.ID, order.Status, order.AllocationState, order.AllocationMessage, order.IdempotentKey)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := insertLines(ctx, tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	// Commit the transaction
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateOrder rewrites the order header and replaces its lines.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	db := r.shard(order.ID)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	orderQuery := `UPDATE orders SET company_id = ?, customer_id = ?, status = ?, allocation_state = ?, allocation_message = ? WHERE id = ?`
	_, err = tx.ExecContext(ctx, orderQuery, order.CompanyID, order.Customer.ID, order.Status, order.AllocationState, order.AllocationMessage, order.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// Delete existing lines
	_, err = tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, order.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := insertLines(ctx, tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateAllocation stores the recomputed allocation state and message.
func (r *OrderRepository) UpdateAllocation(ctx context.Context, id int, state entity.AllocationState, message string) error {
	query := `UPDATE orders SET allocation_state = ?, allocation_message = ? WHERE id = ?`
	_, err := r.shard(id).ExecContext(ctx, query, state, message, id)
	return err
}

// TransitionStatus moves the order to status `to` only while it is in one of the
// `from` statuses. It reports false when the row was in any other status, so
// concurrent confirms and cancels cannot both win.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id int, to entity.OrderStatus, from ...entity.OrderStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	query := `UPDATE orders SET status = ? WHERE id = ? AND status IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ") + `)`
	args := []interface{}{to, id}
	for _, status := range from {
		args = append(args, status)
	}

	res, err := r.shard(id).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func insertLines(ctx context.Context, tx *sql.Tx, order *entity.Order) error {
	if len(order.Lines) == 0 {
		return nil
	}

	// Insert lines with batch
	lineQuery := `INSERT INTO order_lines (order_id, product_id, quantity) VALUES `
	var values []interface{}
	for _, line := range order.Lines {
		lineQuery += "(?, ?, ?),"
		values = append(values, order.ID, line.Product.ID, line.Quantity)
	}

	// Remove the trailing comma
	lineQuery = lineQuery[:len(lineQuery)-1]

	_, err := tx.ExecContext(ctx, lineQuery, values...)
	return err
}
