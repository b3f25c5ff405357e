package repository

import (
	"allocation-service/internal/entity"
	"context"
	"database/sql"
	"strings"
)

// ReservationRepository is the allocation ledger.
type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db}
}

func (r *ReservationRepository) CreateReservations(ctx context.Context, reservations []entity.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}

	query := `INSERT INTO allocation_reservations (id, order_id, rule_id, product_id, quantity, mode, created_at) VALUES `
	var values []interface{}
	for _, res := range reservations {
		query += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, res.ID, res.OrderID, res.RuleID, res.ProductID, res.Quantity, res.Mode, res.CreatedAt)
	}

	_, err := r.db.ExecContext(ctx, strings.TrimSuffix(query, ","), values...)
	return err
}

func (r *ReservationRepository) ListReservations(ctx context.Context, orderID int) ([]entity.Reservation, error) {
	query := `SELECT id, order_id, rule_id, product_id, quantity, mode, created_at FROM allocation_reservations WHERE order_id = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []entity.Reservation
	for rows.Next() {
		var res entity.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.RuleID, &res.ProductID, &res.Quantity, &res.Mode, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// DeleteReservations drops the ledger entries of a cancelled order.
func (r *ReservationRepository) DeleteReservations(ctx context.Context, orderID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM allocation_reservations WHERE order_id = ?`, orderID)
	return err
}

// DeleteReservation drops a single ledger entry once its stock has been released.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM allocation_reservations WHERE id = ?`, id)
	return err
}
