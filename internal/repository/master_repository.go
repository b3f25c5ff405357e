package repository

import (
	"allocation-service/internal/entity"
	"context"
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrProductNotFound  = errors.New("product not found")
)

// MasterRepository stores the customers and product variants orders refer to.
type MasterRepository struct {
	db *sql.DB
}

func NewMasterRepository(db *sql.DB) *MasterRepository {
	return &MasterRepository{db}
}

func (r *MasterRepository) GetCustomer(ctx context.Context, id int) (*entity.Customer, error) {
	customer := &entity.Customer{}
	query := `SELECT id, name, customer_type_id FROM customers WHERE id = ?`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&customer.ID, &customer.Name, &customer.CustomerTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT tag_id FROM customer_tags WHERE customer_id = ? ORDER BY tag_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tagID int
		if err := rows.Scan(&tagID); err != nil {
			return nil, err
		}
		customer.TagIDs = append(customer.TagIDs, tagID)
	}
	return customer, rows.Err()
}

// UpsertCustomer creates or replaces a customer and its tags.
func (r *MasterRepository) UpsertCustomer(ctx context.Context, customer *entity.Customer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := `INSERT INTO customers (id, name, customer_type_id) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), customer_type_id = VALUES(customer_type_id)`
	if _, err := tx.ExecContext(ctx, query, customer.ID, customer.Name, customer.CustomerTypeID); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM customer_tags WHERE customer_id = ?`, customer.ID); err != nil {
		tx.Rollback()
		return err
	}

	if len(customer.TagIDs) > 0 {
		tagQuery := `INSERT IGNORE INTO customer_tags (customer_id, tag_id) VALUES `
		var values []interface{}
		for _, tagID := range customer.TagIDs {
			tagQuery += "(?, ?),"
			values = append(values, customer.ID, tagID)
		}
		if _, err := tx.ExecContext(ctx, strings.TrimSuffix(tagQuery, ","), values...); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetProducts returns the requested variants keyed by id. Unknown ids are absent
// from the map.
func (r *MasterRepository) GetProducts(ctx context.Context, ids []int) (map[int]entity.Product, error) {
	products := make(map[int]entity.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, template_id, template_name FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p entity.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.TemplateID, &p.TemplateName); err != nil {
			rows.Close()
			return nil, err
		}
		products[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	valueRows, err := r.db.QueryContext(ctx, `SELECT product_id, attribute_id, value_id, name FROM product_attribute_values WHERE product_id IN (`+placeholders+`) ORDER BY product_id, attribute_id`, args...)
	if err != nil {
		return nil, err
	}
	defer valueRows.Close()

	for valueRows.Next() {
		var productID int
		var value entity.AttributeValue
		if err := valueRows.Scan(&productID, &value.AttributeID, &value.ValueID, &value.Name); err != nil {
			return nil, err
		}
		p := products[productID]
		p.AttributeValues = append(p.AttributeValues, value)
		products[productID] = p
	}

	return products, valueRows.Err()
}

// UpsertProduct creates or replaces a variant and its attribute values.
func (r *MasterRepository) UpsertProduct(ctx context.Context, product *entity.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := `INSERT INTO products (id, name, template_id, template_name) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), template_id = VALUES(template_id), template_name = VALUES(template_name)`
	if _, err := tx.ExecContext(ctx, query, product.ID, product.Name, product.TemplateID, product.TemplateName); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_attribute_values WHERE product_id = ?`, product.ID); err != nil {
		tx.Rollback()
		return err
	}

	for _, value := range product.AttributeValues {
		valueQuery := `INSERT INTO product_attribute_values (product_id, attribute_id, value_id, name) VALUES (?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, valueQuery, product.ID, value.AttributeID, value.ValueID, value.Name); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
