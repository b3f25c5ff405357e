package repository

import (
	"allocation-service/internal/entity"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RuleRepository handles the interactions with the allocation rules database.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new instance of RuleRepository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db}
}

const ruleColumns = `id, name, sequence, company_id, attribute_id, require_complete_size_run, min_fill_rate_style,
	min_fill_rate_order, incoming_days, use_variants, allow_partial, reservation_mode`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*entity.AllocationRule, error) {
	var rule entity.AllocationRule
	err := row.Scan(&rule.ID, &rule.Name, &rule.Sequence, &rule.CompanyID, &rule.AttributeID, &rule.RequireCompleteSizeRun,
		&rule.MinFillRateStyle, &rule.MinFillRateOrder, &rule.IncomingDays, &rule.UseVariants, &rule.AllowPartial, &rule.ReservationMode)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns the rules of a company together with the company-less ones,
// ordered by sequence.
func (r *RuleRepository) ListRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM allocation_rules WHERE company_id = 0 OR company_id = ? ORDER BY sequence, id`
	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*entity.AllocationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if err := r.loadRelations(ctx, rule); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// GetRule fetches a single rule with its lines and filters.
func (r *RuleRepository) GetRule(ctx context.Context, id int) (*entity.AllocationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM allocation_rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrRuleNotFound
		}
		return nil, err
	}
	if err := r.loadRelations(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// CreateRule inserts the rule, its lines and its filters in one transaction.
func (r *RuleRepository) CreateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO allocation_rules (name, sequence, company_id, attribute_id, require_complete_size_run, min_fill_rate_style,
		min_fill_rate_order, incoming_days, use_variants, allow_partial, reservation_mode) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, rule.Name, rule.Sequence, rule.CompanyID, rule.AttributeID, rule.RequireCompleteSizeRun,
		rule.MinFillRateStyle, rule.MinFillRateOrder, rule.IncomingDays, rule.UseVariants, rule.AllowPartial, rule.ReservationMode)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	rule.ID = int(id)

	if err := insertRelations(ctx, tx, rule); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule rewrites the rule and replaces its lines and filters.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule *entity.AllocationRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := `UPDATE allocation_rules SET name = ?, sequence = ?, company_id = ?, attribute_id = ?, require_complete_size_run = ?,
		min_fill_rate_style = ?, min_fill_rate_order = ?, incoming_days = ?, use_variants = ?, allow_partial = ?, reservation_mode = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, query, rule.Name, rule.Sequence, rule.CompanyID, rule.AttributeID, rule.RequireCompleteSizeRun,
		rule.MinFillRateStyle, rule.MinFillRateOrder, rule.IncomingDays, rule.UseVariants, rule.AllowPartial, rule.ReservationMode, rule.ID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM allocation_rules WHERE id = ?`, rule.ID).Scan(&exists); err != nil {
			tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				return entity.ErrRuleNotFound
			}
			return err
		}
	}

	for _, table := range []string{"allocation_rule_lines", "allocation_rule_templates", "allocation_rule_customer_tags", "allocation_rule_customer_types"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE rule_id = ?`, table), rule.ID); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := insertRelations(ctx, tx, rule); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// DeleteRule deletes a rule; lines and filters cascade.
func (r *RuleRepository) DeleteRule(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM allocation_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) loadRelations(ctx context.Context, rule *entity.AllocationRule) error {
	rows, err := r.db.QueryContext(ctx, `SELECT sequence, size_value_id, size_name, min_qty FROM allocation_rule_lines WHERE rule_id = ? ORDER BY sequence, id`, rule.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line entity.AllocationRuleLine
		if err := rows.Scan(&line.Sequence, &line.SizeValueID, &line.SizeName, &line.MinQty); err != nil {
			return err
		}
		rule.Lines = append(rule.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if rule.ProductTemplateIDs, err = r.loadIDs(ctx, "allocation_rule_templates", "template_id", rule.ID); err != nil {
		return err
	}
	if rule.CustomerTagIDs, err = r.loadIDs(ctx, "allocation_rule_customer_tags", "tag_id", rule.ID); err != nil {
		return err
	}
	rule.CustomerTypeIDs, err = r.loadIDs(ctx, "allocation_rule_customer_types", "customer_type_id", rule.ID)
	return err
}

func (r *RuleRepository) loadIDs(ctx context.Context, table, column string, ruleID int) ([]int, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE rule_id = ? ORDER BY %s`, column, table, column)
	rows, err := r.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertRelations(ctx context.Context, tx *sql.Tx, rule *entity.AllocationRule) error {
	if len(rule.Lines) > 0 {
		query := `INSERT INTO allocation_rule_lines (rule_id, sequence, size_value_id, size_name, min_qty) VALUES `
		var values []interface{}
		for _, line := range rule.Lines {
			query += "(?, ?, ?, ?, ?),"
			values = append(values, rule.ID, line.Sequence, line.SizeValueID, line.SizeName, line.MinQty)
		}
		if _, err := tx.ExecContext(ctx, strings.TrimSuffix(query, ","), values...); err != nil {
			return err
		}
	}

	if err := insertIDs(ctx, tx, "allocation_rule_templates", "template_id", rule.ID, rule.ProductTemplateIDs); err != nil {
		return err
	}
	if err := insertIDs(ctx, tx, "allocation_rule_customer_tags", "tag_id", rule.ID, rule.CustomerTagIDs); err != nil {
		return err
	}
	return insertIDs(ctx, tx, "allocation_rule_customer_types", "customer_type_id", rule.ID, rule.CustomerTypeIDs)
}

func insertIDs(ctx context.Context, tx *sql.Tx, table, column string, ruleID int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT IGNORE INTO %s (rule_id, %s) VALUES `, table, column)
	var values []interface{}
	for _, id := range ids {
		query += "(?, ?),"
		values = append(values, ruleID, id)
	}
	_, err := tx.ExecContext(ctx, strings.TrimSuffix(query, ","), values...)
	return err
}
