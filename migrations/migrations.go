package migrations

import (
	"database/sql"
	"time"
)

// Tables living in the main database: rules, master data, settings and the ledger.
var mainTables = []string{
	`CREATE TABLE IF NOT EXISTS allocation_rules (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		sequence INT NOT NULL DEFAULT 10,
		company_id INT NOT NULL DEFAULT 0,
		attribute_id INT NOT NULL DEFAULT 0,
		require_complete_size_run BOOLEAN NOT NULL DEFAULT FALSE,
		min_fill_rate_style DOUBLE NOT NULL DEFAULT 0,
		min_fill_rate_order DOUBLE NOT NULL DEFAULT 0,
		incoming_days INT NOT NULL DEFAULT 0,
		use_variants BOOLEAN NOT NULL DEFAULT FALSE,
		allow_partial BOOLEAN NOT NULL DEFAULT FALSE,
		reservation_mode VARCHAR(10) NOT NULL DEFAULT 'soft'
	);`,
	`CREATE TABLE IF NOT EXISTS allocation_rule_lines (
		id INT AUTO_INCREMENT PRIMARY KEY,
		rule_id INT NOT NULL,
		sequence INT NOT NULL DEFAULT 10,
		size_value_id INT NOT NULL,
		size_name VARCHAR(255) NOT NULL DEFAULT '',
		min_qty DECIMAL(16,4) NOT NULL DEFAULT 1,
		UNIQUE KEY rule_size_unique (rule_id, size_value_id),
		FOREIGN KEY (rule_id) REFERENCES allocation_rules(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS allocation_rule_templates (
		rule_id INT NOT NULL,
		template_id INT NOT NULL,
		PRIMARY KEY (rule_id, template_id),
		FOREIGN KEY (rule_id) REFERENCES allocation_rules(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS allocation_rule_customer_tags (
		rule_id INT NOT NULL,
		tag_id INT NOT NULL,
		PRIMARY KEY (rule_id, tag_id),
		FOREIGN KEY (rule_id) REFERENCES allocation_rules(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS allocation_rule_customer_types (
		rule_id INT NOT NULL,
		customer_type_id INT NOT NULL,
		PRIMARY KEY (rule_id, customer_type_id),
		FOREIGN KEY (rule_id) REFERENCES allocation_rules(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		customer_type_id INT NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS customer_tags (
		customer_id INT NOT NULL,
		tag_id INT NOT NULL,
		PRIMARY KEY (customer_id, tag_id),
		FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id INT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		template_id INT NOT NULL,
		template_name VARCHAR(255) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS product_attribute_values (
		product_id INT NOT NULL,
		attribute_id INT NOT NULL,
		value_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		PRIMARY KEY (product_id, attribute_id),
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS config_parameters (
		param_key VARCHAR(255) PRIMARY KEY,
		param_value VARCHAR(255) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS allocation_reservations (
		id CHAR(36) PRIMARY KEY,
		order_id INT NOT NULL,
		rule_id INT NOT NULL,
		product_id INT NOT NULL,
		quantity DECIMAL(16,4) NOT NULL,
		mode VARCHAR(10) NOT NULL,
		created_at DATETIME NOT NULL,
		INDEX reservation_order_idx (order_id)
	);`,
}

// Tables created on every order shard.
var orderTables = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id INT PRIMARY KEY,
		company_id INT NOT NULL DEFAULT 0,
		customer_id INT NOT NULL,
		status VARCHAR(20) NOT NULL,
		allocation_state VARCHAR(20) NOT NULL,
		allocation_message TEXT NOT NULL,
		idempotent_key VARCHAR(255) UNIQUE NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id INT NOT NULL,
		product_id INT NOT NULL,
		quantity DECIMAL(16,4) NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	);`,
}

// AutoMigrateMain creates the rule, master data and ledger tables if they do not exist.
func AutoMigrateMain(retries int, db *sql.DB) error {
	return migrate(retries, mainTables, db)
}

// AutoMigrateOrders creates the orders and order_lines tables on every shard.
func AutoMigrateOrders(retries int, dbs ...*sql.DB) error {
	return migrate(retries, orderTables, dbs...)
}

func migrate(retries int, queries []string, dbs ...*sql.DB) error {
	for _, db := range dbs {
		for _, query := range queries {
			_, err := db.Exec(query)
			// Retry creating the table
			for i := 0; err != nil && i < retries; i++ {
				time.Sleep(1 * time.Second)
				_, err = db.Exec(query)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
