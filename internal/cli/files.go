package cli

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/entity"
	"encoding/json"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

// RulesFile is the offline rule set: global settings plus the rules.
type RulesFile struct {
	Settings entity.Settings          `yaml:"settings"`
	Rules    []*entity.AllocationRule `yaml:"rules"`
}

func loadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	file := &RulesFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to parse rules %s: %w", path, err)
	}
	for i, rule := range file.Rules {
		if rule.ID == 0 {
			rule.ID = i + 1
		}
		rule.Normalize()
	}
	return file, nil
}

// loadOrder reads an order whose customer and products are fully described.
func loadOrder(path string) (*entity.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}

	order := &entity.Order{}
	if err := json.Unmarshal(data, order); err != nil {
		return nil, fmt.Errorf("failed to parse order %s: %w", path, err)
	}
	return order, nil
}

// loadStock reads a list of stock levels. The same figures serve every lookahead
// the rules ask for.
func loadStock(path string, rules []*entity.AllocationRule, evaluator *allocation.Evaluator) (allocation.StockSnapshot, error) {
	snapshot := allocation.StockSnapshot{}
	if path == "" {
		return snapshot, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}

	var levels []entity.StockLevel
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, fmt.Errorf("failed to parse stock %s: %w", path, err)
	}

	for _, rule := range rules {
		days := evaluator.IncomingDays(rule)
		for _, level := range levels {
			snapshot[allocation.StockKey{ProductID: level.ProductID, Days: days}] = level
		}
	}
	return snapshot, nil
}
