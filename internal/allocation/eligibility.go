package allocation

import (
	"allocation-service/internal/entity"
	"sort"
)

// Applies reports whether a rule is in scope for the order's company and customer.
// Empty tag and type filters match every customer.
func Applies(rule *entity.AllocationRule, order *entity.Order) bool {
	if rule.CompanyID != 0 && rule.CompanyID != order.CompanyID {
		return false
	}

	if len(rule.CustomerTagIDs) > 0 {
		matched := false
		for _, tagID := range rule.CustomerTagIDs {
			if order.Customer.HasTag(tagID) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(rule.CustomerTypeIDs) > 0 {
		for _, typeID := range rule.CustomerTypeIDs {
			if order.Customer.CustomerTypeID == typeID {
				return true
			}
		}
		return false
	}

	return true
}

// CoversTemplate reports whether the rule targets the template. A rule without
// templates covers all of them.
func CoversTemplate(rule *entity.AllocationRule, templateID int) bool {
	if len(rule.ProductTemplateIDs) == 0 {
		return true
	}
	for _, id := range rule.ProductTemplateIDs {
		if id == templateID {
			return true
		}
	}
	return false
}

// SortRules orders rules by sequence then id, in place.
func SortRules(rules []*entity.AllocationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Sequence != rules[j].Sequence {
			return rules[i].Sequence < rules[j].Sequence
		}
		return rules[i].ID < rules[j].ID
	})
}
