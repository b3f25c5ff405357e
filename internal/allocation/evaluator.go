package allocation

import (
	"allocation-service/internal/entity"
	"fmt"
	"github.com/shopspring/decimal"
	"strconv"
	"strings"
)

var one = decimal.NewFromInt(1)

// Result is the outcome of one rule against one template, or against the whole
// order when TemplateID is zero.
type Result struct {
	RuleID     int      `json:"rule_id"`
	RuleName   string   `json:"rule_name"`
	TemplateID int      `json:"template_id,omitempty"`
	Shortfalls []string `json:"shortfalls"`
	Blocking   bool     `json:"blocking"`
}

// Message is the text recorded on the order for this result.
func (r Result) Message() string {
	if len(r.Shortfalls) == 0 {
		return ""
	}
	if r.Blocking {
		return fmt.Sprintf("Allocation rule '%s' not satisfied:\n%s", r.RuleName, strings.Join(r.Shortfalls, "\n"))
	}
	return strings.Join(r.Shortfalls, "\n")
}

// Evaluator checks orders against allocation rules. It holds the global settings
// that rules fall back to.
type Evaluator struct {
	settings entity.Settings
}

func NewEvaluator(settings entity.Settings) *Evaluator {
	return &Evaluator{settings: settings}
}

// VariantMode is true when the rule or the global setting asks for per-size totals.
func (e *Evaluator) VariantMode(rule *entity.AllocationRule) bool {
	return rule.UseVariants || e.settings.UseProductVariants
}

// IncomingDays is the lookahead used for the rule's fill-rate checks.
func (e *Evaluator) IncomingDays(rule *entity.AllocationRule) int {
	if rule.IncomingDays > 0 {
		return rule.IncomingDays
	}
	return e.settings.DefaultIncomingDays
}

// Check evaluates one rule against the order lines of a single template.
func (e *Evaluator) Check(rule *entity.AllocationRule, order *entity.Order, templateID int, stock StockSnapshot) Result {
	lines := order.LinesForTemplate(templateID)
	result := Result{RuleID: rule.ID, RuleName: rule.Name, TemplateID: templateID}

	if e.VariantMode(rule) {
		for _, target := range rule.Lines {
			planned := decimal.Zero
			for _, line := range lines {
				if line.Product.HasValue(target.SizeValueID) {
					planned = planned.Add(line.Quantity)
				}
			}
			if planned.LessThan(target.MinQty) {
				result.Shortfalls = append(result.Shortfalls, fmt.Sprintf("%s requires %s but only %s planned",
					target.DisplayName(), target.MinQty.String(), planned.String()))
			}
		}
	} else {
		total := decimal.Zero
		for _, line := range lines {
			total = total.Add(line.Quantity)
		}
		for _, target := range rule.Lines {
			if total.LessThan(target.MinQty) {
				result.Shortfalls = append(result.Shortfalls, fmt.Sprintf("%s target %s not met for template (total: %s)",
					target.DisplayName(), target.MinQty.String(), total.String()))
			}
		}
	}

	if rule.RequireCompleteSizeRun {
		if missing := missingSizes(rule, lines); len(missing) > 0 {
			result.Shortfalls = append(result.Shortfalls, fmt.Sprintf("%s: size run incomplete, missing %s",
				templateName(lines, templateID), strings.Join(missing, ", ")))
		}
	}

	if rule.MinFillRateStyle > 0 {
		threshold := decimal.NewFromFloat(rule.MinFillRateStyle)
		if rate, ok := fillRate(lines, stock, e.IncomingDays(rule)); ok && rate.LessThan(threshold) {
			result.Shortfalls = append(result.Shortfalls, fmt.Sprintf("%s fill rate %s%% below minimum %s%%",
				templateName(lines, templateID), rate.Round(2).String(), threshold.String()))
		}
	}

	result.Blocking = len(result.Shortfalls) > 0 && !rule.AllowPartial
	return result
}

// CheckOrderFillRate evaluates the rule's order-level fill rate over every line
// of a template the rule covers.
func (e *Evaluator) CheckOrderFillRate(rule *entity.AllocationRule, order *entity.Order, stock StockSnapshot) Result {
	result := Result{RuleID: rule.ID, RuleName: rule.Name}
	if rule.MinFillRateOrder <= 0 {
		return result
	}

	var lines []entity.OrderLine
	for _, line := range order.Lines {
		if CoversTemplate(rule, line.Product.TemplateID) {
			lines = append(lines, line)
		}
	}

	threshold := decimal.NewFromFloat(rule.MinFillRateOrder)
	if rate, ok := fillRate(lines, stock, e.IncomingDays(rule)); ok && rate.LessThan(threshold) {
		result.Shortfalls = append(result.Shortfalls, fmt.Sprintf("Order fill rate %s%% below minimum %s%%",
			rate.Round(2).String(), threshold.String()))
	}

	result.Blocking = len(result.Shortfalls) > 0 && !rule.AllowPartial
	return result
}

// Evaluate runs every applicable rule against every template on the order.
func (e *Evaluator) Evaluate(order *entity.Order, rules []*entity.AllocationRule, stock StockSnapshot) Evaluation {
	sorted := make([]*entity.AllocationRule, len(rules))
	copy(sorted, rules)
	SortRules(sorted)

	var applicable []*entity.AllocationRule
	for _, rule := range sorted {
		if Applies(rule, order) {
			applicable = append(applicable, rule)
		}
	}

	evaluation := Evaluation{State: entity.AllocationReady}
	for _, templateID := range order.TemplateIDs() {
		for _, rule := range applicable {
			if !CoversTemplate(rule, templateID) {
				continue
			}
			evaluation.add(e.Check(rule, order, templateID, stock))
		}
	}
	for _, rule := range applicable {
		evaluation.add(e.CheckOrderFillRate(rule, order, stock))
	}

	return evaluation
}

// ApplicableRules filters rules down to those that apply to the order and cover
// at least one of its templates.
func ApplicableRules(order *entity.Order, rules []*entity.AllocationRule) []*entity.AllocationRule {
	var out []*entity.AllocationRule
	for _, rule := range rules {
		if !Applies(rule, order) {
			continue
		}
		for _, templateID := range order.TemplateIDs() {
			if CoversTemplate(rule, templateID) {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// missingSizes lists the sizes of the run with less than one unit. The run is
// the rule's target sizes followed by any other size ordered for the template.
func missingSizes(rule *entity.AllocationRule, lines []entity.OrderLine) []string {
	type size struct {
		name string
		qty  decimal.Decimal
	}
	run := make(map[int]*size)
	var order []int

	for _, target := range rule.Lines {
		if _, ok := run[target.SizeValueID]; ok {
			continue
		}
		run[target.SizeValueID] = &size{name: target.DisplayName(), qty: decimal.Zero}
		order = append(order, target.SizeValueID)
	}

	for _, line := range lines {
		value, ok := sizeOf(rule, line.Product)
		if !ok {
			continue
		}
		s, exists := run[value.ValueID]
		if !exists {
			s = &size{name: value.Name, qty: decimal.Zero}
			run[value.ValueID] = s
			order = append(order, value.ValueID)
		}
		s.qty = s.qty.Add(line.Quantity)
	}

	var missing []string
	for _, valueID := range order {
		if run[valueID].qty.LessThan(one) {
			missing = append(missing, run[valueID].name)
		}
	}
	return missing
}

// sizeOf resolves the size value of a variant under the rule: the rule's size
// attribute when set, otherwise whichever target size the variant carries.
func sizeOf(rule *entity.AllocationRule, product entity.Product) (entity.AttributeValue, bool) {
	if rule.AttributeID != 0 {
		return product.ValueFor(rule.AttributeID)
	}
	for _, target := range rule.Lines {
		if value, ok := product.Value(target.SizeValueID); ok {
			if value.Name == "" {
				value.Name = target.DisplayName()
			}
			return value, true
		}
	}
	return entity.AttributeValue{}, false
}

func templateName(lines []entity.OrderLine, templateID int) string {
	for _, line := range lines {
		if line.Product.TemplateName != "" {
			return line.Product.TemplateName
		}
	}
	return "template " + strconv.Itoa(templateID)
}
