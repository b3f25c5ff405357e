package entity

import (
	"encoding/json"
	"errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"strconv"
)

var (
	ErrRuleNotFound  = errors.New("allocation rule not found")
	ErrDuplicateSize = errors.New("each size value can only appear once per rule")
	ErrNegativeQty   = errors.New("minimum quantity cannot be negative")
)

// ReservationMode selects how confirmed quantities are held.
type ReservationMode string

const (
	// ReservationSoft only writes a planning entry to the allocation ledger.
	ReservationSoft ReservationMode = "soft"
	// ReservationHard also reserves stock in the inventory service.
	ReservationHard ReservationMode = "hard"
)

type AllocationRule struct {
	ID                     int                  `json:"id"`
	Name                   string               `json:"name" yaml:"name" validate:"required,max=255"`
	Sequence               int                  `json:"sequence" yaml:"sequence"`
	CompanyID              int                  `json:"company_id" yaml:"company_id" validate:"gte=0"`
	ProductTemplateIDs     []int                `json:"product_template_ids" yaml:"product_template_ids"`
	AttributeID            int                  `json:"attribute_id" yaml:"attribute_id" validate:"gte=0"`
	CustomerTagIDs         []int                `json:"customer_tag_ids" yaml:"customer_tag_ids"`
	CustomerTypeIDs        []int                `json:"customer_type_ids" yaml:"customer_type_ids"`
	RequireCompleteSizeRun bool                 `json:"require_complete_size_run" yaml:"require_complete_size_run"`
	MinFillRateStyle       float64              `json:"min_fill_rate_style" yaml:"min_fill_rate_style" validate:"gte=0,lte=100"`
	MinFillRateOrder       float64              `json:"min_fill_rate_order" yaml:"min_fill_rate_order" validate:"gte=0,lte=100"`
	IncomingDays           int                  `json:"incoming_days" yaml:"incoming_days" validate:"gte=0"`
	UseVariants            bool                 `json:"use_variants" yaml:"use_variants"`
	AllowPartial           bool                 `json:"allow_partial" yaml:"allow_partial"`
	ReservationMode        ReservationMode      `json:"reservation_mode" yaml:"reservation_mode" validate:"omitempty,oneof=soft hard"`
	Lines                  []AllocationRuleLine `json:"lines" yaml:"lines" validate:"dive"`
}

// AllocationRuleLine is a per-size minimum quantity target.
type AllocationRuleLine struct {
	Sequence    int             `json:"sequence" yaml:"sequence"`
	SizeValueID int             `json:"size_value_id" yaml:"size_value_id" validate:"required"`
	SizeName    string          `json:"size_name" yaml:"size_name"`
	MinQty      decimal.Decimal `json:"min_qty" yaml:"min_qty"`
}

// DefaultMinQty applies to a rule line that omits min_qty.
var DefaultMinQty = decimal.NewFromInt(1)

func (l *AllocationRuleLine) UnmarshalJSON(data []byte) error {
	type plain AllocationRuleLine
	line := plain{MinQty: DefaultMinQty}
	if err := json.Unmarshal(data, &line); err != nil {
		return err
	}
	*l = AllocationRuleLine(line)
	return nil
}

func (l *AllocationRuleLine) UnmarshalYAML(node *yaml.Node) error {
	type plain AllocationRuleLine
	line := plain{MinQty: DefaultMinQty}
	if err := node.Decode(&line); err != nil {
		return err
	}
	*l = AllocationRuleLine(line)
	return nil
}

// DisplayName falls back to the value id when the size has no name.
func (l AllocationRuleLine) DisplayName() string {
	if l.SizeName != "" {
		return l.SizeName
	}
	return "size " + strconv.Itoa(l.SizeValueID)
}

// Normalize fills defaults the way a fresh record would get them.
func (r *AllocationRule) Normalize() {
	if r.ReservationMode == "" {
		r.ReservationMode = ReservationSoft
	}
	if r.Sequence == 0 {
		r.Sequence = 10
	}
	for i := range r.Lines {
		if r.Lines[i].Sequence == 0 {
			r.Lines[i].Sequence = 10
		}
	}
}

// CheckLines enforces per-line invariants: unique size values and non-negative targets.
func (r *AllocationRule) CheckLines() error {
	seen := make(map[int]bool, len(r.Lines))
	for _, line := range r.Lines {
		if seen[line.SizeValueID] {
			return ErrDuplicateSize
		}
		seen[line.SizeValueID] = true
		if line.MinQty.IsNegative() {
			return ErrNegativeQty
		}
	}
	return nil
}

// HasFillRate reports whether the rule needs stock figures to be evaluated.
func (r *AllocationRule) HasFillRate() bool {
	return r.MinFillRateStyle > 0 || r.MinFillRateOrder > 0
}
