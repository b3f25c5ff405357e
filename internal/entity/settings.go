package entity

// Settings are the global allocation parameters.
type Settings struct {
	UseProductVariants  bool `json:"use_product_variants" yaml:"use_product_variants"`
	DefaultIncomingDays int  `json:"default_incoming_days" yaml:"default_incoming_days" validate:"gte=0"`
}

const (
	SettingUseProductVariants  = "apparel_allocation.use_product_variants"
	SettingDefaultIncomingDays = "apparel_allocation.default_incoming_days"
)
