package entity

// AttributeValue is one value of a product attribute, e.g. Size=M.
type AttributeValue struct {
	AttributeID int    `json:"attribute_id"`
	ValueID     int    `json:"value_id"`
	Name        string `json:"name"`
}

// Product is a sellable variant of a product template.
type Product struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	TemplateID      int              `json:"template_id"`
	TemplateName    string           `json:"template_name"`
	AttributeValues []AttributeValue `json:"attribute_values"`
}

// HasValue reports whether the variant carries the given attribute value.
func (p Product) HasValue(valueID int) bool {
	for _, v := range p.AttributeValues {
		if v.ValueID == valueID {
			return true
		}
	}
	return false
}

// Value looks up one of the variant's attribute values by id.
func (p Product) Value(valueID int) (AttributeValue, bool) {
	for _, v := range p.AttributeValues {
		if v.ValueID == valueID {
			return v, true
		}
	}
	return AttributeValue{}, false
}

// ValueFor returns the variant's value for an attribute.
func (p Product) ValueFor(attributeID int) (AttributeValue, bool) {
	for _, v := range p.AttributeValues {
		if v.AttributeID == attributeID {
			return v, true
		}
	}
	return AttributeValue{}, false
}

// Customer is the partner an order is sold to.
type Customer struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	TagIDs         []int  `json:"tag_ids"`
	CustomerTypeID int    `json:"customer_type_id"` // e.g., wholesale, distributor, retail
}

func (c Customer) HasTag(tagID int) bool {
	for _, id := range c.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}
