package domain

// PricingBreakdown captures the aggregated monetary results of pricing a cart
// or checkout, in kobo.
type PricingBreakdown struct {
	Currency string
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
	Items    []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs after running the engine.
type ItemPricingBreakdown struct {
	ProductRef      string
	VariantSKU      string
	Quantity        int
	UnitPrice       int64
	EffectivePrice  int64
	DiscountPercent int
	LineTotal       int64
}

// ShippingQuote records the resolved shipping rate for a delivery state.
type ShippingQuote struct {
	Zone   string
	State  string
	Fee    int64
	RateID string
}
