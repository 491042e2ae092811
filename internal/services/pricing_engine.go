package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrPricingInvalidDiscount signals a discount percentage outside [0,100].
	ErrPricingInvalidDiscount = errors.New("pricing: discount percent out of range")
	// ErrPricingInvalidQuantity signals a quantity below one.
	ErrPricingInvalidQuantity = errors.New("pricing: quantity must be at least one")
	// ErrPricingInvalidInput signals negative prices or overflowing totals.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// EffectiveUnitPrice applies a percentage discount to a kobo amount using
// integer arithmetic. The result is never greater than the base price.
func EffectiveUnitPrice(base int64, discountPercent int) (int64, error) {
	if base < 0 {
		return 0, fmt.Errorf("%w: base price cannot be negative", ErrPricingInvalidInput)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return 0, fmt.Errorf("%w: %d", ErrPricingInvalidDiscount, discountPercent)
	}
	if discountPercent == 0 {
		return base, nil
	}
	factor := int64(100 - discountPercent)
	if factor == 0 {
		return 0, nil
	}
	if base > math.MaxInt64/factor {
		return 0, fmt.Errorf("%w: discounted price overflow", ErrPricingInvalidInput)
	}
	return base * factor / 100, nil
}

// LineTotal returns the discounted price multiplied by quantity.
func LineTotal(base int64, discountPercent int, quantity int) (int64, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("%w: %d", ErrPricingInvalidQuantity, quantity)
	}
	unit, err := EffectiveUnitPrice(base, discountPercent)
	if err != nil {
		return 0, err
	}
	qty := int64(quantity)
	if unit > 0 && unit > math.MaxInt64/qty {
		return 0, fmt.Errorf("%w: line total overflow", ErrPricingInvalidInput)
	}
	return unit * qty, nil
}

// QuoteLine is one priced line handed to the engine. Prices are snapshots the
// caller read from the catalog at this instant.
type QuoteLine struct {
	ProductRef      string
	VariantSKU      string
	UnitPrice       int64
	DiscountPercent int
	Quantity        int
}

// PricingEngine turns quote lines plus a delivery state into exact totals.
type PricingEngine struct {
	rates      repositories.ShippingRateRepository
	defaultFee int64
	currency   string
	cache      *shippingFeeCache
	logger     func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles collaborators required to construct the engine.
type PricingEngineDeps struct {
	Rates      repositories.ShippingRateRepository
	DefaultFee int64
	Currency   string
	CacheTTL   time.Duration
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// NewPricingEngine wires dependencies into a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Rates == nil {
		return nil, errors.New("pricing engine: shipping rate repository is required")
	}
	if deps.DefaultFee < 0 {
		return nil, errors.New("pricing engine: default shipping fee cannot be negative")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "NGN"
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		rates:      deps.Rates,
		defaultFee: deps.DefaultFee,
		currency:   currency,
		cache:      newShippingFeeCache(ttl, func() time.Time { return clock().UTC() }),
		logger:     logger,
	}, nil
}

// Quote prices the lines and adds the shipping fee for the delivery state.
// Total always equals subtotal plus shipping exactly.
func (e *PricingEngine) Quote(ctx context.Context, lines []QuoteLine, state string) (PricingBreakdown, error) {
	if len(lines) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}

	items := make([]ItemPricingBreakdown, 0, len(lines))
	var subtotal int64
	var discount int64

	for _, line := range lines {
		unit, err := EffectiveUnitPrice(line.UnitPrice, line.DiscountPercent)
		if err != nil {
			return PricingBreakdown{}, err
		}
		lineTotal, err := LineTotal(line.UnitPrice, line.DiscountPercent, line.Quantity)
		if err != nil {
			return PricingBreakdown{}, err
		}

		if subtotal > math.MaxInt64-lineTotal {
			return PricingBreakdown{}, fmt.Errorf("%w: subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineTotal
		discount += (line.UnitPrice - unit) * int64(line.Quantity)

		items = append(items, ItemPricingBreakdown{
			ProductRef:      line.ProductRef,
			VariantSKU:      line.VariantSKU,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			EffectivePrice:  unit,
			DiscountPercent: line.DiscountPercent,
			LineTotal:       lineTotal,
		})
	}

	quote, err := e.ShippingFee(ctx, state)
	if err != nil {
		return PricingBreakdown{}, err
	}

	return PricingBreakdown{
		Currency: e.currency,
		Subtotal: subtotal,
		Discount: discount,
		Shipping: quote.Fee,
		Total:    subtotal + quote.Fee,
		Items:    items,
	}, nil
}

// ShippingFee resolves the flat fee for a delivery state. States without a
// configured rate fall back to the default fee.
func (e *PricingEngine) ShippingFee(ctx context.Context, state string) (ShippingQuote, error) {
	normalized := strings.ToLower(strings.TrimSpace(state))
	if normalized == "" {
		return ShippingQuote{Fee: e.defaultFee}, nil
	}

	if quote, ok := e.cache.Get(normalized); ok {
		return quote, nil
	}

	rate, err := e.rates.FindByState(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			quote := ShippingQuote{State: normalized, Fee: e.defaultFee}
			e.cache.Put(normalized, quote)
			return quote, nil
		}
		return ShippingQuote{}, err
	}

	if !rate.IsActive {
		e.logger(ctx, "pricing.shipping.rate_inactive", map[string]any{
			"state": normalized,
			"zone":  rate.Zone,
		})
		quote := ShippingQuote{State: normalized, Fee: e.defaultFee}
		e.cache.Put(normalized, quote)
		return quote, nil
	}

	quote := ShippingQuote{
		Zone:   rate.Zone,
		State:  normalized,
		Fee:    rate.Fee,
		RateID: rate.ID,
	}
	e.cache.Put(normalized, quote)
	return quote, nil
}

type shippingFeeCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]shippingFeeEntry
}

type shippingFeeEntry struct {
	quote   ShippingQuote
	expires time.Time
}

func newShippingFeeCache(ttl time.Duration, now func() time.Time) *shippingFeeCache {
	return &shippingFeeCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]shippingFeeEntry),
	}
}

func (c *shippingFeeCache) Get(key string) (ShippingQuote, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return ShippingQuote{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return ShippingQuote{}, false
	}
	return entry.quote, true
}

func (c *shippingFeeCache) Put(key string, quote ShippingQuote) {
	c.mu.Lock()
	c.m[key] = shippingFeeEntry{quote: quote, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
