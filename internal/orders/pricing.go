package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brickapparel/storefront-backend/pkg/config"
)

// PricedLine is the minimum a line needs to contribute to the subtotal.
type PricedLine struct {
	UnitPriceCents int64
	Quantity       int
}

// Quote is the frozen money breakdown of an order. All values are cents.
type Quote struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	ShippingCents int64 `json:"shipping_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// Pricing holds the shipping and tax policy.
type Pricing struct {
	shippingFlatCents     int64
	freeShippingThreshold int64
	taxRates              map[string]decimal.Decimal
	defaultTaxRate        decimal.Decimal
}

// NewPricing parses the configured rate table. Rates are fractions, e.g. 0.06.
func NewPricing(cfg config.CheckoutConfig) (*Pricing, error) {
	defaultRate, err := parseRate(cfg.DefaultTaxRate)
	if err != nil {
		return nil, fmt.Errorf("default tax rate: %w", err)
	}
	rates := make(map[string]decimal.Decimal, len(cfg.TaxRates))
	for state, raw := range cfg.TaxRates {
		rate, err := parseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("tax rate for %s: %w", state, err)
		}
		rates[normalizeState(state)] = rate
	}
	if cfg.ShippingFlatCents < 0 || cfg.FreeShippingThresholdCents < 0 {
		return nil, fmt.Errorf("shipping policy values must not be negative")
	}
	return &Pricing{
		shippingFlatCents:     cfg.ShippingFlatCents,
		freeShippingThreshold: cfg.FreeShippingThresholdCents,
		taxRates:              rates,
		defaultTaxRate:        defaultRate,
	}, nil
}

// TaxRate returns the rate for a shipping state, falling back to the default.
func (p *Pricing) TaxRate(state string) decimal.Decimal {
	if rate, ok := p.taxRates[normalizeState(state)]; ok {
		return rate
	}
	return p.defaultTaxRate
}

// Quote computes subtotal, shipping, tax and total. Tax applies to subtotal
// plus shipping and is rounded half away from zero to the cent.
func (p *Pricing) Quote(lines []PricedLine, shippingState string) Quote {
	var q Quote
	for _, line := range lines {
		q.SubtotalCents += line.UnitPriceCents * int64(line.Quantity)
	}
	if q.SubtotalCents < p.freeShippingThreshold {
		q.ShippingCents = p.shippingFlatCents
	}
	taxable := decimal.NewFromInt(q.SubtotalCents + q.ShippingCents)
	q.TaxCents = taxable.Mul(p.TaxRate(shippingState)).Round(0).IntPart()
	q.TotalCents = q.SubtotalCents + q.ShippingCents + q.TaxCents
	return q
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s out of range [0,1)", raw)
	}
	return rate, nil
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
