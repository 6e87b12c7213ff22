package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/discount"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
)

// Pricer resolves the discounts an order references and prices it.
type Pricer struct {
	discounts discount.Repository
	now       func() time.Time
}

// NewPricer creates a Pricer.
func NewPricer(discounts discount.Repository) *Pricer {
	return &Pricer{discounts: discounts, now: time.Now}
}

// Reprice computes the order's costs and stores the discount snapshots on
// o. A referenced discount that no longer exists contributes zero.
func (p *Pricer) Reprice(ctx context.Context, o *Order) (pricing.Costs, error) {
	cache := make(map[string]*discount.Discount)
	resolve := func(id string) (*discount.Discount, error) {
		if id == "" {
			return nil, nil
		}
		if d, ok := cache[id]; ok {
			return d, nil
		}
		d, err := p.discounts.FindByID(ctx, o.MerchantID, id)
		if errors.Is(err, discount.ErrNotFound) {
			d, err = nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "find discount %s", id)
		}
		cache[id] = d
		return d, nil
	}

	in := pricing.Input{
		Lines: make([]pricing.Line, len(o.Items)),
		Now:   p.now(),
	}
	for i, it := range o.Items {
		d, err := resolve(it.DiscountID)
		if err != nil {
			return pricing.Costs{}, err
		}
		offsets := make([]decimal.Decimal, len(it.Variations))
		for j, v := range it.Variations {
			offsets[j] = v.PriceOffset
		}
		in.Lines[i] = pricing.Line{
			ID:        it.ID,
			ProductID: it.CatalogItemID,
			UnitPrice: it.UnitPrice,
			Offsets:   offsets,
			Quantity:  it.Quantity,
			TaxRateID: it.TaxRateID,
			TaxRate:   it.TaxRate,
			Discount:  d,
		}
	}
	d, err := resolve(o.DiscountID)
	if err != nil {
		return pricing.Costs{}, err
	}
	in.OrderDiscount = d

	costs := pricing.Compute(in)
	o.ApplyCosts(costs)
	return costs, nil
}
