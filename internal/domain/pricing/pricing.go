// Package pricing derives the monetary state of an order from its lines and
// attached discounts. Compute is pure: it reads no clock or storage and is
// safe to call repeatedly.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/discount"
)

// Line is the pricing view of one order line.
type Line struct {
	ID        string
	ProductID string
	UnitPrice decimal.Decimal
	// Offsets are the price offsets of the line's selected variations.
	Offsets  []decimal.Decimal
	Quantity int
	// TaxRateID is empty for untaxed lines.
	TaxRateID string
	TaxRate   decimal.Decimal
	Discount  *discount.Discount
}

// Input is everything Compute needs.
type Input struct {
	Lines         []Line
	OrderDiscount *discount.Discount
	// Now is the evaluation instant for discount validity windows.
	Now time.Time
}

// LineCost is the per-line result.
type LineCost struct {
	LineID   string
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
}

// TaxLine aggregates tax by rate.
type TaxLine struct {
	TaxRateID string
	Rate      decimal.Decimal
	Taxable   decimal.Decimal
	Amount    decimal.Decimal
}

// DiscountLine records one discount that reduced the order.
type DiscountLine struct {
	DiscountID string
	Code       string
	Scope      discount.Scope
	// LineID is set for product-scoped discounts.
	LineID string
	Amount decimal.Decimal
}

// Costs is the derived monetary state of an order.
//
// Subtotal is the taxable amount after line discounts and DiscountAmount is
// the order-level discount, so Subtotal + TaxAmount - DiscountAmount = Total.
// GrossSubtotal and ItemDiscountAmount expose the pre-discount view.
type Costs struct {
	GrossSubtotal      decimal.Decimal
	ItemDiscountAmount decimal.Decimal
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
	Total              decimal.Decimal
	Lines              []LineCost
	TaxBreakdown       []TaxLine
	DiscountBreakdown  []DiscountLine
}

// LineDiscount returns the applied discount for lineID.
func (c Costs) LineDiscount(lineID string) decimal.Decimal {
	for _, l := range c.Lines {
		if l.LineID == lineID {
			return l.Discount
		}
	}
	return decimal.Zero
}

// Compute prices the input. Discounts outside their validity window at
// in.Now, or attached to the wrong target, contribute zero.
func Compute(in Input) Costs {
	var (
		c        = Costs{Lines: make([]LineCost, 0, len(in.Lines))}
		taxIdx   = make(map[string]int)
		zero     = decimal.Zero
		grossSum = zero
		itemDisc = zero
		taxable  = zero
		tax      = zero
	)

	for _, l := range in.Lines {
		lc := priceLine(l, in.Now)
		c.Lines = append(c.Lines, lc)

		grossSum = grossSum.Add(lc.Gross)
		itemDisc = itemDisc.Add(lc.Discount)
		taxable = taxable.Add(lc.Taxable)
		tax = tax.Add(lc.Tax)

		if lc.Discount.IsPositive() {
			c.DiscountBreakdown = append(c.DiscountBreakdown, DiscountLine{
				DiscountID: l.Discount.ID,
				Code:       l.Discount.Code,
				Scope:      discount.ScopeProduct,
				LineID:     l.ID,
				Amount:     lc.Discount,
			})
		}

		if l.TaxRateID == "" {
			continue
		}
		i, ok := taxIdx[l.TaxRateID]
		if !ok {
			i = len(c.TaxBreakdown)
			taxIdx[l.TaxRateID] = i
			c.TaxBreakdown = append(c.TaxBreakdown, TaxLine{
				TaxRateID: l.TaxRateID,
				Rate:      l.TaxRate,
				Taxable:   zero,
				Amount:    zero,
			})
		}
		c.TaxBreakdown[i].Taxable = c.TaxBreakdown[i].Taxable.Add(lc.Taxable)
		c.TaxBreakdown[i].Amount = c.TaxBreakdown[i].Amount.Add(lc.Tax)
	}

	beforeOrder := taxable.Add(tax)
	orderDis := zero
	if d := in.OrderDiscount; d != nil && d.CheckOrder(in.Now) == nil {
		orderDis = d.Amount(beforeOrder)
		if orderDis.IsPositive() {
			c.DiscountBreakdown = append(c.DiscountBreakdown, DiscountLine{
				DiscountID: d.ID,
				Code:       d.Code,
				Scope:      discount.ScopeOrder,
				Amount:     orderDis,
			})
		}
	}

	c.GrossSubtotal = grossSum
	c.ItemDiscountAmount = itemDisc
	c.Subtotal = taxable
	c.TaxAmount = tax
	c.DiscountAmount = orderDis
	c.Total = floorAtZero(beforeOrder.Sub(orderDis)).Round(2)
	return c
}

func priceLine(l Line, now time.Time) LineCost {
	unit := l.UnitPrice
	for _, off := range l.Offsets {
		unit = unit.Add(off)
	}
	gross := floorAtZero(unit.Mul(decimal.NewFromInt(int64(l.Quantity)))).Round(2)

	dis := decimal.Zero
	if d := l.Discount; d != nil && d.CheckProduct(l.ProductID, now) == nil {
		dis = d.Amount(gross)
	}

	taxable := gross.Sub(dis)
	tax := decimal.Zero
	if l.TaxRateID != "" {
		tax = taxable.Mul(l.TaxRate).Round(2)
	}

	return LineCost{
		LineID:   l.ID,
		Gross:    gross,
		Discount: dis,
		Taxable:  taxable,
		Tax:      tax,
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Remaining returns total minus paid, floored at zero.
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	return floorAtZero(total.Sub(paid))
}
