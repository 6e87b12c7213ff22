package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	// ErrNotFound is returned when the order does not exist for the merchant.
	ErrNotFound = apperr.Mark(errors.New("order not found"), apperr.NotFound)
	// ErrItemNotFound is returned when a line id does not belong to the order.
	ErrItemNotFound = apperr.Mark(errors.New("order item not found"), apperr.NotFound)
	// ErrNotOpen is returned when mutating or paying an order that is no longer open.
	ErrNotOpen = apperr.Mark(errors.New("order is not open"), apperr.InvalidState)
	// ErrInvalidQuantity is returned for non-positive line quantities.
	ErrInvalidQuantity = apperr.Mark(errors.New("quantity must be greater than 0"), apperr.Validation)
)

// Order is the aggregate root of a sale. Payments and refunds reference it
// by id and are loaded through the Tx that locks it.
type Order struct {
	ID         string
	MerchantID tenant.MerchantID
	Status     Status
	// DiscountID references the order-scoped discount, if any.
	DiscountID string
	// AppliedDiscount is the last computed order discount snapshot.
	AppliedDiscount decimal.Decimal
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is one order line.
type Item struct {
	ID            string
	CatalogItemID string
	Name          string
	UnitPrice     decimal.Decimal
	Quantity      int
	// TaxRateID is empty for untaxed lines. TaxRate is the rate captured
	// when the line was added.
	TaxRateID string
	TaxRate   decimal.Decimal
	// DiscountID references the product-scoped discount, if any.
	DiscountID      string
	AppliedDiscount decimal.Decimal
	Variations      []ItemVariation
	CreatedAt       time.Time
}

// ItemVariation is a variation selected for a line, with its offset
// captured when the line was added.
type ItemVariation struct {
	ID          string
	VariationID string
	Name        string
	PriceOffset decimal.Decimal
}

// UnitTotal returns the unit price plus all variation offsets.
func (i *Item) UnitTotal() decimal.Decimal {
	total := i.UnitPrice
	for _, v := range i.Variations {
		total = total.Add(v.PriceOffset)
	}
	return total
}

// EnsureOpen fails unless the order accepts item, discount and payment changes.
func (o *Order) EnsureOpen() error {
	if o.Status != StatusOpen {
		return errors.Wrapf(ErrNotOpen, "order %s is %s", o.ID, o.Status)
	}
	return nil
}

// Item returns the line with the given id.
func (o *Order) Item(id string) (*Item, error) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], nil
		}
	}
	return nil, errors.Wrapf(ErrItemNotFound, "order %s item %s", o.ID, id)
}

// RemoveItem deletes the line with the given id, keeping the order of the
// remaining lines.
func (o *Order) RemoveItem(id string) error {
	for i := range o.Items {
		if o.Items[i].ID == id {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrItemNotFound, "order %s item %s", o.ID, id)
}

// ApplyCosts stores the discount snapshots of costs on the order and its lines.
func (o *Order) ApplyCosts(c pricing.Costs) {
	o.AppliedDiscount = c.DiscountAmount
	for i := range o.Items {
		o.Items[i].AppliedDiscount = c.LineDiscount(o.Items[i].ID)
	}
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		it.Variations = append([]ItemVariation(nil), it.Variations...)
		c.Items[i] = it
	}
	return &c
}
