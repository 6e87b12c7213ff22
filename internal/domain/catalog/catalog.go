// Package catalog describes the read-only catalog collaborator: sellable
// items, their variations and the merchant's tax rates.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	// ErrItemNotFound is returned when an item does not exist for the merchant.
	ErrItemNotFound = apperr.Mark(errors.New("catalog item not found"), apperr.NotFound)
	// ErrVariationNotFound is returned when a requested variation does not belong to the item.
	ErrVariationNotFound = apperr.Mark(errors.New("item variation not found"), apperr.NotFound)
	// ErrTaxRateNotFound is returned when a tax rate does not exist for the merchant.
	ErrTaxRateNotFound = apperr.Mark(errors.New("tax rate not found"), apperr.NotFound)
)

// Item is a sellable product or service.
type Item struct {
	ID         string
	MerchantID tenant.MerchantID
	Name       string
	Price      decimal.Decimal
	// TaxRateID is empty for untaxed items.
	TaxRateID  string
	Variations []Variation
}

// Variation is an optional modifier of an item's price.
type Variation struct {
	ID          string
	Name        string
	PriceOffset decimal.Decimal
}

// TaxRate is a merchant-defined rate expressed as a fraction (0.21 = 21%).
type TaxRate struct {
	ID         string
	MerchantID tenant.MerchantID
	Name       string
	Rate       decimal.Decimal
	Active     bool
}

// Variation returns the variation with the given id.
func (i *Item) Variation(id string) (Variation, error) {
	for _, v := range i.Variations {
		if v.ID == id {
			return v, nil
		}
	}
	return Variation{}, errors.Wrapf(ErrVariationNotFound, "item %s variation %s", i.ID, id)
}

// Repository provides catalog lookups scoped to a merchant.
type Repository interface {
	GetItem(ctx context.Context, merchant tenant.MerchantID, id string) (*Item, error)
	GetTaxRate(ctx context.Context, merchant tenant.MerchantID, id string) (*TaxRate, error)
}
