// Package tenant defines the merchant identity threaded through every core
// operation.
package tenant

import (
	"strconv"

	"github.com/go-faster/errors"
)

// MerchantID identifies the merchant that owns orders, gift cards, catalog
// entries and discounts.
type MerchantID int64

// ErrInvalidMerchant is returned by Parse for empty or non-positive values.
var ErrInvalidMerchant = errors.New("invalid merchant id")

// Parse converts a textual merchant id (as carried in X-Merchant-ID).
func Parse(s string) (MerchantID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Wrapf(ErrInvalidMerchant, "parse %q", s)
	}
	return MerchantID(v), nil
}

func (m MerchantID) String() string {
	return strconv.FormatInt(int64(m), 10)
}
