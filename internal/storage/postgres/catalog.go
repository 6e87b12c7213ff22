package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tikis23/psp-2025/internal/domain/catalog"
	"github.com/tikis23/psp-2025/internal/domain/discount"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	_ catalog.Repository  = (*CatalogRepository)(nil)
	_ discount.Repository = (*DiscountRepository)(nil)
)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetItem returns a catalog item with its variations.
func (r *CatalogRepository) GetItem(ctx context.Context, merchant tenant.MerchantID, id string) (*catalog.Item, error) {
	var (
		it        catalog.Item
		merchID   int64
		taxRateID *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, merchant_id, name, price, tax_rate_id FROM catalog_items WHERE id = $1 AND merchant_id = $2`,
		id, int64(merchant),
	).Scan(&it.ID, &merchID, &it.Name, &it.Price, &taxRateID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(catalog.ErrItemNotFound, "item %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get item %s", id)
	}
	it.MerchantID = tenant.MerchantID(merchID)
	it.TaxRateID = deref(taxRateID)

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_offset FROM catalog_variations WHERE item_id = $1 ORDER BY id`, id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list variations of item %s", id)
	}
	it.Variations, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Variation, error) {
		var v catalog.Variation
		err := row.Scan(&v.ID, &v.Name, &v.PriceOffset)
		return v, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan variations of item %s", id)
	}
	return &it, nil
}

// GetTaxRate returns a tax rate of the merchant.
func (r *CatalogRepository) GetTaxRate(ctx context.Context, merchant tenant.MerchantID, id string) (*catalog.TaxRate, error) {
	var (
		rate    catalog.TaxRate
		merchID int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, merchant_id, name, rate, active FROM tax_rates WHERE id = $1 AND merchant_id = $2`,
		id, int64(merchant),
	).Scan(&rate.ID, &merchID, &rate.Name, &rate.Rate, &rate.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(catalog.ErrTaxRateNotFound, "tax rate %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tax rate %s", id)
	}
	rate.MerchantID = tenant.MerchantID(merchID)
	return &rate, nil
}

const discountColumns = `id, merchant_id, code, type, scope, value, product_id, valid_from, valid_to`

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks a discount up by code, ignoring case.
func (r *DiscountRepository) FindByCode(ctx context.Context, merchant tenant.MerchantID, code string) (*discount.Discount, error) {
	d, err := scanDiscount(r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE merchant_id = $1 AND UPPER(code) = UPPER($2)`,
		int64(merchant), code,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(discount.ErrNotFound, "code %s", code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find discount by code %q", code)
	}
	return d, nil
}

// FindByID returns a discount of the merchant.
func (r *DiscountRepository) FindByID(ctx context.Context, merchant tenant.MerchantID, id string) (*discount.Discount, error) {
	d, err := scanDiscount(r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE id = $1 AND merchant_id = $2`,
		id, int64(merchant),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(discount.ErrNotFound, "discount %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find discount %s", id)
	}
	return d, nil
}

func scanDiscount(row pgx.Row) (*discount.Discount, error) {
	var (
		d          discount.Discount
		merchant   int64
		typ, scope string
		productID  *string
	)
	err := row.Scan(&d.ID, &merchant, &d.Code, &typ, &scope, &d.Value, &productID, &d.ValidFrom, &d.ValidTo)
	if err != nil {
		return nil, err
	}
	d.MerchantID = tenant.MerchantID(merchant)
	d.Type = discount.Type(typ)
	d.Scope = discount.Scope(scope)
	d.ProductID = deref(productID)
	return &d, nil
}
