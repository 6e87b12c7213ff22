// Package memory implements the storage ports in process. It backs the
// service when no database is configured and doubles as the store in
// domain tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/tikis23/psp-2025/internal/domain/catalog"
	"github.com/tikis23/psp-2025/internal/domain/discount"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// Store keeps every aggregate in maps guarded by one RWMutex. Per-order
// mutexes serialize WithinOrder calls for the same order.
type Store struct {
	mu sync.RWMutex

	orders        map[string]*order.Order
	payments      map[string]*order.Payment
	orderPayments map[string][]string
	paymentRefs   map[string]string
	refunds       map[string]*order.Refund
	cards         map[string]*giftcard.GiftCard
	discounts     map[string]*discount.Discount
	items         map[string]*catalog.Item
	taxRates      map[string]*catalog.TaxRate

	orderLocks sync.Map
}

var (
	_ order.Store         = (*Store)(nil)
	_ giftcard.Store      = (*GiftCards)(nil)
	_ catalog.Repository  = (*Store)(nil)
	_ discount.Repository = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		orders:        make(map[string]*order.Order),
		payments:      make(map[string]*order.Payment),
		orderPayments: make(map[string][]string),
		paymentRefs:   make(map[string]string),
		refunds:       make(map[string]*order.Refund),
		cards:         make(map[string]*giftcard.GiftCard),
		discounts:     make(map[string]*discount.Discount),
		items:         make(map[string]*catalog.Item),
		taxRates:      make(map[string]*catalog.TaxRate),
	}
}

// --- Orders ---

// Create implements order.Store.
func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// Get implements order.Store.
func (s *Store) Get(_ context.Context, merchant tenant.MerchantID, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || o.MerchantID != merchant {
		return nil, errors.Wrapf(order.ErrNotFound, "order %s", id)
	}
	return o.Clone(), nil
}

// Payments implements order.Store.
func (s *Store) Payments(_ context.Context, orderID string) ([]order.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentsLocked(orderID), nil
}

func (s *Store) paymentsLocked(orderID string) []order.Payment {
	ids := s.orderPayments[orderID]
	out := make([]order.Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.payments[id])
	}
	return out
}

// PaymentByID implements order.Store.
func (s *Store) PaymentByID(_ context.Context, merchant tenant.MerchantID, id string) (*order.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok || p.MerchantID != merchant {
		return nil, errors.Wrapf(order.ErrPaymentNotFound, "payment %s", id)
	}
	cp := *p
	return &cp, nil
}

// PaymentByExternalRef implements order.Store.
func (s *Store) PaymentByExternalRef(_ context.Context, ref string) (*order.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.paymentRefs[ref]
	if !ok {
		return nil, errors.Wrapf(order.ErrPaymentNotFound, "external ref %s", ref)
	}
	cp := *s.payments[id]
	return &cp, nil
}

// Refund returns the refund recorded for an order.
func (s *Store) Refund(_ context.Context, orderID string) (*order.Refund, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refunds[orderID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// WithinOrder implements order.Store.
func (s *Store) WithinOrder(ctx context.Context, merchant tenant.MerchantID, id string, fn func(context.Context, order.Tx) error) error {
	lock := s.orderLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	o, ok := s.orders[id]
	if !ok || o.MerchantID != merchant {
		s.mu.RUnlock()
		return errors.Wrapf(order.ErrNotFound, "order %s", id)
	}
	tx := &orderTx{
		store:    s,
		order:    o.Clone(),
		payments: s.paymentsLocked(id),
		dirty:    make(map[string]bool),
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) orderLock(id string) *sync.Mutex {
	l, _ := s.orderLocks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// --- Catalog and discounts ---

// PutItem adds or replaces a catalog item.
func (s *Store) PutItem(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.Variations = append([]catalog.Variation(nil), it.Variations...)
	s.items[it.ID] = &it
}

// PutTaxRate adds or replaces a tax rate.
func (s *Store) PutTaxRate(r catalog.TaxRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxRates[r.ID] = &r
}

// PutDiscount adds or replaces a discount.
func (s *Store) PutDiscount(d discount.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts[d.ID] = &d
}

// GetItem implements catalog.Repository.
func (s *Store) GetItem(_ context.Context, merchant tenant.MerchantID, id string) (*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok || it.MerchantID != merchant {
		return nil, errors.Wrapf(catalog.ErrItemNotFound, "item %s", id)
	}
	cp := *it
	cp.Variations = append([]catalog.Variation(nil), it.Variations...)
	return &cp, nil
}

// GetTaxRate implements catalog.Repository.
func (s *Store) GetTaxRate(_ context.Context, merchant tenant.MerchantID, id string) (*catalog.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.taxRates[id]
	if !ok || r.MerchantID != merchant {
		return nil, errors.Wrapf(catalog.ErrTaxRateNotFound, "tax rate %s", id)
	}
	cp := *r
	return &cp, nil
}

// FindByCode implements discount.Repository.
func (s *Store) FindByCode(_ context.Context, merchant tenant.MerchantID, code string) (*discount.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.discounts {
		if d.MerchantID == merchant && strings.EqualFold(d.Code, code) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(discount.ErrNotFound, "code %s", code)
}

// FindByID implements discount.Repository.
func (s *Store) FindByID(_ context.Context, merchant tenant.MerchantID, id string) (*discount.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discounts[id]
	if !ok || d.MerchantID != merchant {
		return nil, errors.Wrapf(discount.ErrNotFound, "discount %s", id)
	}
	cp := *d
	return &cp, nil
}
