package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/catalog"
	"github.com/tikis23/psp-2025/internal/domain/discount"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	// ErrHasPayments is returned when cancelling an order that already
	// collected money.
	ErrHasPayments = apperr.Mark(errors.New("order has succeeded payments"), apperr.InvalidState)
	// ErrPendingPayments is returned when cancelling an order while a card
	// payment can still be captured by the processor.
	ErrPendingPayments = apperr.Mark(errors.New("order has pending card payments"), apperr.InvalidState)
	// ErrTotalBelowPaid is returned when a change would price the order below
	// what has already been collected.
	ErrTotalBelowPaid = apperr.Mark(errors.New("order total would fall below the amount paid"), apperr.InvalidState)
)

// View is an order together with its derived monetary state.
type View struct {
	Order     *Order
	Costs     pricing.Costs
	Payments  []Payment
	Paid      decimal.Decimal
	Remaining decimal.Decimal
}

// NewView assembles a View.
func NewView(o *Order, costs pricing.Costs, payments []Payment) *View {
	paid := SumSucceeded(payments)
	return &View{
		Order:     o,
		Costs:     costs,
		Payments:  payments,
		Paid:      paid,
		Remaining: pricing.Remaining(costs.Total, paid),
	}
}

// AddItemRequest holds the input for adding a line to an order.
type AddItemRequest struct {
	CatalogItemID string
	Quantity      int
	VariationIDs  []string
}

// Service implements order creation and mutation.
type Service struct {
	store     Store
	catalog   catalog.Repository
	discounts discount.Repository
	pricer    *Pricer
	audit     audit.Sink
	now       func() time.Time
}

// NewService creates an order Service.
func NewService(
	store Store,
	catalog catalog.Repository,
	discounts discount.Repository,
	pricer *Pricer,
	sink audit.Sink,
) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		discounts: discounts,
		pricer:    pricer,
		audit:     sink,
		now:       time.Now,
	}
}

// Create opens an empty order for the merchant.
func (s *Service) Create(ctx context.Context, merchant tenant.MerchantID) (*View, error) {
	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		MerchantID:      merchant,
		Status:          StatusOpen,
		AppliedDiscount: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.audit.Record(ctx, audit.Event{Type: audit.OrderCreated, MerchantID: merchant, OrderID: o.ID})
	return NewView(o, pricing.Compute(pricing.Input{Now: now}), nil), nil
}

// Get returns the order with freshly computed costs.
func (s *Service) Get(ctx context.Context, merchant tenant.MerchantID, id string) (*View, error) {
	o, err := s.store.Get(ctx, merchant, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	payments, err := s.store.Payments(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	costs, err := s.pricer.Reprice(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "price order")
	}
	return NewView(o, costs, payments), nil
}

// AddItem appends a catalog item to the order, capturing its current price,
// tax rate and selected variations.
func (s *Service) AddItem(ctx context.Context, merchant tenant.MerchantID, orderID string, req AddItemRequest) (*View, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	// Resolve catalog data before taking the order lock.
	item, err := s.catalog.GetItem(ctx, merchant, req.CatalogItemID)
	if err != nil {
		return nil, errors.Wrap(err, "get catalog item")
	}
	line := Item{
		ID:              uuid.New().String(),
		CatalogItemID:   item.ID,
		Name:            item.Name,
		UnitPrice:       item.Price,
		Quantity:        req.Quantity,
		AppliedDiscount: decimal.Zero,
		CreatedAt:       s.now(),
	}
	for _, vid := range req.VariationIDs {
		v, err := item.Variation(vid)
		if err != nil {
			return nil, err
		}
		line.Variations = append(line.Variations, ItemVariation{
			ID:          uuid.New().String(),
			VariationID: v.ID,
			Name:        v.Name,
			PriceOffset: v.PriceOffset,
		})
	}
	if item.TaxRateID != "" {
		rate, err := s.catalog.GetTaxRate(ctx, merchant, item.TaxRateID)
		if err != nil {
			return nil, errors.Wrap(err, "get tax rate")
		}
		if rate.Active {
			line.TaxRateID = rate.ID
			line.TaxRate = rate.Rate
		}
	}

	return s.mutate(ctx, merchant, orderID, "add_item", func(o *Order) error {
		o.Items = append(o.Items, line)
		return nil
	})
}

// UpdateItemQuantity sets the quantity of a line.
func (s *Service) UpdateItemQuantity(ctx context.Context, merchant tenant.MerchantID, orderID, itemID string, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, merchant, orderID, "update_quantity", func(o *Order) error {
		it, err := o.Item(itemID)
		if err != nil {
			return err
		}
		it.Quantity = quantity
		return nil
	})
}

// RemoveItem deletes a line from the order.
func (s *Service) RemoveItem(ctx context.Context, merchant tenant.MerchantID, orderID, itemID string) (*View, error) {
	return s.mutate(ctx, merchant, orderID, "remove_item", func(o *Order) error {
		return o.RemoveItem(itemID)
	})
}

// ApplyOrderDiscount attaches an order-scoped discount, replacing any
// previous one.
func (s *Service) ApplyOrderDiscount(ctx context.Context, merchant tenant.MerchantID, orderID, code string) (*View, error) {
	d, err := s.discounts.FindByCode(ctx, merchant, discount.NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrap(err, "find discount")
	}
	if err := d.CheckOrder(s.now()); err != nil {
		return nil, err
	}
	return s.mutate(ctx, merchant, orderID, "apply_discount", func(o *Order) error {
		o.DiscountID = d.ID
		return nil
	})
}

// ApplyItemDiscount attaches a product-scoped discount to a line.
func (s *Service) ApplyItemDiscount(ctx context.Context, merchant tenant.MerchantID, orderID, itemID, code string) (*View, error) {
	d, err := s.discounts.FindByCode(ctx, merchant, discount.NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrap(err, "find discount")
	}
	now := s.now()
	return s.mutate(ctx, merchant, orderID, "apply_item_discount", func(o *Order) error {
		it, err := o.Item(itemID)
		if err != nil {
			return err
		}
		if err := d.CheckProduct(it.CatalogItemID, now); err != nil {
			return err
		}
		it.DiscountID = d.ID
		return nil
	})
}

// Cancel moves an open order without collected money to CANCELLED.
func (s *Service) Cancel(ctx context.Context, merchant tenant.MerchantID, orderID string) (*View, error) {
	var view *View
	err := s.store.WithinOrder(ctx, merchant, orderID, func(ctx context.Context, tx Tx) error {
		o := tx.Order()
		payments, err := tx.Payments(ctx)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}
		if SumSucceeded(payments).IsPositive() {
			return errors.Wrapf(ErrHasPayments, "order %s", o.ID)
		}
		for _, p := range payments {
			if p.Tender == TenderCard && !p.Status.Final() {
				return errors.Wrapf(ErrPendingPayments, "payment %s is %s", p.ID, p.Status)
			}
		}
		if err := o.TransitionTo(StatusCancelled, s.now()); err != nil {
			return err
		}
		costs, err := s.pricer.Reprice(ctx, o)
		if err != nil {
			return errors.Wrap(err, "price order")
		}
		if err := tx.Save(ctx); err != nil {
			return errors.Wrap(err, "save order")
		}
		view = NewView(o.Clone(), costs, payments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", orderID))
	s.audit.Record(ctx, audit.Event{
		Type:       audit.OrderStatusChanged,
		MerchantID: merchant,
		OrderID:    orderID,
		Attrs:      map[string]string{"status": string(StatusCancelled)},
	})
	return view, nil
}

// mutate applies fn to the locked open order, reprices it and persists it.
// A change that prices the order exactly at what was already collected
// settles it; one that prices it below is rejected.
func (s *Service) mutate(ctx context.Context, merchant tenant.MerchantID, orderID, action string, fn func(o *Order) error) (*View, error) {
	var (
		view    *View
		settled bool
	)
	err := s.store.WithinOrder(ctx, merchant, orderID, func(ctx context.Context, tx Tx) error {
		o := tx.Order()
		if err := o.EnsureOpen(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		now := s.now()
		o.UpdatedAt = now

		costs, err := s.pricer.Reprice(ctx, o)
		if err != nil {
			return errors.Wrap(err, "price order")
		}
		payments, err := tx.Payments(ctx)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}
		paid := SumSucceeded(payments)
		switch {
		case paid.GreaterThan(costs.Total):
			return errors.Wrapf(ErrTotalBelowPaid, "total %s, paid %s",
				costs.Total.StringFixed(2), paid.StringFixed(2))
		case paid.IsPositive() && paid.Equal(costs.Total):
			if err := o.TransitionTo(StatusPaid, now); err != nil {
				return err
			}
			settled = true
		}
		if err := tx.Save(ctx); err != nil {
			return errors.Wrap(err, "save order")
		}
		view = NewView(o.Clone(), costs, payments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:       audit.OrderUpdated,
		MerchantID: merchant,
		OrderID:    orderID,
		Attrs: map[string]string{
			"action": action,
			"total":  view.Costs.Total.StringFixed(2),
		},
	})
	if settled {
		zctx.From(ctx).Info("Order settled by change", zap.String("order_id", orderID), zap.String("action", action))
		s.audit.Record(ctx, audit.Event{
			Type:       audit.OrderStatusChanged,
			MerchantID: merchant,
			OrderID:    orderID,
			Attrs:      map[string]string{"status": string(StatusPaid)},
		})
	}
	return view, nil
}
