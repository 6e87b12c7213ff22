package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
	"github.com/tikis23/psp-2025/internal/storage/memory"
)

const merchant tenant.MerchantID = 7

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// mockProcessor is a hand-written Processor.
type mockProcessor struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	requests []IntentRequest
	refunds  map[string]int64
	canceled []string

	createErr error
	getErr    error
	cancelErr error
	refundErr map[string]error
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		intents:   make(map[string]*Intent),
		refunds:   make(map[string]int64),
		refundErr: make(map[string]error),
	}
}

func (m *mockProcessor) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.requests = append(m.requests, req)
	id := "pi_" + req.IdempotencyKey
	in := &Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}
	m.intents[id] = in
	cp := *in
	return &cp, nil
}

func (m *mockProcessor) GetIntent(_ context.Context, id string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	in, ok := m.intents[id]
	if !ok {
		return nil, errors.Errorf("no such intent %s", id)
	}
	cp := *in
	return &cp, nil
}

func (m *mockProcessor) CancelIntent(_ context.Context, id string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	in, ok := m.intents[id]
	if !ok {
		return nil, errors.Errorf("no such intent %s", id)
	}
	in.Status = IntentCanceled
	m.canceled = append(m.canceled, id)
	cp := *in
	return &cp, nil
}

func (m *mockProcessor) Refund(_ context.Context, intentID string, amountMinor int64) (*ExternalRefund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refundErr[intentID]; err != nil {
		return nil, err
	}
	m.refunds[intentID] += amountMinor
	return &ExternalRefund{ID: "re_" + intentID, Status: "succeeded"}, nil
}

// recorder is an audit.Sink that keeps events in memory.
type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store     *memory.Store
	processor *mockProcessor
	audit     *recorder
	ledger    *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		processor: newMockProcessor(),
		audit:     &recorder{},
	}
	l, err := NewLedger(f.store, order.NewPricer(f.store), f.processor, Options{
		Deduper: memory.NewDeduper(time.Hour),
		Audit:   f.audit,
	})
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.ledger = l
	return f
}

// seedOrder stores an open order of 2 x 10.00 at 10% tax, total 22.00.
func (f *fixture) seedOrder(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &order.Order{
		ID:         id,
		MerchantID: merchant,
		Status:     order.StatusOpen,
		Items: []order.Item{{
			ID:            id + "-line",
			CatalogItemID: "coffee",
			Name:          "Coffee",
			UnitPrice:     dec("10.00"),
			Quantity:      2,
			TaxRateID:     "vat",
			TaxRate:       dec("0.10"),
		}},
	}))
}

func (f *fixture) seedCard(t *testing.T, code, balance string) {
	t.Helper()
	require.NoError(t, f.store.GiftCards().Create(context.Background(), &giftcard.GiftCard{
		Code:           code,
		MerchantID:     merchant,
		InitialBalance: dec(balance),
		CurrentBalance: dec(balance),
		Active:         true,
	}))
}

func TestLedger_CashOvertender(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("25")})
	require.NoError(t, err)

	assert.True(t, dec("22.00").Equal(res.Total))
	assert.True(t, dec("22.00").Equal(res.Payment.Amount))
	assert.True(t, dec("25.00").Equal(res.Payment.CashReceived))
	assert.True(t, dec("3.00").Equal(res.ChangeDue))
	assert.True(t, res.Remaining.IsZero())
	assert.Equal(t, order.PaymentSucceeded, res.Payment.Status)
	assert.Equal(t, order.StatusPaid, res.OrderStatus)

	o, err := f.store.Get(ctx, merchant, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, []string{audit.PaymentCreated, audit.OrderStatusChanged}, f.audit.types())

	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("1")})
	require.ErrorIs(t, err, order.ErrNotOpen)
}

func TestLedger_SplitTenders(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	f.seedCard(t, "GC-00000001", "5.00")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("12")})
	require.NoError(t, err)
	assert.True(t, dec("10.00").Equal(res.Remaining))
	assert.True(t, res.ChangeDue.IsZero())
	assert.Equal(t, order.StatusOpen, res.OrderStatus)

	res, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderGiftCard, GiftCardCode: " GC-00000001 "})
	require.NoError(t, err)
	assert.True(t, dec("5.00").Equal(res.Payment.Amount))
	assert.True(t, dec("5.00").Equal(res.Remaining))
	require.NotNil(t, res.GiftCard)
	assert.True(t, res.GiftCard.CurrentBalance.IsZero())
	assert.False(t, res.GiftCard.Active)

	res, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("5")})
	require.NoError(t, err)
	assert.True(t, res.Remaining.IsZero())
	assert.Equal(t, order.StatusPaid, res.OrderStatus)

	payments, err := f.store.Payments(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.True(t, dec("22.00").Equal(order.SumSucceeded(payments)))
}

func TestLedger_GiftCardErrors(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	f.seedCard(t, "GC-EMPTY001", "1.00")
	ctx := context.Background()

	_, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderGiftCard})
	require.ErrorIs(t, err, ErrGiftCardCodeRequired)

	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderGiftCard, GiftCardCode: "GC-MISSING"})
	require.ErrorIs(t, err, giftcard.ErrNotFound)

	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderGiftCard, GiftCardCode: "GC-EMPTY001"})
	require.NoError(t, err)
	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderGiftCard, GiftCardCode: "GC-EMPTY001"})
	require.ErrorIs(t, err, giftcard.ErrInactive)
	require.ErrorIs(t, err, apperr.InvalidState)
}

func TestLedger_GiftCardAmountCapsRedemption(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	f.seedCard(t, "GC-00000002", "50.00")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{
		Tender:       order.TenderGiftCard,
		GiftCardCode: "GC-00000002",
		Amount:       dec("4.50"),
	})
	require.NoError(t, err)
	assert.True(t, dec("4.50").Equal(res.Payment.Amount))
	assert.True(t, dec("45.50").Equal(res.GiftCard.CurrentBalance))
	assert.True(t, res.GiftCard.Active)
}

func TestLedger_Validation(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	for _, tt := range []struct {
		name string
		req  Request
		want error
	}{
		{"UnknownTender", Request{Tender: "CHEQUE", Amount: dec("1")}, ErrUnsupportedTender},
		{"NegativeTip", Request{Tender: order.TenderCash, Amount: dec("1"), Tip: dec("-1")}, ErrInvalidTip},
		{"ZeroCash", Request{Tender: order.TenderCash}, ErrInvalidAmount},
		{"NegativeCard", Request{Tender: order.TenderCard, Amount: dec("-3")}, ErrInvalidAmount},
		{"CashRoundsToZero", Request{Tender: order.TenderCash, Amount: dec("0.004")}, ErrInvalidAmount},
		{"CardRoundsToZero", Request{Tender: order.TenderCard, Amount: dec("0.001")}, ErrInvalidAmount},
		{"GiftCardRoundsToZero", Request{Tender: order.TenderGiftCard, GiftCardCode: "GC-1", Amount: dec("0.001")}, ErrInvalidAmount},
		{"CashTooLarge", Request{Tender: order.TenderCash, Amount: dec("10000000000")}, ErrInvalidAmount},
		{"CardTooLarge", Request{Tender: order.TenderCard, Amount: dec("92233720368547758.08")}, ErrInvalidAmount},
		{"TipTooLarge", Request{Tender: order.TenderCard, Amount: dec("22"), Tip: dec("184467440737095516.17")}, ErrInvalidTip},
		{"CardPlusTipTooLarge", Request{Tender: order.TenderCard, Amount: dec("22"), Tip: MaxAmount}, ErrInvalidAmount},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreatePayment(ctx, merchant, "o1", tt.req)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, apperr.Validation)
		})
	}

	_, err := f.ledger.CreatePayment(ctx, merchant+1, "o1", Request{Tender: order.TenderCash, Amount: dec("1")})
	require.ErrorIs(t, err, order.ErrNotFound)

	payments, err := f.store.Payments(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Empty(t, f.processor.requests)
}

func TestLedger_AmountBounds(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	// Half a cent rounds up to a cent.
	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("0.005")})
	require.NoError(t, err)
	assert.True(t, dec("0.01").Equal(res.Payment.Amount))

	res, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: MaxAmount})
	require.NoError(t, err)
	assert.True(t, dec("21.99").Equal(res.Payment.Amount))
	assert.True(t, MaxAmount.Sub(dec("21.99")).Equal(res.ChangeDue))
	assert.Equal(t, order.StatusPaid, res.OrderStatus)
}

func TestLedger_AlreadyPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// An empty order has nothing to pay.
	require.NoError(t, f.store.Create(ctx, &order.Order{ID: "empty", MerchantID: merchant, Status: order.StatusOpen}))

	_, err := f.ledger.CreatePayment(ctx, merchant, "empty", Request{Tender: order.TenderCash, Amount: dec("1")})
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestLedger_CardLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{
		Tender: order.TenderCard,
		Amount: dec("30"),
		Tip:    dec("2.50"),
	})
	require.NoError(t, err)

	p := res.Payment
	assert.Equal(t, order.PaymentRequiresAction, p.Status)
	assert.True(t, dec("22.00").Equal(p.Amount))
	assert.True(t, dec("2.50").Equal(p.Tip))
	assert.Equal(t, "pi_"+p.ID, p.ExternalRef)
	assert.Equal(t, p.ExternalRef+"_secret", res.ClientSecret)
	assert.True(t, dec("22.00").Equal(res.Remaining))
	assert.Equal(t, order.StatusOpen, res.OrderStatus)

	require.Len(t, f.processor.requests, 1)
	req := f.processor.requests[0]
	assert.Equal(t, int64(2450), req.AmountMinor)
	assert.Equal(t, p.ID, req.IdempotencyKey)
	assert.Equal(t, "o1", req.Metadata["order_id"])
	assert.Equal(t, "7", req.Metadata["merchant_id"])

	require.NoError(t, f.ledger.UpdateStatus(ctx, p.ExternalRef, order.PaymentProcessing))
	require.NoError(t, f.ledger.UpdateStatus(ctx, p.ExternalRef, order.PaymentSucceeded))

	o, err := f.store.Get(ctx, merchant, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)

	// A late failure must not resurrect a settled payment.
	require.NoError(t, f.ledger.UpdateStatus(ctx, p.ExternalRef, order.PaymentFailed))
	stored, err := f.store.PaymentByID(ctx, merchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentSucceeded, stored.Status)
}

func TestLedger_CardFailedThenRetried(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.NoError(t, err)
	require.NoError(t, f.ledger.UpdateStatus(ctx, res.Payment.ExternalRef, order.PaymentFailed))

	// FAILED is not final; the processor may still report a later success.
	require.NoError(t, f.ledger.UpdateStatus(ctx, res.Payment.ExternalRef, order.PaymentSucceeded))
	o, err := f.store.Get(ctx, merchant, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
}

func TestLedger_CardProcessorFailure(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	f.processor.createErr = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.ErrorIs(t, err, apperr.ExternalService)

	var pe *ProcessorError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "create intent", pe.Op)

	payments, err := f.store.Payments(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Empty(t, f.audit.types())
}

// insertFailingStore fails every payment insert.
type insertFailingStore struct {
	order.Store
}

func (s insertFailingStore) WithinOrder(ctx context.Context, merchant tenant.MerchantID, id string, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.Store.WithinOrder(ctx, merchant, id, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, insertFailingTx{Tx: tx})
	})
}

type insertFailingTx struct {
	order.Tx
}

func (insertFailingTx) InsertPayment(context.Context, *order.Payment) error {
	return errors.New("disk full")
}

func TestLedger_CardInsertFailureCancelsIntent(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()
	l, err := NewLedger(insertFailingStore{Store: f.store}, order.NewPricer(f.store), f.processor, Options{Audit: f.audit})
	require.NoError(t, err)

	_, err = l.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.ErrorContains(t, err, "disk full")

	require.Len(t, f.processor.requests, 1)
	assert.Equal(t, []string{"pi_" + f.processor.requests[0].IdempotencyKey}, f.processor.canceled)
	payments, err := f.store.Payments(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, payments)

	// A failing cancel still reports the insert error.
	f.processor.cancelErr = errors.New("processor down")
	_, err = l.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.ErrorContains(t, err, "disk full")
	assert.Len(t, f.processor.canceled, 1)
}

func TestLedger_DisabledProcessor(t *testing.T) {
	store := memory.New()
	l, err := NewLedger(store, order.NewPricer(store), DisabledProcessor{}, Options{})
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), &order.Order{
		ID: "o1", MerchantID: merchant, Status: order.StatusOpen,
		Items: []order.Item{{ID: "l1", UnitPrice: dec("1"), Quantity: 1}},
	}))

	_, err = l.CreatePayment(context.Background(), merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("1")})
	require.ErrorIs(t, err, ErrProcessorDisabled)
	require.ErrorIs(t, err, apperr.ExternalService)
}

func TestLedger_Overpaid(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	card, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.NoError(t, err)
	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("22")})
	require.NoError(t, err)

	// The card settles after cash already closed the order.
	require.NoError(t, f.ledger.UpdateStatus(ctx, card.Payment.ExternalRef, order.PaymentSucceeded))
	assert.Contains(t, f.audit.types(), audit.PaymentOverpaid)
}

func TestLedger_UpdateStatusUnknownRef(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.UpdateStatus(context.Background(), "pi_missing", order.PaymentSucceeded)
	require.ErrorIs(t, err, order.ErrPaymentNotFound)
}

func TestLedger_ConcurrentCashNeverOverpays(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	var g errgroup.Group
	for range 10 {
		g.Go(func() error {
			_, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("5")})
			if errors.Is(err, order.ErrNotOpen) || errors.Is(err, ErrAlreadyPaid) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	payments, err := f.store.Payments(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, dec("22.00").Equal(order.SumSucceeded(payments)))
	assert.Len(t, payments, 5)
}

func TestLedger_CancelPayment(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("10")})
	require.NoError(t, err)

	canceled, err := f.ledger.CancelPayment(ctx, merchant, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCanceled, canceled.Status)
	assert.Equal(t, []string{res.Payment.ExternalRef}, f.processor.canceled)

	_, err = f.ledger.CancelPayment(ctx, merchant, res.Payment.ID)
	require.ErrorIs(t, err, ErrNotCancelable)

	cash, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("1")})
	require.NoError(t, err)
	_, err = f.ledger.CancelPayment(ctx, merchant, cash.Payment.ID)
	require.ErrorIs(t, err, ErrNotCancelable)

	_, err = f.ledger.CancelPayment(ctx, merchant+1, res.Payment.ID)
	require.ErrorIs(t, err, order.ErrPaymentNotFound)
}

func TestLedger_CancelPaymentAlreadyCanceledAtProcessor(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("10")})
	require.NoError(t, err)
	f.processor.intents[res.Payment.ExternalRef].Status = IntentCanceled

	canceled, err := f.ledger.CancelPayment(ctx, merchant, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCanceled, canceled.Status)
	assert.Empty(t, f.processor.canceled)
}

func TestLedger_CancelPaymentProcessorError(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("10")})
	require.NoError(t, err)
	f.processor.cancelErr = errors.New("timeout")

	_, err = f.ledger.CancelPayment(ctx, merchant, res.Payment.ID)
	require.ErrorIs(t, err, apperr.ExternalService)

	stored, err := f.store.PaymentByID(ctx, merchant, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRequiresAction, stored.Status)
}

func TestLedger_EditAfterPartialPayment(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()
	svc := order.NewService(f.store, f.store, f.store, order.NewPricer(f.store), f.audit)

	res, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("11")})
	require.NoError(t, err)
	require.Equal(t, order.StatusOpen, res.OrderStatus)

	// Removing the line would leave less to pay than was collected.
	_, err = svc.RemoveItem(ctx, merchant, "o1", "o1-line")
	require.ErrorIs(t, err, order.ErrTotalBelowPaid)

	v, err := svc.UpdateItemQuantity(ctx, merchant, "o1", "o1-line", 1)
	require.NoError(t, err)
	assert.True(t, dec("11.00").Equal(v.Costs.Total))
	assert.True(t, v.Remaining.IsZero())
	assert.Equal(t, order.StatusPaid, v.Order.Status)

	_, err = f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCash, Amount: dec("1")})
	require.ErrorIs(t, err, order.ErrNotOpen)
}

func TestLedger_CancelOrderWithOpenIntent(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1")
	ctx := context.Background()
	svc := order.NewService(f.store, f.store, f.store, order.NewPricer(f.store), f.audit)

	card, err := f.ledger.CreatePayment(ctx, merchant, "o1", Request{Tender: order.TenderCard, Amount: dec("22")})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, merchant, "o1")
	require.ErrorIs(t, err, order.ErrPendingPayments)
	assert.Empty(t, f.processor.canceled)

	_, err = f.ledger.CancelPayment(ctx, merchant, card.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{card.Payment.ExternalRef}, f.processor.canceled)

	v, err := svc.Cancel(ctx, merchant, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, v.Order.Status)
}

func TestMinorUnits(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"22.00", 2200},
		{"0.015", 2},
		{"19.994", 1999},
		{"1234.5", 123450},
		{"9999999999.99", 999999999999},
	} {
		assert.Equal(t, tt.want, MinorUnits(dec(tt.in)), tt.in)
	}
}
