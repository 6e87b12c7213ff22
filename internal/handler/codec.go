package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
	"github.com/tikis23/psp-2025/internal/domain/refund"
)

// decodeBody reads a JSON object from the request body and hands every
// field to fn. An empty body is treated as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest(errors.Wrap(err, "read body"))
	}
	if len(body) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		return badRequest(errors.Wrap(err, "decode body"))
	}
	return nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.New("expected number")
	}
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

// Money is always rendered with two decimals.
func encodeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

// encodeOptStr writes the field only when v is set.
func encodeOptStr(e *jx.Encoder, name, v string) {
	if v != "" {
		encodeStr(e, name, v)
	}
}

func encodeTime(e *jx.Encoder, name string, t time.Time) {
	encodeStr(e, name, t.UTC().Format(time.RFC3339))
}

func encodeView(e *jx.Encoder, v *order.View) {
	o := v.Order
	e.ObjStart()
	encodeStr(e, "id", o.ID)
	encodeStr(e, "merchantId", o.MerchantID.String())
	encodeStr(e, "status", string(o.Status))
	encodeOptStr(e, "discountId", o.DiscountID)
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range o.Items {
			encodeItem(e, &o.Items[i], v.Costs)
		}
		e.ArrEnd()
	})
	e.Field("costs", func(e *jx.Encoder) { encodeCosts(e, v.Costs) })
	e.Field("payments", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range v.Payments {
			encodePayment(e, &v.Payments[i])
		}
		e.ArrEnd()
	})
	encodeMoney(e, "paid", v.Paid)
	encodeMoney(e, "remaining", v.Remaining)
	encodeTime(e, "createdAt", o.CreatedAt)
	encodeTime(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it *order.Item, costs pricing.Costs) {
	e.ObjStart()
	encodeStr(e, "id", it.ID)
	encodeStr(e, "itemId", it.CatalogItemID)
	encodeStr(e, "name", it.Name)
	encodeMoney(e, "unitPrice", it.UnitPrice)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	encodeOptStr(e, "taxRateId", it.TaxRateID)
	e.FieldStart("taxRate")
	e.Num(jx.Num(it.TaxRate.String()))
	encodeOptStr(e, "discountId", it.DiscountID)
	e.Field("variations", func(e *jx.Encoder) {
		e.ArrStart()
		for _, vr := range it.Variations {
			e.ObjStart()
			encodeStr(e, "id", vr.ID)
			encodeStr(e, "variationId", vr.VariationID)
			encodeStr(e, "name", vr.Name)
			encodeMoney(e, "priceOffset", vr.PriceOffset)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	for _, lc := range costs.Lines {
		if lc.LineID != it.ID {
			continue
		}
		encodeMoney(e, "lineGross", lc.Gross)
		encodeMoney(e, "discountAmount", lc.Discount)
		encodeMoney(e, "taxAmount", lc.Tax)
		break
	}
	e.ObjEnd()
}

func encodeCosts(e *jx.Encoder, c pricing.Costs) {
	e.ObjStart()
	encodeMoney(e, "grossSubtotal", c.GrossSubtotal)
	encodeMoney(e, "itemDiscountAmount", c.ItemDiscountAmount)
	encodeMoney(e, "subtotal", c.Subtotal)
	encodeMoney(e, "taxAmount", c.TaxAmount)
	encodeMoney(e, "discountAmount", c.DiscountAmount)
	encodeMoney(e, "total", c.Total)
	e.Field("taxBreakdown", func(e *jx.Encoder) {
		e.ArrStart()
		for _, t := range c.TaxBreakdown {
			e.ObjStart()
			encodeStr(e, "taxRateId", t.TaxRateID)
			e.FieldStart("rate")
			e.Num(jx.Num(t.Rate.String()))
			encodeMoney(e, "taxable", t.Taxable)
			encodeMoney(e, "amount", t.Amount)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("discountBreakdown", func(e *jx.Encoder) {
		e.ArrStart()
		for _, dl := range c.DiscountBreakdown {
			e.ObjStart()
			encodeStr(e, "discountId", dl.DiscountID)
			encodeStr(e, "code", dl.Code)
			encodeStr(e, "scope", string(dl.Scope))
			encodeOptStr(e, "lineId", dl.LineID)
			encodeMoney(e, "amount", dl.Amount)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *order.Payment) {
	e.ObjStart()
	encodeStr(e, "id", p.ID)
	encodeStr(e, "tender", string(p.Tender))
	encodeStr(e, "status", string(p.Status))
	encodeMoney(e, "amount", p.Amount)
	encodeMoney(e, "tip", p.Tip)
	if p.Tender == order.TenderCash {
		encodeMoney(e, "cashReceived", p.CashReceived)
	}
	encodeOptStr(e, "giftCardCode", p.GiftCardCode)
	encodeOptStr(e, "externalRef", p.ExternalRef)
	encodeTime(e, "createdAt", p.CreatedAt)
	e.ObjEnd()
}

func encodePaymentResult(e *jx.Encoder, res *payment.Result) {
	p := &res.Payment
	e.ObjStart()
	encodeStr(e, "paymentId", p.ID)
	encodeStr(e, "orderId", p.OrderID)
	encodeStr(e, "tender", string(p.Tender))
	encodeStr(e, "status", string(p.Status))
	encodeMoney(e, "amount", p.Amount)
	encodeMoney(e, "tip", p.Tip)
	encodeStr(e, "orderStatus", string(res.OrderStatus))
	encodeMoney(e, "total", res.Total)
	encodeMoney(e, "remainingBalance", res.Remaining)
	switch p.Tender {
	case order.TenderCash:
		encodeMoney(e, "cashReceived", p.CashReceived)
		encodeMoney(e, "changeDue", res.ChangeDue)
	case order.TenderGiftCard:
		encodeStr(e, "giftCardCode", p.GiftCardCode)
		if res.GiftCard != nil {
			encodeMoney(e, "remainingCardBalance", res.GiftCard.CurrentBalance)
		}
	case order.TenderCard:
		encodeOptStr(e, "externalRef", p.ExternalRef)
		encodeOptStr(e, "clientSecret", res.ClientSecret)
	}
	e.ObjEnd()
}

func encodeRefundResult(e *jx.Encoder, res *refund.Result) {
	rf := &res.Refund
	e.ObjStart()
	encodeStr(e, "refundId", rf.ID)
	encodeStr(e, "orderId", rf.OrderID)
	encodeMoney(e, "totalAmount", rf.TotalAmount)
	encodeStr(e, "status", string(rf.Status))
	encodeStr(e, "reason", rf.Reason)
	encodeTime(e, "createdAt", rf.CreatedAt)
	e.Field("payments", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range res.Lines {
			e.ObjStart()
			encodeStr(e, "originalPaymentId", l.PaymentID)
			encodeStr(e, "paymentType", string(l.Tender))
			encodeMoney(e, "amount", l.Amount)
			encodeStr(e, "refundStatus", string(l.Outcome))
			encodeStr(e, "paymentStatus", string(l.PaymentStatus))
			encodeOptStr(e, "externalRefundId", l.ExternalRefundID)
			encodeOptStr(e, "error", l.Error)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.ObjEnd()
}

func encodeGiftCard(e *jx.Encoder, c *giftcard.GiftCard) {
	e.ObjStart()
	encodeStr(e, "code", c.Code)
	encodeMoney(e, "initialBalance", c.InitialBalance)
	encodeMoney(e, "currentBalance", c.CurrentBalance)
	e.FieldStart("active")
	e.Bool(c.Active)
	if c.ExpiresAt != nil {
		encodeTime(e, "expiresAt", *c.ExpiresAt)
	}
	encodeTime(e, "createdAt", c.CreatedAt)
	e.ObjEnd()
}
