// Package handler exposes the order, payment, refund and gift card
// operations over HTTP. Requests and responses are JSON, coded with jx.
package handler

import (
	"net/http"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/domain/refund"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// WebhookParser verifies and decodes a processor webhook delivery.
type WebhookParser interface {
	Parse(payload []byte, signature string) (payment.WebhookEvent, error)
}

// Handler serves the API routes.
type Handler struct {
	orders    *order.Service
	ledger    *payment.Ledger
	refunds   *refund.Engine
	giftcards *giftcard.Service
	webhooks  WebhookParser
	// signatureHeader names the header carrying the webhook signature.
	signatureHeader string
}

// Config holds the collaborators of a Handler.
type Config struct {
	Orders          *order.Service
	Ledger          *payment.Ledger
	Refunds         *refund.Engine
	GiftCards       *giftcard.Service
	Webhooks        WebhookParser
	SignatureHeader string
}

// New creates a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		orders:          cfg.Orders,
		ledger:          cfg.Ledger,
		refunds:         cfg.Refunds,
		giftcards:       cfg.GiftCards,
		webhooks:        cfg.Webhooks,
		signatureHeader: cfg.SignatureHeader,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.merchant(h.createOrder))
	mux.HandleFunc("GET /api/orders/{orderID}", h.merchant(h.getOrder))
	mux.HandleFunc("POST /api/orders/{orderID}/items", h.merchant(h.addItem))
	mux.HandleFunc("PUT /api/orders/{orderID}/items/{itemID}/quantity", h.merchant(h.updateQuantity))
	mux.HandleFunc("DELETE /api/orders/{orderID}/items/{itemID}", h.merchant(h.removeItem))
	mux.HandleFunc("POST /api/orders/{orderID}/discount", h.merchant(h.applyOrderDiscount))
	mux.HandleFunc("POST /api/orders/{orderID}/items/{itemID}/discount", h.merchant(h.applyItemDiscount))
	mux.HandleFunc("POST /api/orders/{orderID}/cancel", h.merchant(h.cancelOrder))
	mux.HandleFunc("POST /api/orders/{orderID}/payments", h.merchant(h.createPayment))
	mux.HandleFunc("POST /api/payments/{paymentID}/cancel", h.merchant(h.cancelPayment))
	mux.HandleFunc("POST /api/orders/{orderID}/refund", h.merchant(h.createRefund))
	mux.HandleFunc("POST /api/giftcards", h.merchant(h.issueGiftCard))
	mux.HandleFunc("GET /api/giftcards/{code}", h.merchant(h.giftCardBalance))
	mux.HandleFunc("POST /api/webhooks/stripe", h.stripeWebhook)
}
