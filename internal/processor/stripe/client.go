// Package stripe adapts the Stripe API to payment.Processor and verifies
// Stripe webhook deliveries.
package stripe

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tikis23/psp-2025/internal/domain/payment"
)

// Config holds the processor credentials and call limits.
type Config struct {
	SecretKey string
	Currency  string
	// Timeout bounds every API call.
	Timeout time.Duration
	// URL overrides the API base URL.
	URL string

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Client implements payment.Processor on the Stripe PaymentIntents and
// Refunds APIs.
type Client struct {
	api      *client.API
	currency string
	timeout  time.Duration
}

var _ payment.Processor = (*Client)(nil)

// New creates a Client. The SDK's own retries are disabled.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyEUR)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var opts []otelhttp.Option
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.URL != "" {
		backendCfg.URL = stripe.String(cfg.URL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &Client{api: api, currency: cfg.Currency, timeout: cfg.Timeout}, nil
}

// CreateIntent implements payment.Processor.
func (c *Client) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(c.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrap("create intent", err)
	}
	return toIntent(pi), nil
}

// GetIntent implements payment.Processor.
func (c *Client) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrap("get intent", err)
	}
	return toIntent(pi), nil
}

// CancelIntent implements payment.Processor.
func (c *Client) CancelIntent(ctx context.Context, id string) (*payment.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, wrap("cancel intent", err)
	}
	return toIntent(pi), nil
}

// Refund implements payment.Processor.
func (c *Client) Refund(ctx context.Context, intentID string, amountMinor int64) (*payment.ExternalRefund, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountMinor),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, wrap("refund", err)
	}
	return &payment.ExternalRefund{ID: r.ID, Status: string(r.Status)}, nil
}

func toIntent(pi *stripe.PaymentIntent) *payment.Intent {
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
}

// wrap converts SDK errors into payment.ProcessorError, keeping the Stripe
// message when there is one.
func wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return &payment.ProcessorError{Op: op, Err: errors.Errorf("%s (%s, status %d)", se.Msg, se.Code, se.HTTPStatusCode)}
	}
	return &payment.ProcessorError{Op: op, Err: err}
}
