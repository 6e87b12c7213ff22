package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/domain/refund"
	"github.com/tikis23/psp-2025/internal/handler"
	"github.com/tikis23/psp-2025/internal/processor/stripe"
	"github.com/tikis23/psp-2025/pkg/health"
	"github.com/tikis23/psp-2025/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	b, err := openBackends(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	// Audit events outlive request contexts and are drained after the
	// server has stopped accepting requests.
	sink := audit.NewAsync(b.publisher, lg.Named("audit"), cfg.Audit.Buffer)

	// Health check service.
	healthSvc := health.New()
	for name, check := range b.checks {
		healthSvc.AddReadinessCheck(name, checkTimeout, check)
	}
	healthSvc.AddReadinessCheck("audit", time.Second, health.CounterCheck(sink.Dropped, cfg.Audit.MaxDropped))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))

	processor, webhooks, err := newProcessor(lg, m, cfg)
	if err != nil {
		return err
	}

	// Domain services.
	pricer := order.NewPricer(b.discounts)
	orderService := order.NewService(b.orders, b.catalog, b.discounts, pricer, sink)
	ledger, err := payment.NewLedger(b.orders, pricer, processor, payment.Options{
		Deduper:        b.deduper,
		Audit:          sink,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}

	h := handler.New(handler.Config{
		Orders:          orderService,
		Ledger:          ledger,
		Refunds:         refund.NewEngine(b.orders, processor, sink),
		GiftCards:       giftcard.NewService(b.giftcards, sink),
		Webhooks:        webhooks,
		SignatureHeader: stripe.SignatureHeader,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Card payments and refunds wait on the processor.
		WriteTimeout:   cfg.Stripe.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
				AllowHeaders:     []string{"Content-Type", handler.MerchantHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("psp-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sink.Run(auditCtx, cfg.Audit.DrainTimeout)
	})
	g.Go(func() error {
		healthSvc.Start(gctx, 10*time.Second)
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		defer stopAudit()
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}

// newProcessor builds the Stripe client and webhook verifier. Without a
// secret key card tenders are refused.
func newProcessor(lg *zap.Logger, m *app.Telemetry, cfg *Config) (payment.Processor, handler.WebhookParser, error) {
	webhooks := stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
	if cfg.Stripe.WebhookSecret == "" {
		lg.Warn("Stripe webhook secret not set, webhook signatures are not verified")
	}
	if cfg.Stripe.SecretKey == "" {
		lg.Warn("Stripe secret key not set, card payments are disabled")
		return payment.DisabledProcessor{}, webhooks, nil
	}

	client, err := stripe.New(stripe.Config{
		SecretKey:      cfg.Stripe.SecretKey,
		Currency:       cfg.Stripe.Currency,
		Timeout:        cfg.Stripe.Timeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create stripe client")
	}
	return client, webhooks, nil
}
