package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/supplyhub/marketplace/internal/domain/order"
	"github.com/supplyhub/marketplace/internal/domain/payment"
	"github.com/supplyhub/marketplace/internal/handler"
	"github.com/supplyhub/marketplace/internal/linkage"
	"github.com/supplyhub/marketplace/internal/postgres"
	"github.com/supplyhub/marketplace/internal/stripe"
	"github.com/supplyhub/marketplace/pkg/health"
	"github.com/supplyhub/marketplace/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the thread-linkage
// worker, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Storage.
	orderStore := postgres.NewOrderStore(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	threadStore := postgres.NewThreadStore(pool)
	linkOutbox := postgres.NewLinkOutbox(pool)

	// Payment provider.
	provider := stripe.NewProvider(cfg.Stripe.SecretKey)
	verifier := stripe.NewEventVerifier(cfg.Stripe.WebhookSecret)

	// Domain services.
	orderService := order.NewService(orderStore, catalogRepo, linkOutbox)
	coordinator := payment.NewCoordinator(orderStore, provider)
	reconciler := payment.NewReconciler(orderStore, verifier)
	linkWorker := linkage.NewWorker(linkOutbox, threadStore, lg.Named("linkage"), cfg.Linkage.Interval)

	// HTTP handlers.
	h := handler.NewHandler(orderService, coordinator, reconciler)
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, security.Middleware())

	instrumented := otelhttp.NewHandler(mux, "marketplace-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Api-Key", "Stripe-Signature"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	g.Go(func() error {
		return linkWorker.Run(gctx)
	})

	// Graceful shutdown: wait for cancellation, flip readiness, drain, stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
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
