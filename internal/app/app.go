// Package app wires the storefront service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/cart"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/product"
	"github.com/xenking/foodcart/internal/handler"
	"github.com/xenking/foodcart/internal/notify"
	"github.com/xenking/foodcart/internal/storage/postgres"
	"github.com/xenking/foodcart/internal/storage/redisstore"
	"github.com/xenking/foodcart/pkg/health"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

const serviceName = "foodcart-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	checker := health.New()
	checker.Register(health.Probe{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Check:   health.PingCheck(pool),
	})
	checker.Register(health.Probe{
		Name:  "goroutines",
		Kind:  health.Liveness,
		Check: health.GoroutineCountCheck(10000),
	})
	checker.Register(health.Probe{
		Name:  "gc_pause",
		Kind:  health.Liveness,
		Check: health.GCMaxPauseCheck(time.Second),
	})

	var idem order.Idempotency
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		checker.Register(health.Probe{
			Name:    "redis",
			Kind:    health.Readiness,
			Timeout: 2 * time.Second,
			Check:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		idem = redisstore.NewIdempotency(rdb, "foodcart", cfg.Redis.IdempotencyTTL)
		lg.Info("Checkout idempotency enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	registry, err := couponRegistry(cfg.Coupons, pool)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg.Notify, lg)
	if err != nil {
		return err
	}
	discounts, err := product.ParseCategoryDiscounts(cfg.Pricing.CategoryDiscounts)
	if err != nil {
		return errors.Wrap(err, "parse category discounts")
	}
	pricing, err := product.NewPricing(discounts)
	if err != nil {
		return errors.Wrap(err, "pricing")
	}
	tokens, err := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	if err != nil {
		return errors.Wrap(err, "tokens")
	}
	metrics, err := order.NewMetrics(m.MeterProvider().Meter("github.com/xenking/foodcart"))
	if err != nil {
		return errors.Wrap(err, "order metrics")
	}

	// Domain services.
	coupons := coupon.NewEvaluator(registry)
	cartService := cart.NewService(cartRepo, productRepo, pricing, coupons)
	orderService := order.NewService(cartRepo, coupons, orderRepo, userRepo, notifier, order.Options{
		Idempotency:   idem,
		Metrics:       metrics,
		NotifyTimeout: cfg.Notify.Timeout,
	})

	h := handler.New(handler.Deps{
		Products: productRepo,
		Pricing:  pricing,
		Carts:    cartService,
		Orders:   orderService,
		Coupons:  coupons,
		Tokens:   tokens,
		Users:    userRepo,
	})

	r := chi.NewRouter()
	r.Get("/livez", checker.LiveEndpoint)
	r.Get("/readyz", checker.ReadyEndpoint)
	h.Routes(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.IdempotencyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.RouteContext(),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return checker.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		checker.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		orderService.Wait()
		return nil
	})
	g.Go(func() error {
		checker.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

func couponRegistry(cfg CouponsConfig, pool *pgxpool.Pool) (coupon.Registry, error) {
	if cfg.Source == "postgres" {
		return postgres.NewCouponRepository(pool), nil
	}
	registry, err := coupon.NewStaticRegistry(coupon.DefaultRules()...)
	if err != nil {
		return nil, errors.Wrap(err, "static coupons")
	}
	return registry, nil
}

func newNotifier(cfg NotifyConfig, lg *zap.Logger) (order.Notifier, error) {
	if cfg.Mode != "smtp" {
		return notify.NewLogNotifier(lg), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return nil, errors.Wrap(err, "smtp notifier")
	}
	return n, nil
}
