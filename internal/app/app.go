package app

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/metrics"
	"github.com/xenking/kart-orders/internal/storage/memory"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	redisstore "github.com/xenking/kart-orders/internal/storage/redis"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// stores bundles the storage-backed dependencies of the services.
type stores struct {
	products product.Repository
	carts    cart.Store
	orders   order.Repository
	apikeys  auth.Repository
}

// openPostgres connects, migrates and registers the readiness probe.
func openPostgres(ctx context.Context, cfg *Config, hs *health.Health) (*stores, func(), error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	return &stores{
		products: postgres.NewProductRepository(pool),
		carts:    postgres.NewCartStore(pool),
		orders:   postgres.NewOrderRepository(pool),
		apikeys:  postgres.NewAPIKeyRepository(pool),
	}, pool.Close, nil
}

// openMemory loads the catalog from a file and keeps carts and orders in
// process memory.
func openMemory(lg *zap.Logger, cfg *Config) (*stores, error) {
	products, err := catalog.LoadFile(cfg.ProductsFile)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	var keys []auth.APIKeyInfo
	if cfg.Auth.AdminAPIKey != "" {
		keys = append(keys, auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: hex.EncodeToString(handler.HashAPIKey([]byte(cfg.APIKeyPepper), cfg.Auth.AdminAPIKey)),
			Name:    "Configured admin key",
			Scopes:  []string{auth.ScopeOrdersAdmin},
		})
	}
	lg.Info("Using in-memory storage",
		zap.Int("products", len(products)),
		zap.Int("api_keys", len(keys)),
	)

	store := memory.NewStore()
	return &stores{
		products: memory.NewCatalog(products),
		carts:    store,
		orders:   store,
		apikeys:  memory.NewAPIKeys(keys...),
	}, nil
}

// server is the assembled HTTP stack with its lifecycle hooks.
type server struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *server) close() {
	for _, fn := range slices.Backward(s.closers) {
		fn()
	}
}

// newServer creates all dependencies and the middleware chain. Health probes
// are registered but not started.
func newServer(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (_ *server, rerr error) {
	srv := &server{health: health.New()}
	defer func() {
		if rerr != nil {
			srv.close()
		}
	}()
	srv.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var (
		st  *stores
		err error
	)
	switch cfg.Storage {
	case StorageMemory:
		st, err = openMemory(lg, cfg)
	default:
		var closeDB func()
		st, closeDB, err = openPostgres(ctx, cfg, srv.health)
		if err == nil {
			srv.closers = append(srv.closers, closeDB)
		}
	}
	if err != nil {
		return nil, err
	}

	// Product cache.
	var cache catalog.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		srv.closers = append(srv.closers, func() { _ = client.Close() })

		srv.health.AddReadinessCheckWithThresholds("redis", 2*time.Second, func(ctx context.Context) error {
			return redisstore.Ping(ctx, client)
		}, health.Thresholds{Failure: 5, Success: 1})
		cache = redisstore.NewProductCache(client, cfg.Redis.TTL)
		lg.Info("Product cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}
	products := catalog.NewAccessor(st.products, cache)

	// Domain services.
	var orderOpts []order.Option
	if cfg.Checkout.RevalidateProducts {
		orderOpts = append(orderOpts, order.WithLineValidator(catalog.NewLineValidator(products)))
	}
	cartService := cart.NewService(st.carts, products)
	orderService := order.NewService(st.orders, orderOpts...)

	mt, err := metrics.New(mp)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		cartService,
		orderService,
		handler.NewSecurityHandler(st.apikeys, []byte(cfg.APIKeyPepper), []byte(cfg.Auth.JWTSecret)),
		mt,
	)
	if cfg.Auth.JWTSecret == "" {
		lg.Warn("JWT secret is not set, bearer tokens are rejected")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", srv.health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", srv.health.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	srv.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:            cfg.RateLimit.Max,
			Window:         cfg.RateLimit.Window,
			TrustForwarded: cfg.RateLimit.TrustProxy,
		}),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("kart-orders", routeFinder, tp, mp),
		httpmiddleware.LogRequests(routeFinder),
	)
	return srv, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	srv, err := newServer(ctx, zctx.From(ctx), cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	defer srv.close()

	healthSvc := srv.health
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	httpServer := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           srv.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
