package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	admin        bool

	jwtSecret string
	jwtUser   string
	jwtRole   string
	jwtTTL    time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.BoolVar(&opts.admin, "admin", true, "grant the seeded API key the orders:admin scope")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "print a development token signed with this secret (or KART_AUTH_JWT_SECRET env)")
	flag.StringVar(&opts.jwtUser, "jwt-user", "dev-user", "subject of the development token")
	flag.StringVar(&opts.jwtRole, "jwt-role", "user", "role of the development token")
	flag.DurationVar(&opts.jwtTTL, "jwt-ttl", 24*time.Hour, "lifetime of the development token")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	opts.fromEnv()
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func (o *options) fromEnv() {
	for _, v := range []struct {
		dst *string
		env string
	}{
		{&o.databaseURL, "DATABASE_URL"},
		{&o.apiKey, "KART_SEED_API_KEY"},
		{&o.apiKeyPepper, "KART_API_KEY_PEPPER"},
		{&o.jwtSecret, "KART_AUTH_JWT_SECRET"},
	} {
		if *v.dst == "" {
			*v.dst = os.Getenv(v.env)
		}
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Parse the catalog while the schema is applied.
	var products []product.Product
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Reading products file", zap.String("path", opts.productsFile))
		list, err := catalog.LoadFile(opts.productsFile)
		if err != nil {
			return errors.Wrap(err, "load products")
		}
		products = list
		return nil
	})
	g.Go(func() error {
		lg.Info("Running migrations")
		return postgres.RunMigrations(gctx, pool)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))

	if opts.apiKey != "" {
		if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), opts); err != nil {
			return errors.Wrap(err, "seed api key")
		}
		lg.Info("Upserted API key", zap.String("id", "default"), zap.Bool("admin", opts.admin))
	} else {
		lg.Info("No API key given, skipping")
	}

	if opts.jwtSecret != "" {
		id := auth.Identity{UserID: opts.jwtUser, Role: auth.ParseRole(opts.jwtRole)}
		token, err := handler.IssueToken([]byte(opts.jwtSecret), id, opts.jwtTTL, time.Now())
		if err != nil {
			return errors.Wrap(err, "issue token")
		}
		lg.Info("Issued development token",
			zap.String("user", id.UserID),
			zap.String("role", string(id.Role)),
			zap.Duration("ttl", opts.jwtTTL),
		)
		fmt.Println(token)
	}
	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, opts options) error {
	scopes := []string{"orders:read"}
	if opts.admin {
		scopes = append(scopes, auth.ScopeOrdersAdmin)
	}
	return repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: hex.EncodeToString(handler.HashAPIKey([]byte(opts.apiKeyPepper), opts.apiKey)),
		Name:    "Default key",
		Scopes:  scopes,
	})
}
