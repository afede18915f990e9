// Command seed-db loads the catalog, users and built-in coupons and prints a
// development token per seeded user.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/product"
	"github.com/xenking/foodcart/internal/domain/user"
	"github.com/xenking/foodcart/internal/storage/postgres"
)

type productJSON struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       decimal.Decimal   `json:"price"`
	Category    string            `json:"category"`
	Image       string            `json:"image"`
	Rating      product.Rating    `json:"rating"`
	Metadata    *product.Metadata `json:"metadata"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type options struct {
	databaseURL  string
	productsFile string
	usersFile    string
	jwtSecret    string
	jwtIssuer    string
	tokenTTL     time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.usersFile, "users-file", "db/seed/users.json", "path to users JSON file")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret for development tokens (or FOODCART_JWT_SECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "foodcart", "issuer of development tokens")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 30*24*time.Hour, "lifetime of development tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("FOODCART_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	users, err := seedUsers(ctx, postgres.NewUserRepository(pool), opts.usersFile)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if opts.jwtSecret == "" {
		slog.Warn("no jwt secret given, skipping development tokens")
		return nil
	}
	return printTokens(opts, users)
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, path string) error {
	slog.Info("reading products file", slog.String("path", path))

	var products []productJSON
	if err := readJSON(path, &products); err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	now := time.Now().UTC()
	for _, pj := range products {
		p := &product.Product{
			ID:          pj.ID,
			Name:        pj.Name,
			Description: pj.Description,
			Price:       pj.Price,
			Category:    pj.Category,
			Image:       pj.Image,
			Rating:      pj.Rating,
			Metadata:    pj.Metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", pj.ID)
		}

		err := repo.Update(ctx, p)
		if errors.Is(err, product.ErrNotFound) {
			err = repo.Create(ctx, p)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding built-in coupons")

	rules := coupon.DefaultRules()
	if err := repo.Upsert(ctx, rules...); err != nil {
		return err
	}
	for _, r := range rules {
		slog.Info("upserted coupon", slog.String("code", r.Code), slog.String("description", r.Description))
	}

	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository, path string) ([]user.User, error) {
	slog.Info("reading users file", slog.String("path", path))

	var raw []userJSON
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	users := make([]user.User, 0, len(raw))
	for _, uj := range raw {
		u := user.User{ID: uj.ID, Name: uj.Name, Email: uj.Email, Role: user.Role(uj.Role)}
		if u.ID == "" || !u.Role.Valid() {
			return nil, errors.Errorf("user %q: id and a valid role are required", uj.ID)
		}
		if err := repo.Upsert(ctx, &u); err != nil {
			return nil, err
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", string(u.Role)))
		users = append(users, u)
	}

	return users, nil
}

func printTokens(opts options, users []user.User) error {
	tokens, err := auth.NewTokens(opts.jwtSecret, opts.jwtIssuer, opts.tokenTTL)
	if err != nil {
		return err
	}
	for _, u := range users {
		token, err := tokens.Issue(u)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.ID)
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Role, token)
	}
	return nil
}
