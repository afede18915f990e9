// Command coupon-ingest bulk-loads coupon rules from gzip-compressed JSON
// lines files into the coupons table. A file carrying the same code twice,
// compared case-insensitively, is rejected as a whole.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/foodcart/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing coupon files")
	flag.StringVar(&pattern, "pattern", "coupons*.jsonl.gz", "glob of coupon files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons per upsert batch")
	flag.IntVar(&workers, "workers", 4, "files checked concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, batchSize, workers); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, batchSize, workers int) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", glob)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, int32(max(2, workers)))
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	in := newIngester(postgres.NewCouponRepository(pool).Upsert)
	in.batchSize = batchSize
	in.workers = workers

	report, err := in.run(ctx, files)
	if err != nil {
		return err
	}
	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Int("rejected", len(report.rejected)),
		slog.Int("coupons", report.loaded),
	)
	if len(report.rejected) > 0 {
		return errors.Errorf("%d file(s) rejected for duplicate codes", len(report.rejected))
	}
	return nil
}
