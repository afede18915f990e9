package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/domain/coupon"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxLineBytes  = 64 * 1024
)

// couponLine is one line of a coupon file.
type couponLine struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	MinOrder     decimal.Decimal `json:"minOrder"`
	ValidTill    string          `json:"validTill"`
	Description  string          `json:"description"`
}

func parseLine(line []byte) (coupon.Rule, error) {
	var cl couponLine
	if err := json.Unmarshal(line, &cl); err != nil {
		return coupon.Rule{}, errors.Wrap(err, "decode")
	}
	rule := coupon.Rule{
		Code:         coupon.Normalize(cl.Code),
		DiscountType: coupon.DiscountType(cl.DiscountType),
		Value:        cl.Value,
		MinOrder:     cl.MinOrder,
		Description:  cl.Description,
	}
	if cl.ValidTill != "" {
		t, err := time.Parse(time.DateOnly, cl.ValidTill)
		if err != nil {
			return coupon.Rule{}, errors.Wrap(err, "validTill")
		}
		rule.ValidTill = t
	}
	if err := rule.Validate(); err != nil {
		return coupon.Rule{}, err
	}
	return rule, nil
}

// UpsertFunc stores a batch of rules.
type UpsertFunc func(ctx context.Context, rules ...coupon.Rule) error

type ingester struct {
	upsert    UpsertFunc
	batchSize int
	workers   int
	capacity  uint
	fpr       float64
}

func newIngester(upsert UpsertFunc) *ingester {
	return &ingester{
		upsert:    upsert,
		batchSize: 1000,
		workers:   4,
		capacity:  bloomCapacity,
		fpr:       bloomFPR,
	}
}

type ingestReport struct {
	// rejected maps a file to the duplicate codes found in it.
	rejected map[string][]string
	loaded   int
}

// run checks all files concurrently, then loads the clean ones in order.
func (in *ingester) run(ctx context.Context, files []string) (*ingestReport, error) {
	dups := make([][]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, in.workers))
	for i, path := range files {
		g.Go(func() error {
			d, err := in.duplicates(gctx, path)
			if err != nil {
				return errors.Wrapf(err, "check %s", path)
			}
			dups[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &ingestReport{rejected: make(map[string][]string)}
	for i, path := range files {
		if len(dups[i]) > 0 {
			slog.Warn("rejecting file with duplicate codes",
				slog.String("file", path),
				slog.Any("codes", dups[i]),
			)
			report.rejected[path] = dups[i]
			continue
		}
		n, err := in.load(ctx, path)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
		report.loaded += n
	}
	return report, nil
}

// duplicates returns the codes that occur more than once in path. The first
// pass collects codes the bloom filter has possibly seen before; the second
// counts those candidates exactly.
func (in *ingester) duplicates(ctx context.Context, path string) ([]string, error) {
	filter := bloom.NewWithEstimates(in.capacity, in.fpr)
	candidates := make(map[string]int)
	var lines int

	if err := streamRules(ctx, path, func(rule coupon.Rule) error {
		if filter.TestAndAddString(rule.Code) {
			candidates[rule.Code] = 0
		}
		lines++
		if lines%progressEvery == 0 {
			slog.Info("check progress", slog.String("file", path), slog.Int("lines", lines))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := streamRules(ctx, path, func(rule coupon.Rule) error {
		if n, ok := candidates[rule.Code]; ok {
			candidates[rule.Code] = n + 1
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var out []string
	for code, n := range candidates {
		if n > 1 {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (in *ingester) load(ctx context.Context, path string) (int, error) {
	batch := make([]coupon.Rule, 0, in.batchSize)
	var total int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := in.upsert(ctx, batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	if err := streamRules(ctx, path, func(rule coupon.Rule) error {
		batch = append(batch, rule)
		if len(batch) >= in.batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	slog.Info("file loaded", slog.String("file", path), slog.Int("coupons", total))
	return total, nil
}

// streamRules opens a gzip-compressed JSON lines file and calls fn for each
// non-empty line.
func streamRules(ctx context.Context, path string, fn func(coupon.Rule) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	var lineNo int
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rule, err := parseLine(line)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if err := fn(rule); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
