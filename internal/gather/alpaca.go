package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marlin/internal/config"
	"marlin/internal/domain"
	"marlin/internal/store"
	"marlin/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer fetches daily closing prices for a fixed list of symbols
// from the Alpaca market-data API and writes them to a PriceStore. Writes
// are idempotent (the store merges by date), so re-running the job after a
// partial failure is safe.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.PriceStore
	symbols   []string
	startDate string
	backoff   util.Backoff
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, target store, and symbol list. Rate limiting and the
// retry schedule come from cfg.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, s store.PriceStore, symbols []string, cfg config.FetchConfig) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		startDate: cfg.StartDate,
		backoff: util.Backoff{
			Attempts: cfg.MaxAttempts,
			Base:     time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
			Max:      time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
		},
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin, cfg.Burst),
		log:     slog.Default().With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run fetches daily bars for every configured symbol and writes their closes
// to the price store. A symbol that fails after all retry attempts is logged
// and skipped; only a cancelled context aborts the whole job.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	// Stop at yesterday: today's bar is still forming.
	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)

	runStart := time.Now()
	var fetched, skipped int
	for _, sym := range g.symbols {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		points, err := g.fetchCloses(ctx, sym, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Warn("fetching bars failed, skipping symbol", "symbol", sym, "error", err)
			skipped++
			continue
		}
		if len(points) == 0 {
			g.log.Debug("no bars returned", "symbol", sym)
			skipped++
			continue
		}

		if err := g.store.WriteCloses(ctx, sym, points); err != nil {
			return fmt.Errorf("writing closes for %s: %w", sym, err)
		}
		fetched++
		g.log.Info("stored daily closes", "symbol", sym, "bars", len(points))
	}

	g.log.Info("complete",
		"fetched", fetched,
		"skipped", skipped,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchCloses fetches daily bars for one symbol with retries and converts
// them to price points.
func (g *DailyBarGatherer) fetchCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	var bars []marketdata.Bar
	err := g.backoff.Retry(ctx, func() error {
		var ferr error
		bars, ferr = g.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      "iex",
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(bars))
	for _, b := range bars {
		points = append(points, domain.PricePoint{
			Date:  b.Timestamp.UTC(),
			Close: b.Close,
		})
	}
	return points, nil
}
