package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"marlin/internal/config"
	"marlin/internal/gather"
	"marlin/internal/store"
	"marlin/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols to fetch (default: all portfolio stocks)")
	startFlag := flag.String("start", "", "fetch start date YYYY-MM-DD (default: fetch.start_date from config)")
	flag.Parse()

	cfgPath := "config/marlin.yaml"
	if p := os.Getenv("MARLIN_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var symbols []string
	if *symbolsFlag != "" {
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	} else {
		symbols, err = portfolioSymbols(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("listing portfolio symbols: %v", err)
		}
		if len(symbols) == 0 {
			// No portfolios yet: refresh whatever is already on disk.
			symbols, err = pstore.ListSymbols(ctx)
			if err != nil {
				log.Fatalf("listing stored symbols: %v", err)
			}
			if len(symbols) > 0 {
				logger.Info("no portfolio stocks, refreshing stored symbols", "symbols", len(symbols))
			}
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols to fetch: pass -symbols or add stocks to a portfolio")
	}

	fetchCfg := cfg.Fetch
	if *startFlag != "" {
		fetchCfg.StartDate = *startFlag
	}

	gatherer := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		symbols,
		fetchCfg,
	)

	logger.Info("starting fetch", "symbols", len(symbols), "start", fetchCfg.StartDate)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch error: %v", err)
	}
}

// portfolioSymbols returns the deduplicated union of every portfolio's
// stocks.
func portfolioSymbols(ctx context.Context, dbPath string) ([]string, error) {
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ports, err := db.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range ports {
		stocks, err := db.ListStocks(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range stocks {
			seen[s] = true
		}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}
