package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"marlin/internal/backtest"
	"marlin/internal/config"
	"marlin/internal/store"
	"marlin/internal/strategy"
	"marlin/internal/strategy/builtins"
	"marlin/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (required)")
	strategyFlag := flag.String("strategy", "sma-cross", "strategy name")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (required)")
	cashFlag := flag.Float64("cash", 0, "starting cash (default: backtest.default_cash from config)")
	shortFlag := flag.Float64("short", 0, "short window override")
	longFlag := flag.Float64("long", 0, "long window override")
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

	registry := builtins.DefaultRegistry()
	strat, ok := registry.Get(*strategyFlag)
	if !ok {
		log.Fatalf("unknown strategy %q (available: %s)", *strategyFlag, strings.Join(registry.List(), ", "))
	}

	var symbols []string
	for _, s := range strings.Split(*symbolsFlag, ",") {
		if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	cash := *cashFlag
	if cash <= 0 {
		cash = cfg.Backtest.DefaultCash
	}

	params := strategy.Params{}
	if *shortFlag > 0 {
		params["short"] = *shortFlag
	}
	if *longFlag > 0 {
		params["long"] = *longFlag
	}

	engine := backtest.NewEngine(store.NewParquetStore(cfg.Storage.DataDir), logger)
	result, err := engine.Run(context.Background(), backtest.Request{
		Symbols:   symbols,
		Start:     start,
		End:       end,
		CashStart: cash,
		Strategy:  strat,
		Params:    params,
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	k := result.KPIs
	fmt.Printf("Strategy: %s  Symbols: %s  %s..%s\n",
		strat.Name(), strings.Join(symbols, ","), *startFlag, *endFlag)
	fmt.Printf("Portfolio value: %.2f (PnL %.2f, %.2f%%)\n", k.PortfolioValue, k.TotalPnL, k.ReturnPct)
	fmt.Printf("CAGR %.2f%%  Sharpe %.2f  Sortino %.2f  Calmar %.2f\n",
		k.CAGRPct, k.SharpeRatio, k.SortinoRatio, k.CalmarRatio)
	fmt.Printf("Max drawdown %.2f%%  Profit factor %.2f  Win rate %.2f%%  Avg win/loss %.2f\n",
		k.MaxDrawdownPct, k.ProfitFactor, k.WinRatePct, k.AvgWinLossRatio)

	if len(result.Trades) > 0 {
		fmt.Printf("\n%-12s %-8s %-5s %8s %10s\n", "DATE", "SYMBOL", "SIDE", "QTY", "PRICE")
		for _, t := range result.Trades {
			fmt.Printf("%-12s %-8s %-5s %8d %10.2f\n",
				t.Date.Format("2006-01-02"), t.Symbol, t.Side, t.Qty, t.Price)
		}
	}
	if len(result.Positions) > 0 {
		fmt.Printf("\nOpen positions:\n")
		for _, p := range result.Positions {
			fmt.Printf("  %-8s %6d @ %.2f\n", p.Symbol, p.Qty, p.Last)
		}
	}
}
