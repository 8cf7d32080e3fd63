// Package backtest simulates a trading strategy over historical closing
// prices, producing a trade log, an equity curve, and performance KPIs.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"marlin/internal/domain"
	"marlin/internal/strategy"
)

// ErrInvalidRequest tags request validation failures so callers can tell a
// malformed request apart from a loader fault.
var ErrInvalidRequest = errors.New("invalid backtest request")

// PriceLoader supplies closing prices for one symbol over a date range. An
// empty series means no data is available; that is not an error, the symbol
// is simply excluded from the run.
type PriceLoader interface {
	LoadCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
}

// Request describes one backtest run.
type Request struct {
	Symbols   []string
	Start     time.Time
	End       time.Time
	CashStart float64
	Strategy  strategy.Strategy
	Params    strategy.Params
}

// Validate checks the request for malformed input. The engine itself has no
// failure modes beyond this boundary: missing data and missing signals are
// normal, silently-degraded paths.
func (r *Request) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("no symbols specified")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("end date %s before start date %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	if r.CashStart <= 0 {
		return fmt.Errorf("starting cash must be positive, got %v", r.CashStart)
	}
	if r.Strategy == nil {
		return fmt.Errorf("no strategy specified")
	}
	return nil
}

// Engine runs day-by-day portfolio simulations. All simulation state (cash,
// positions, trade log, equity curve) is created fresh per Run call and
// owned exclusively by that call, so a single Engine is safe to share across
// concurrent runs as long as the loader is.
type Engine struct {
	loader PriceLoader
	log    *slog.Logger
}

// NewEngine creates an Engine that reads prices from the given loader.
func NewEngine(loader PriceLoader, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{loader: loader, log: log}
}

// priceTable is the consolidated wide price table: one row per kept date,
// one forward-filled close column per symbol. NaN marks dates before a
// symbol's first observation.
type priceTable struct {
	dates   []time.Time
	symbols []string // symbols with at least one observation, request order
	closes  map[string][]float64
}

// Run executes a single backtest. The simulation walks dates in ascending
// order with no look-ahead. Each date is marked to market and appended to
// the equity curve before that date's signals execute; a buy therefore
// shows up in the curve on the following mark. That ordering is part of the
// engine's contract and is relied on by downstream consumers.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	table, err := e.buildPriceTable(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(table.dates) == 0 {
		// Graceful no-data path: report the untouched starting cash.
		e.log.Info("no price data for any symbol", "symbols", req.Symbols)
		return &domain.Result{
			KPIs:      domain.KPISet{PortfolioValue: req.CashStart},
			Positions: []domain.Position{},
			Trades:    []domain.Trade{},
			Equity:    []domain.EquityPoint{},
		}, nil
	}

	signalsByDate := e.generateSignals(req, table)

	cash := req.CashStart
	positions := make(map[string]int, len(table.symbols))
	trades := []domain.Trade{}
	equity := make([]domain.EquityPoint, 0, len(table.dates))

	for di, date := range table.dates {
		// Mark to market first; today's fills surface in tomorrow's mark.
		total := cash
		for _, sym := range table.symbols {
			qty := positions[sym]
			if qty == 0 {
				continue
			}
			if px := table.closes[sym][di]; !math.IsNaN(px) {
				total += float64(qty) * px
			}
		}
		equity = append(equity, domain.EquityPoint{Date: date, Value: total})

		for _, sp := range signalsByDate[di] {
			price := table.closes[sp.Symbol][di]
			if math.IsNaN(price) {
				continue
			}

			switch {
			case sp.Signal == domain.SignalSell && positions[sp.Symbol] > 0:
				qty := positions[sp.Symbol]
				cash += float64(qty) * price
				positions[sp.Symbol] = 0
				trades = append(trades, domain.Trade{
					Date: date, Symbol: sp.Symbol, Side: domain.SideSell, Qty: qty, Price: price,
				})

			case sp.Signal == domain.SignalBuy:
				investment := total * 0.10 * convictionMultiplier(sp.RSI)
				if cash < investment {
					continue // silently skipped, no partial fills
				}
				qty := int(investment / price)
				if qty == 0 {
					continue
				}
				cash -= float64(qty) * price
				positions[sp.Symbol] += qty
				trades = append(trades, domain.Trade{
					Date: date, Symbol: sp.Symbol, Side: domain.SideBuy, Qty: qty, Price: price,
				})
			}
		}
	}

	finalValue := equity[len(equity)-1].Value

	kpis := CalculateKPIs(equity, req.CashStart, trades)
	kpis.PortfolioValue = round2(finalValue)
	kpis.TotalPnL = round2(finalValue - req.CashStart)

	finalPositions := []domain.Position{}
	last := len(table.dates) - 1
	for _, sym := range table.symbols {
		qty := positions[sym]
		if qty == 0 {
			continue
		}
		finalPositions = append(finalPositions, domain.Position{
			Symbol: sym,
			Qty:    qty,
			Last:   table.closes[sym][last],
		})
	}

	e.log.Info("backtest complete",
		"strategy", req.Strategy.Name(),
		"symbols", len(table.symbols),
		"days", len(table.dates),
		"trades", len(trades),
		"final_value", kpis.PortfolioValue,
	)

	return &domain.Result{
		KPIs:      kpis,
		Positions: finalPositions,
		Trades:    trades,
		Equity:    equity,
	}, nil
}

// convictionMultiplier scales buy sizing by RSI strength above 50: a bonus
// of (rsi-50)/20 capped at 1.0, i.e. a multiplier in [1.0, 2.0].
func convictionMultiplier(rsi float64) float64 {
	if rsi > 50 {
		return 1.0 + math.Min((rsi-50)/20, 1.0)
	}
	return 1.0
}

// buildPriceTable consolidates per-symbol series into a wide table over the
// calendar days of the requested range: dates where every symbol is missing
// are dropped, remaining gaps are forward-filled with the last known close.
// The forward fill is a deliberate simplification, not a market model.
func (e *Engine) buildPriceTable(ctx context.Context, req Request) (*priceTable, error) {
	start := midnightUTC(req.Start)
	end := midnightUTC(req.End)

	type symbolData struct {
		name   string
		byDate map[time.Time]float64
	}
	var loaded []symbolData
	for _, sym := range req.Symbols {
		series, err := e.loader.LoadCloses(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading prices for %s: %w", sym, err)
		}
		if len(series) == 0 {
			continue
		}
		byDate := make(map[time.Time]float64, len(series))
		for _, p := range series {
			byDate[midnightUTC(p.Date)] = p.Close
		}
		loaded = append(loaded, symbolData{name: sym, byDate: byDate})
	}

	table := &priceTable{closes: make(map[string][]float64)}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, sd := range loaded {
			if _, ok := sd.byDate[d]; ok {
				table.dates = append(table.dates, d)
				break
			}
		}
	}
	if len(table.dates) == 0 {
		return table, nil
	}

	for _, sd := range loaded {
		col := make([]float64, len(table.dates))
		lastKnown := math.NaN()
		for i, d := range table.dates {
			if v, ok := sd.byDate[d]; ok {
				lastKnown = v
			}
			col[i] = lastKnown
		}
		table.symbols = append(table.symbols, sd.name)
		table.closes[sd.name] = col
	}
	return table, nil
}

// generateSignals invokes the strategy once per symbol over its non-missing
// (forward-filled) slice of the table and buckets the resulting signal rows
// by date index. Multiple symbols may signal on the same date.
func (e *Engine) generateSignals(req Request, table *priceTable) map[int][]domain.SignalPoint {
	dateIndex := make(map[time.Time]int, len(table.dates))
	for i, d := range table.dates {
		dateIndex[d] = i
	}

	out := make(map[int][]domain.SignalPoint)
	for _, sym := range table.symbols {
		col := table.closes[sym]

		var series []domain.PricePoint
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			series = append(series, domain.PricePoint{Date: table.dates[i], Close: v})
		}

		for _, sp := range req.Strategy.GenerateSignals(series, req.Params) {
			sp.Symbol = sym
			if di, ok := dateIndex[midnightUTC(sp.Date)]; ok {
				out[di] = append(out[di], sp)
			}
		}
	}
	return out
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
