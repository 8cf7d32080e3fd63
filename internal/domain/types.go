// Package domain defines the core value types shared across the marlin
// backtesting platform: price points, signals, trades, positions, and the
// KPI summary produced by a backtest run.
package domain

import "time"

// PricePoint is a single closing-price observation for one symbol.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Signal values emitted by strategies.
const (
	SignalSell = -1
	SignalHold = 0
	SignalBuy  = 1
)

// SignalPoint is one dated trading instruction for a symbol. RSI carries the
// 14-period RSI on that date when the strategy computes it, and 0 otherwise;
// the engine uses it to scale buy sizing.
type SignalPoint struct {
	Date   time.Time
	Symbol string
	Signal int
	Close  float64
	RSI    float64
}

// Side is the direction of an executed trade.
type Side string

// Trade sides.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an immutable record of one simulated execution. Trades are
// appended to an ordered log and never mutated.
type Trade struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Qty    int       `json:"qty"`
	Price  float64   `json:"price"`
}

// EquityPoint is one entry of the equity curve: total portfolio value
// (cash plus marked-to-market positions) on a simulated date.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Position is a final holdings snapshot for a symbol with nonzero shares at
// the end of a run. AvgCost and Unrealized are reported as zero; realized
// P&L is the only P&L the KPI computation attributes.
type Position struct {
	Symbol     string  `json:"symbol"`
	Qty        int     `json:"qty"`
	Last       float64 `json:"last"`
	AvgCost    float64 `json:"avg_cost"`
	Unrealized float64 `json:"unrealized"`
}

// KPISet is the immutable performance summary computed once at the end of a
// backtest run. All ratio fields are rounded to two decimal places.
type KPISet struct {
	PortfolioValue  float64 `json:"portfolio_value"`
	TotalPnL        float64 `json:"total_pnl"`
	ReturnPct       float64 `json:"return_pct"`
	CAGRPct         float64 `json:"cagr_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	CalmarRatio     float64 `json:"calmar_ratio"`
	ProfitFactor    float64 `json:"profit_factor"`
	WinRatePct      float64 `json:"win_rate_pct"`
	AvgWinLossRatio float64 `json:"avg_win_loss_ratio"`
}

// Result is everything a backtest run produces.
type Result struct {
	KPIs      KPISet        `json:"kpis"`
	Positions []Position    `json:"positions"`
	Trades    []Trade       `json:"trades"`
	Equity    []EquityPoint `json:"equity"`
}
