package httpapi

import "marlin/internal/store"

// CreatePortfolioRequest is the body of POST /api/portfolios.
type CreatePortfolioRequest struct {
	Name string `json:"name"`
}

// AddStockRequest is the body of POST /api/portfolios/{id}/stocks.
type AddStockRequest struct {
	Symbol string `json:"symbol"`
}

// RunRequest is the body of POST /api/run.
type RunRequest struct {
	PortfolioID int64     `json:"portfolio_id"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	CashStart   float64   `json:"cash_start"`
	Params      RunParams `json:"params"`
}

// RunParams selects the strategy and its tunables.
type RunParams struct {
	Strategy string  `json:"strategy"`
	Short    float64 `json:"short,omitempty"`
	Long     float64 `json:"long,omitempty"`
}

// SaveSessionRequest is the body of POST /api/sessions: a completed run to
// persist alongside the request that produced it.
type SaveSessionRequest struct {
	RunRequest
	Trades  []TradeJSON `json:"trades"`
	Metrics KPIJSON     `json:"kpis"`
}

// TradeJSON mirrors domain.Trade with a bare YYYY-MM-DD date.
type TradeJSON struct {
	Date   string  `json:"date"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Qty    int     `json:"qty"`
	Price  float64 `json:"price"`
}

// KPIJSON mirrors domain.KPISet field for field.
type KPIJSON struct {
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

// PortfoliosResponse wraps GET /api/portfolios.
type PortfoliosResponse struct {
	Portfolios []store.Portfolio `json:"portfolios"`
}

// StocksResponse wraps GET /api/portfolios/{id}/stocks.
type StocksResponse struct {
	Symbols []string `json:"symbols"`
}

// CreatedResponse carries the id of a newly created resource.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// SessionsResponse wraps GET /api/portfolios/{id}/sessions.
type SessionsResponse struct {
	Sessions []SessionJSON `json:"sessions"`
}

// SessionDetailResponse wraps GET /api/sessions/{id}: the session row with
// its full trade log and metrics.
type SessionDetailResponse struct {
	Session SessionJSON `json:"session"`
	Trades  []TradeJSON `json:"trades"`
	KPIs    KPIJSON     `json:"kpis"`
}

// SessionJSON is one saved run in list responses.
type SessionJSON struct {
	ID          int64   `json:"id"`
	PortfolioID int64   `json:"portfolio_id"`
	Strategy    string  `json:"strategy"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	InitialCash float64 `json:"initial_cash"`
	CreatedAt   string  `json:"created_at"`
}
