// Package store defines storage interfaces for persisting and retrieving
// domain objects: closing prices, portfolios, and saved backtest sessions.
package store

import (
	"context"
	"time"

	"marlin/internal/domain"
)

// PriceStore persists and retrieves daily closing prices.
type PriceStore interface {
	// WriteCloses persists a batch of closing prices for one symbol.
	WriteCloses(ctx context.Context, symbol string, points []domain.PricePoint) error

	// LoadCloses returns closes for the symbol within [start, end], ordered
	// by date. A symbol with no data yields an empty series, not an error.
	LoadCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)

	// ListSymbols returns all distinct symbols with stored data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// Portfolio is a named list of symbols.
type Portfolio struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PortfolioStore manages portfolios and their symbol memberships.
type PortfolioStore interface {
	// CreatePortfolio inserts a new portfolio. Names are unique.
	CreatePortfolio(ctx context.Context, name string) (int64, error)

	// ListPortfolios returns all portfolios, newest first.
	ListPortfolios(ctx context.Context) ([]Portfolio, error)

	// DeletePortfolio removes a portfolio and its stocks and sessions.
	DeletePortfolio(ctx context.Context, id int64) error

	// AddStock adds a symbol to a portfolio. Duplicates are rejected.
	AddStock(ctx context.Context, portfolioID int64, symbol string) error

	// RemoveStock drops a symbol from a portfolio.
	RemoveStock(ctx context.Context, portfolioID int64, symbol string) error

	// ListStocks returns the portfolio's symbols in ascending order.
	ListStocks(ctx context.Context, portfolioID int64) ([]string, error)
}

// Session is a persisted record of one completed backtest run.
type Session struct {
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	Strategy    string    `json:"strategy"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	InitialCash float64   `json:"initial_cash"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStore persists completed backtest runs with their trades and KPIs.
type SessionStore interface {
	// SaveSession stores a session together with its trade log and metrics
	// in one transaction, returning the session id.
	SaveSession(ctx context.Context, s Session, trades []domain.Trade, kpis domain.KPISet) (int64, error)

	// GetSession retrieves one session with its trades and metrics.
	GetSession(ctx context.Context, id int64) (*Session, []domain.Trade, *domain.KPISet, error)

	// ListSessions returns a portfolio's sessions, newest first.
	ListSessions(ctx context.Context, portfolioID int64) ([]Session, error)
}
