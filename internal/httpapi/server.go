// Package httpapi serves the marlin REST API: portfolio management, backtest
// execution, and saved-session retrieval.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marlin/internal/backtest"
	"marlin/internal/domain"
	"marlin/internal/store"
	"marlin/internal/strategy"
)

const dateLayout = "2006-01-02"

// Server serves the REST API over a Go 1.22 pattern mux.
type Server struct {
	portfolios store.PortfolioStore
	sessions   store.SessionStore
	engine     *backtest.Engine
	registry   *strategy.Registry

	defaultCash float64
	log         *slog.Logger
}

// NewServer creates a Server wired to the given stores, engine, and strategy
// registry. defaultCash is used when a run request omits cash_start.
func NewServer(
	portfolios store.PortfolioStore,
	sessions store.SessionStore,
	engine *backtest.Engine,
	registry *strategy.Registry,
	defaultCash float64,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		portfolios:  portfolios,
		sessions:    sessions,
		engine:      engine,
		registry:    registry,
		defaultCash: defaultCash,
		log:         log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/portfolios", s.handleListPortfolios)
	mux.HandleFunc("POST /api/portfolios", s.handleCreatePortfolio)
	mux.HandleFunc("DELETE /api/portfolios/{id}", s.handleDeletePortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}/stocks", s.handleListStocks)
	mux.HandleFunc("POST /api/portfolios/{id}/stocks", s.handleAddStock)
	mux.HandleFunc("DELETE /api/portfolios/{id}/stocks/{symbol}", s.handleRemoveStock)
	mux.HandleFunc("GET /api/portfolios/{id}/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("POST /api/sessions", s.handleSaveSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/strategies", s.handleListStrategies)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// pathID parses the {id} path segment as an int64.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// sanitizeSymbol uppercases a ticker and verifies it contains only the
// characters US listings use.
func sanitizeSymbol(raw string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" || len(sym) > 10 {
		return "", false
	}
	for _, c := range sym {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-':
		default:
			return "", false
		}
	}
	return sym, true
}

// --- Portfolios ---

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	ports, err := s.portfolios.ListPortfolios(r.Context())
	if err != nil {
		s.log.Error("listing portfolios", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	if ports == nil {
		ports = []store.Portfolio{}
	}
	writeJSON(w, PortfoliosResponse{Portfolios: ports})
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	id, err := s.portfolios.CreatePortfolio(r.Context(), name)
	if err != nil {
		if store.IsConflict(err) {
			writeError(w, http.StatusConflict, fmt.Sprintf("portfolio %q already exists", name))
			return
		}
		s.log.Error("creating portfolio", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create portfolio")
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, CreatedResponse{ID: id})
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}
	if err := s.portfolios.DeletePortfolio(r.Context(), id); err != nil {
		s.log.Error("deleting portfolio", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete portfolio")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Stocks ---

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}
	symbols, err := s.portfolios.ListStocks(r.Context(), id)
	if err != nil {
		s.log.Error("listing stocks", "portfolio", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list stocks")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, StocksResponse{Symbols: symbols})
}

func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}
	var req AddStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sym, ok := sanitizeSymbol(req.Symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid symbol %q", req.Symbol))
		return
	}

	if err := s.portfolios.AddStock(r.Context(), id, sym); err != nil {
		if store.IsConflict(err) {
			writeError(w, http.StatusConflict, fmt.Sprintf("%s already in portfolio", sym))
			return
		}
		s.log.Error("adding stock", "portfolio", id, "symbol", sym, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add stock")
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"symbol": sym})
}

func (s *Server) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}
	sym, ok := sanitizeSymbol(r.PathValue("symbol"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}
	if err := s.portfolios.RemoveStock(r.Context(), id, sym); err != nil {
		s.log.Error("removing stock", "portfolio", id, "symbol", sym, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove stock")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Backtests ---

// buildRequest translates a RunRequest into an engine Request, resolving the
// portfolio's symbols and the named strategy.
func (s *Server) buildRequest(r *http.Request, req RunRequest) (backtest.Request, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("invalid start_date %q", req.StartDate)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("invalid end_date %q", req.EndDate)
	}

	symbols, err := s.portfolios.ListStocks(r.Context(), req.PortfolioID)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("loading portfolio %d: %w", req.PortfolioID, err)
	}
	if len(symbols) == 0 {
		return backtest.Request{}, fmt.Errorf("portfolio %d has no stocks", req.PortfolioID)
	}

	name := req.Params.Strategy
	if name == "" {
		name = "sma-cross"
	}
	strat, ok := s.registry.Get(name)
	if !ok {
		return backtest.Request{}, fmt.Errorf("unknown strategy %q (available: %s)",
			name, strings.Join(s.registry.List(), ", "))
	}

	cash := req.CashStart
	if cash <= 0 {
		cash = s.defaultCash
	}

	params := strategy.Params{}
	if req.Params.Short > 0 {
		params["short"] = req.Params.Short
	}
	if req.Params.Long > 0 {
		params["long"] = req.Params.Long
	}

	return backtest.Request{
		Symbols:   symbols,
		Start:     start,
		End:       end,
		CashStart: cash,
		Strategy:  strat,
		Params:    params,
	}, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	engReq, err := s.buildRequest(r, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	result, err := s.engine.Run(r.Context(), engReq)
	if err != nil {
		if errors.Is(err, backtest.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("backtest run failed", "portfolio", req.PortfolioID, "error", err)
		writeError(w, http.StatusInternalServerError, "backtest failed")
		return
	}
	s.log.Info("backtest complete",
		"portfolio", req.PortfolioID,
		"strategy", engReq.Strategy.Name(),
		"trades", len(result.Trades),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	writeJSON(w, result)
}

// --- Sessions ---

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid start_date %q", req.StartDate))
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid end_date %q", req.EndDate))
		return
	}

	trades := make([]domain.Trade, 0, len(req.Trades))
	for _, t := range req.Trades {
		d, err := time.Parse(dateLayout, t.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid trade date %q", t.Date))
			return
		}
		trades = append(trades, domain.Trade{
			Date:   d,
			Symbol: t.Symbol,
			Side:   domain.Side(t.Side),
			Qty:    t.Qty,
			Price:  t.Price,
		})
	}

	sess := store.Session{
		PortfolioID: req.PortfolioID,
		Strategy:    req.Params.Strategy,
		StartDate:   start,
		EndDate:     end,
		InitialCash: req.CashStart,
	}
	id, err := s.sessions.SaveSession(r.Context(), sess, trades, kpisFromJSON(req.Metrics))
	if err != nil {
		s.log.Error("saving session", "portfolio", req.PortfolioID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, CreatedResponse{ID: id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, trades, kpis, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("session %d not found", id))
			return
		}
		s.log.Error("loading session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	out := SessionDetailResponse{
		Session: sessionToJSON(*sess),
		Trades:  make([]TradeJSON, 0, len(trades)),
		KPIs:    kpisToJSON(*kpis),
	}
	for _, t := range trades {
		out.Trades = append(out.Trades, TradeJSON{
			Date:   t.Date.Format(dateLayout),
			Symbol: t.Symbol,
			Side:   string(t.Side),
			Qty:    t.Qty,
			Price:  t.Price,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	sessions, err := s.sessions.ListSessions(r.Context(), id)
	if err != nil {
		s.log.Error("listing sessions", "portfolio", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]SessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionToJSON(sess))
	}
	writeJSON(w, SessionsResponse{Sessions: out})
}

func sessionToJSON(sess store.Session) SessionJSON {
	return SessionJSON{
		ID:          sess.ID,
		PortfolioID: sess.PortfolioID,
		Strategy:    sess.Strategy,
		StartDate:   sess.StartDate.Format(dateLayout),
		EndDate:     sess.EndDate.Format(dateLayout),
		InitialCash: sess.InitialCash,
		CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
	}
}

// --- Strategies ---

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"strategies": s.registry.List()})
}

func kpisToJSON(k domain.KPISet) KPIJSON {
	return KPIJSON{
		PortfolioValue:  k.PortfolioValue,
		TotalPnL:        k.TotalPnL,
		ReturnPct:       k.ReturnPct,
		CAGRPct:         k.CAGRPct,
		SharpeRatio:     k.SharpeRatio,
		SortinoRatio:    k.SortinoRatio,
		MaxDrawdownPct:  k.MaxDrawdownPct,
		CalmarRatio:     k.CalmarRatio,
		ProfitFactor:    k.ProfitFactor,
		WinRatePct:      k.WinRatePct,
		AvgWinLossRatio: k.AvgWinLossRatio,
	}
}

func kpisFromJSON(k KPIJSON) domain.KPISet {
	return domain.KPISet{
		PortfolioValue:  k.PortfolioValue,
		TotalPnL:        k.TotalPnL,
		ReturnPct:       k.ReturnPct,
		CAGRPct:         k.CAGRPct,
		SharpeRatio:     k.SharpeRatio,
		SortinoRatio:    k.SortinoRatio,
		MaxDrawdownPct:  k.MaxDrawdownPct,
		CalmarRatio:     k.CalmarRatio,
		ProfitFactor:    k.ProfitFactor,
		WinRatePct:      k.WinRatePct,
		AvgWinLossRatio: k.AvgWinLossRatio,
	}
}
