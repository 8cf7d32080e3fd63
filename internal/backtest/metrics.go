package backtest

import (
	"math"

	"marlin/internal/domain"
)

// tradingDaysPerYear annualizes the Sharpe and Sortino ratios.
const tradingDaysPerYear = 252

// CalculateKPIs derives the performance summary from an equity curve and
// trade log. Every degenerate shape (empty or single-point curve, zero
// variance, zero drawdown, no losing symbols) yields 0 for the affected
// ratio rather than an error, so the computation is total.
//
// Profit factor, win rate, and the win/loss ratio are computed from
// realized P&L only: a symbol contributes once it has at least one SELL,
// and open positions at the end of the run are ignored. This understates
// performance for strategies that finish long; it is kept intentionally.
//
// PortfolioValue and TotalPnL are left zero here; the engine fills them
// from the final equity point.
func CalculateKPIs(equity []domain.EquityPoint, cashStart float64, trades []domain.Trade) domain.KPISet {
	var k domain.KPISet
	if len(equity) == 0 || cashStart <= 0 {
		return k
	}

	lastValue := equity[len(equity)-1].Value
	k.ReturnPct = round2((lastValue/cashStart - 1) * 100)

	// CAGR over elapsed calendar time.
	days := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24
	cagr := 0.0
	if days > 0 && lastValue > 0 {
		years := days / 365.25
		cagr = (math.Pow(lastValue/cashStart, 1/years) - 1) * 100
	}
	k.CAGRPct = round2(cagr)

	returns := dailyReturns(equity)

	if sd := stdSample(returns); sd > 0 {
		k.SharpeRatio = round2(mean(returns) / sd * math.Sqrt(tradingDaysPerYear))
	}

	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if sd := stdSample(negative); sd > 0 {
		k.SortinoRatio = round2(mean(returns) / sd * math.Sqrt(tradingDaysPerYear))
	}

	maxDD := maxDrawdownPct(equity)
	k.MaxDrawdownPct = round2(maxDD)
	if maxDD != 0 {
		k.CalmarRatio = round2((cagr / 100) / math.Abs(maxDD/100))
	}

	k.ProfitFactor, k.WinRatePct, k.AvgWinLossRatio = realizedPnLStats(trades)
	return k
}

// dailyReturns is the percent change of the equity curve with the first
// (undefined) entry dropped.
func dailyReturns(equity []domain.EquityPoint) []float64 {
	var out []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i].Value/prev-1)
	}
	return out
}

// maxDrawdownPct is the worst peak-to-trough decline over the curve, as a
// (negative) percentage of the running maximum.
func maxDrawdownPct(equity []domain.EquityPoint) float64 {
	runningMax := math.Inf(-1)
	worst := 0.0
	for _, p := range equity {
		if p.Value > runningMax {
			runningMax = p.Value
		}
		if runningMax <= 0 {
			continue
		}
		dd := (p.Value - runningMax) / runningMax
		if dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// realizedPnLStats computes per-symbol realized P&L (total sell proceeds
// minus total buy cost) across the trade log. Only symbols with at least
// one SELL contribute.
func realizedPnLStats(trades []domain.Trade) (profitFactor, winRatePct, avgWinLossRatio float64) {
	type flows struct {
		buyCost      float64
		sellProceeds float64
		sold         bool
	}
	bySymbol := make(map[string]*flows)
	var order []string
	for _, t := range trades {
		f, ok := bySymbol[t.Symbol]
		if !ok {
			f = &flows{}
			bySymbol[t.Symbol] = f
			order = append(order, t.Symbol)
		}
		amount := float64(t.Qty) * t.Price
		switch t.Side {
		case domain.SideBuy:
			f.buyCost += amount
		case domain.SideSell:
			f.sellProceeds += amount
			f.sold = true
		}
	}

	var grossProfit, grossLoss float64
	var wins, losses []float64
	for _, sym := range order {
		f := bySymbol[sym]
		if !f.sold {
			continue
		}
		pnl := f.sellProceeds - f.buyCost
		switch {
		case pnl > 0:
			grossProfit += pnl
			wins = append(wins, pnl)
		case pnl < 0:
			grossLoss += -pnl
			losses = append(losses, -pnl)
		}
	}

	if grossLoss > 0 {
		profitFactor = round2(grossProfit / grossLoss)
	}
	if len(wins)+len(losses) > 0 {
		winRatePct = round2(float64(len(wins)) / float64(len(wins)+len(losses)) * 100)
	}
	if len(wins) > 0 && len(losses) > 0 {
		avgWinLossRatio = round2(mean(wins) / mean(losses))
	}
	return profitFactor, winRatePct, avgWinLossRatio
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// stdSample is the sample standard deviation (n-1 denominator); 0 when
// fewer than two observations exist.
func stdSample(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
