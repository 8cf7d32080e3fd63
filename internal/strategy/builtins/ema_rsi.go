package builtins

import (
	"marlin/internal/domain"
	"marlin/internal/indicators"
	"marlin/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EMARSI)(nil)

// EMARSI implements a mean-reversion entry with a momentum filter: buy when
// RSI(14) is below 45 while the fast EMA(10) is above the slow EMA(30), and
// sell whenever RSI(14) rises above 65.
type EMARSI struct{}

// NewEMARSI creates a new EMARSI strategy.
func NewEMARSI() *EMARSI {
	return &EMARSI{}
}

// Name returns "ema-rsi".
func (s *EMARSI) Name() string {
	return "ema-rsi"
}

// GenerateSignals drops rows where any of the three indicators is still
// warming up, then applies the entry and exit rules per date.
func (s *EMARSI) GenerateSignals(series []domain.PricePoint, _ strategy.Params) []domain.SignalPoint {
	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Close
	}

	emaFast := indicators.EMA(closes, 10)
	emaSlow := indicators.EMA(closes, 30)
	rsi := indicators.RSI(closes, 14)

	var signals []domain.SignalPoint
	for i, p := range series {
		if !indicators.Valid(emaFast[i]) || !indicators.Valid(emaSlow[i]) || !indicators.Valid(rsi[i]) {
			continue
		}

		sig := domain.SignalHold
		switch {
		case rsi[i] < 45 && emaFast[i] > emaSlow[i]:
			sig = domain.SignalBuy
		case rsi[i] > 65:
			sig = domain.SignalSell
		}

		signals = append(signals, domain.SignalPoint{
			Date:   p.Date,
			Signal: sig,
			Close:  p.Close,
			RSI:    rsi[i],
		})
	}
	return signals
}
