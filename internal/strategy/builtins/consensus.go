package builtins

import (
	"marlin/internal/domain"
	"marlin/internal/indicators"
	"marlin/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Consensus)(nil)

// Consensus implements a multi-indicator scoring strategy. Three indicator
// checks each vote +1 or -1 (MACD line vs its signal line, RSI(14) vs 50,
// close vs SMA(20)), producing a score in [-3, +3]. A buy requires a
// unanimous +3 with the close above the SMA(200) long-term trend filter; a
// sell requires a unanimous -3.
type Consensus struct{}

// NewConsensus creates a new Consensus strategy.
func NewConsensus() *Consensus {
	return &Consensus{}
}

// Name returns "consensus".
func (s *Consensus) Name() string {
	return "consensus"
}

// GenerateSignals scores every date with a defined SMA(200); earlier rows
// are dropped, so a series shorter than the SMA(200) warm-up yields no
// signals at all. An undefined indicator contributes 0 to the score, which
// already rules a unanimous vote out.
func (s *Consensus) GenerateSignals(series []domain.PricePoint, _ strategy.Params) []domain.SignalPoint {
	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Close
	}

	macdLine, signalLine := indicators.MACD(closes, 12, 26, 9)
	rsi := indicators.RSI(closes, 14)
	sma20 := indicators.SMA(closes, 20)
	sma200 := indicators.SMA(closes, 200)

	var signals []domain.SignalPoint
	for i, p := range series {
		if !indicators.Valid(sma200[i]) {
			continue
		}

		score := 0
		score += vote(macdLine[i], signalLine[i])
		score += vote(rsi[i], 50)
		score += vote(p.Close, sma20[i])

		sig := domain.SignalHold
		switch {
		case score == 3 && p.Close > sma200[i]:
			sig = domain.SignalBuy
		case score == -3:
			sig = domain.SignalSell
		}

		sp := domain.SignalPoint{
			Date:   p.Date,
			Signal: sig,
			Close:  p.Close,
		}
		if indicators.Valid(rsi[i]) {
			sp.RSI = rsi[i]
		}
		signals = append(signals, sp)
	}
	return signals
}

// vote compares two indicator values: +1 when a is strictly above b, -1 when
// strictly below, 0 when equal or either side is undefined (NaN comparisons
// are false both ways).
func vote(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
