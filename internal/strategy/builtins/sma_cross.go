// Package builtins provides the built-in strategy implementations that ship
// with the marlin platform.
package builtins

import (
	"marlin/internal/domain"
	"marlin/internal/indicators"
	"marlin/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It emits a
// buy signal on the first date the short-window SMA exceeds the long-window
// SMA, and a sell signal on the first date it drops back below. A tie is
// treated as not crossed.
type SMACross struct{}

// NewSMACross creates a new SMACross strategy. Window lengths come from the
// params at signal time ("short", default 10; "long", default 30).
func NewSMACross() *SMACross {
	return &SMACross{}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// GenerateSignals computes the two rolling means and flags position changes.
// The means emit from the first row (partial windows allowed), so no rows
// are dropped for warm-up; the first row never signals because there is no
// prior position to differ from.
func (s *SMACross) GenerateSignals(series []domain.PricePoint, params strategy.Params) []domain.SignalPoint {
	short := int(params.Get("short", 10))
	long := int(params.Get("long", 30))

	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Close
	}

	smaShort := indicators.RollingMean(closes, short, 1)
	smaLong := indicators.RollingMean(closes, long, 1)

	signals := make([]domain.SignalPoint, 0, len(series))
	prevPos := 0
	for i, p := range series {
		pos := 0
		if smaShort[i] > smaLong[i] {
			pos = 1
		}

		sig := domain.SignalHold
		if i > 0 {
			sig = pos - prevPos
		}
		prevPos = pos

		signals = append(signals, domain.SignalPoint{
			Date:   p.Date,
			Signal: sig,
			Close:  p.Close,
		})
	}
	return signals
}
