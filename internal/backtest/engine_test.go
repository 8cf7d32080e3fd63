package backtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"marlin/internal/domain"
	"marlin/internal/strategy"
	"marlin/internal/strategy/builtins"
)

// stubLoader serves canned price series from memory.
type stubLoader struct {
	data map[string][]domain.PricePoint
	err  error
}

func (l *stubLoader) LoadCloses(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []domain.PricePoint
	for _, p := range l.data[symbol] {
		if !p.Date.Before(start) && !p.Date.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

// scriptedStrategy replays a fixed signal per date, for exercising the
// simulation loop directly.
type scriptedStrategy struct {
	name    string
	signals map[time.Time]int
	rsi     float64
}

func (s *scriptedStrategy) Name() string { return s.name }
func (s *scriptedStrategy) GenerateSignals(series []domain.PricePoint, _ strategy.Params) []domain.SignalPoint {
	out := make([]domain.SignalPoint, 0, len(series))
	for _, p := range series {
		out = append(out, domain.SignalPoint{
			Date:   p.Date,
			Signal: s.signals[p.Date],
			Close:  p.Close,
			RSI:    s.rsi,
		})
	}
	return out
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pricePoints(closes ...float64) []domain.PricePoint {
	out := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = domain.PricePoint{Date: day0.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestRunScenarioSMACross(t *testing.T) {
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(10, 10, 10, 12, 12, 8, 8),
	}}
	eng := NewEngine(loader, nil)

	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 6),
		CashStart: 1000,
		Strategy:  builtins.NewSMACross(),
		Params:    strategy.Params{"short": 2, "long": 3},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2: %+v", len(res.Trades), res.Trades)
	}

	buy := res.Trades[0]
	if buy.Side != domain.SideBuy || buy.Qty != 8 || buy.Price != 12 {
		t.Errorf("buy = %+v, want BUY 8 @ 12", buy)
	}
	if !buy.Date.Equal(day0.AddDate(0, 0, 3)) {
		t.Errorf("buy date = %v, want day 4", buy.Date)
	}

	sell := res.Trades[1]
	if sell.Side != domain.SideSell || sell.Qty != 8 || sell.Price != 8 {
		t.Errorf("sell = %+v, want SELL 8 @ 8", sell)
	}

	if res.KPIs.PortfolioValue != 968 {
		t.Errorf("PortfolioValue = %v, want 968", res.KPIs.PortfolioValue)
	}
	if res.KPIs.ReturnPct != -3.2 {
		t.Errorf("ReturnPct = %v, want -3.2", res.KPIs.ReturnPct)
	}
	if res.KPIs.MaxDrawdownPct != -3.2 {
		t.Errorf("MaxDrawdownPct = %v, want -3.2 (the 12→8 decline)", res.KPIs.MaxDrawdownPct)
	}
	if len(res.Positions) != 0 {
		t.Errorf("positions = %+v, want none after liquidation", res.Positions)
	}

	// The equity point on the buy date is marked before the buy executes.
	if res.Equity[3].Value != 1000 {
		t.Errorf("equity[3] = %v, want 1000 (mark precedes trade)", res.Equity[3].Value)
	}
	if res.Equity[5].Value != 968 {
		t.Errorf("equity[5] = %v, want 968", res.Equity[5].Value)
	}
}

func TestRunFlatSeriesNoTrades(t *testing.T) {
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(10, 10, 10, 10, 10, 10, 10),
	}}
	eng := NewEngine(loader, nil)

	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 6),
		CashStart: 1000,
		Strategy:  builtins.NewSMACross(),
		Params:    strategy.Params{"short": 2, "long": 3},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("got %d trades on a flat series, want 0", len(res.Trades))
	}
	if res.KPIs.ReturnPct != 0 {
		t.Errorf("ReturnPct = %v, want 0", res.KPIs.ReturnPct)
	}
}

func TestRunEmptyLoader(t *testing.T) {
	eng := NewEngine(&stubLoader{}, nil)

	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA", "BBB"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 10),
		CashStart: 5000,
		Strategy:  builtins.NewSMACross(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.KPIs.PortfolioValue != 5000 {
		t.Errorf("PortfolioValue = %v, want the untouched 5000", res.KPIs.PortfolioValue)
	}
	if len(res.Positions) != 0 || len(res.Trades) != 0 {
		t.Errorf("positions/trades = %v/%v, want empty", res.Positions, res.Trades)
	}
}

func TestRunLoaderError(t *testing.T) {
	eng := NewEngine(&stubLoader{err: errors.New("disk gone")}, nil)

	_, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0,
		CashStart: 1000,
		Strategy:  builtins.NewSMACross(),
	})
	if err == nil {
		t.Fatal("Run should propagate loader I/O errors")
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Errorf("loader fault classified as invalid request: %v", err)
	}
}

func TestRunInvalidRequestTagged(t *testing.T) {
	eng := NewEngine(&stubLoader{}, nil)

	_, err := eng.Run(context.Background(), Request{CashStart: 1000})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestRunCashAndPositionInvariants(t *testing.T) {
	// Aggressive all-buy script with high conviction: cash must never go
	// negative no matter how many buys fire.
	signals := make(map[time.Time]int)
	for i := 0; i < 30; i++ {
		signals[day0.AddDate(0, 0, i)] = domain.SignalBuy
	}
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 50
	}
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(closes...),
	}}
	eng := NewEngine(loader, nil)

	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 29),
		CashStart: 1000,
		Strategy:  &scriptedStrategy{name: "all-buy", signals: signals, rsi: 90},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Replay the trade log and check the invariants hold after every fill.
	cash := 1000.0
	qty := 0
	for _, tr := range res.Trades {
		switch tr.Side {
		case domain.SideBuy:
			cash -= float64(tr.Qty) * tr.Price
			qty += tr.Qty
		case domain.SideSell:
			cash += float64(tr.Qty) * tr.Price
			qty -= tr.Qty
		}
		if cash < 0 {
			t.Fatalf("cash went negative (%v) after trade %+v", cash, tr)
		}
		if qty < 0 {
			t.Fatalf("position went negative (%d) after trade %+v", qty, tr)
		}
	}
}

func TestRunSellOnFlatPositionIsNoOp(t *testing.T) {
	signals := make(map[time.Time]int)
	for i := 0; i < 5; i++ {
		signals[day0.AddDate(0, 0, i)] = domain.SignalSell
	}
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(10, 11, 12, 13, 14),
	}}
	eng := NewEngine(loader, nil)

	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 4),
		CashStart: 1000,
		Strategy:  &scriptedStrategy{name: "all-sell", signals: signals},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("got %d trades from sells on a flat position, want 0", len(res.Trades))
	}
}

func TestRunDeterministic(t *testing.T) {
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(10, 12, 9, 14, 11, 16, 13, 18, 12, 20),
		"BBB": pricePoints(30, 29, 31, 28, 33, 27, 35, 26, 37, 25),
	}}
	eng := NewEngine(loader, nil)

	req := Request{
		Symbols:   []string{"AAA", "BBB"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 9),
		CashStart: 10000,
		Strategy:  builtins.NewSMACross(),
		Params:    strategy.Params{"short": 2, "long": 4},
	}

	first, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if !reflect.DeepEqual(first.KPIs, second.KPIs) {
		t.Errorf("KPIs differ between identical runs:\n  %+v\n  %+v", first.KPIs, second.KPIs)
	}
	if !reflect.DeepEqual(first.Trades, second.Trades) {
		t.Errorf("trade logs differ between identical runs")
	}
}

func TestRunForwardFillGaps(t *testing.T) {
	// BBB is missing on days 2-3; its last close carries forward, and AAA's
	// presence keeps those dates in the table.
	loader := &stubLoader{data: map[string][]domain.PricePoint{
		"AAA": pricePoints(10, 10, 10, 10, 10),
		"BBB": {
			{Date: day0, Close: 100},
			{Date: day0.AddDate(0, 0, 1), Close: 110},
			{Date: day0.AddDate(0, 0, 4), Close: 120},
		},
	}}
	eng := NewEngine(loader, nil)

	signals := map[time.Time]int{day0.AddDate(0, 0, 2): domain.SignalBuy}
	res, err := eng.Run(context.Background(), Request{
		Symbols:   []string{"BBB", "AAA"},
		Start:     day0,
		End:       day0.AddDate(0, 0, 4),
		CashStart: 100000,
		Strategy:  &scriptedStrategy{name: "gap-buy", signals: signals},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both symbols buy on day 3; BBB fills at its forward-filled close 110.
	var bbb *domain.Trade
	for i := range res.Trades {
		if res.Trades[i].Symbol == "BBB" {
			bbb = &res.Trades[i]
			break
		}
	}
	if bbb == nil {
		t.Fatal("no BBB trade executed on the forward-filled date")
	}
	if bbb.Price != 110 {
		t.Errorf("BBB fill price = %v, want forward-filled 110", bbb.Price)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Symbols:   []string{"AAA"},
		Start:     day0,
		End:       day0,
		CashStart: 1,
		Strategy:  builtins.NewSMACross(),
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty symbols", func(r *Request) { r.Symbols = nil }},
		{"end before start", func(r *Request) { r.End = day0.AddDate(0, 0, -1) }},
		{"zero cash", func(r *Request) { r.CashStart = 0 }},
		{"negative cash", func(r *Request) { r.CashStart = -5 }},
		{"nil strategy", func(r *Request) { r.Strategy = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("Validate accepted malformed request")
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("Validate rejected well-formed request: %v", err)
	}
}

func TestConvictionMultiplier(t *testing.T) {
	tests := []struct {
		rsi  float64
		want float64
	}{
		{0, 1.0},
		{50, 1.0},
		{60, 1.5},
		{70, 2.0},
		{90, 2.0}, // bonus capped at 1.0
	}
	for _, tt := range tests {
		if got := convictionMultiplier(tt.rsi); got != tt.want {
			t.Errorf("convictionMultiplier(%v) = %v, want %v", tt.rsi, got, tt.want)
		}
	}
}
