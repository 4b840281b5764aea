package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tradefeed/internal/model"
)

// DefaultPressureWindow is the trailing window used for buy pressure.
const DefaultPressureWindow = 5 * time.Minute

// Signals is a point-in-time view of the window.
type Signals struct {
	At          time.Time `json:"at"`
	Window      string    `json:"window"`
	LatestPrice *float64  `json:"latestPrice"`
	BuyPressure *float64  `json:"buyPressure"`
	BuyUSD      float64   `json:"buyUsd"`
	SellUSD     float64   `json:"sellUsd"`
	TradeCount  int       `json:"tradeCount"`
}

// LatestPrice returns the price of the most recent trade, else fallback.
// trades must be sorted newest first.
func LatestPrice(trades []model.Trade, fallback *float64) *float64 {
	if len(trades) > 0 && trades[0].HasPrice() {
		p := *trades[0].PriceUSD
		return &p
	}
	if fallback != nil {
		p := *fallback
		return &p
	}
	return nil
}

// BuyPressure returns the buy share of USD volume over [now-window, ...].
// It returns nil when window <= 0, no trades fall in range, or the total
// volume is zero.
func BuyPressure(trades []model.Trade, now time.Time, window time.Duration) *float64 {
	t := totals(trades, now, window)
	if t.count == 0 {
		return nil
	}
	return t.pressure()
}

// Compute returns all signals for the window at now.
func Compute(trades []model.Trade, now time.Time, window time.Duration, fallback *float64) Signals {
	t := totals(trades, now, window)

	s := Signals{
		At:          now,
		Window:      window.String(),
		LatestPrice: LatestPrice(trades, fallback),
		TradeCount:  t.count,
	}
	s.BuyUSD, _ = t.buy.Float64()
	s.SellUSD, _ = t.total.Sub(t.buy).Float64()
	if t.count > 0 {
		s.BuyPressure = t.pressure()
	}
	return s
}

type volume struct {
	buy   decimal.Decimal
	total decimal.Decimal
	count int
}

func totals(trades []model.Trade, now time.Time, window time.Duration) volume {
	v := volume{buy: decimal.Zero, total: decimal.Zero}
	if window <= 0 {
		return v
	}

	cutoff := now.Add(-window).UnixMilli()
	for _, t := range trades {
		if t.Timestamp < cutoff {
			continue
		}
		amount := decimal.NewFromFloat(t.AmountUSD)
		v.total = v.total.Add(amount)
		if t.Side != model.SideSell {
			v.buy = v.buy.Add(amount)
		}
		v.count++
	}
	return v
}

func (v volume) pressure() *float64 {
	if v.total.IsZero() {
		return nil
	}

	ratio := v.buy.Div(v.total)
	switch {
	case ratio.IsNegative():
		ratio = decimal.Zero
	case ratio.GreaterThan(decimal.NewFromInt(1)):
		ratio = decimal.NewFromInt(1)
	}

	f, _ := ratio.Float64()
	return &f
}
