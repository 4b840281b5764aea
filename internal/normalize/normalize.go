package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rickgao/tradefeed/internal/model"
)

// Normalizer converts raw provider events into canonical trades.
// It holds no state besides the clock used for unparseable timestamps.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer. A nil clock uses time.Now.
func New(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

var defaultNormalizer = New(nil)

// Normalize converts a raw event using the wall clock.
func Normalize(raw json.RawMessage) (model.Trade, bool) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize converts a raw event into a canonical trade.
// It returns false when the event has no derivable identity or is not a buy/sell.
func (n *Normalizer) Normalize(raw json.RawMessage) (model.Trade, bool) {
	trade, _, ok := n.normalize(raw)
	return trade, ok
}

// NormalizeBatch converts a batch, dropping rejected events and events
// tagged with a network other than networkID. A networkID of 0 disables
// the network filter.
func (n *Normalizer) NormalizeBatch(raws []json.RawMessage, networkID int) (trades []model.Trade, rejected int) {
	trades = make([]model.Trade, 0, len(raws))
	for _, raw := range raws {
		trade, eventNetwork, ok := n.normalize(raw)
		if !ok {
			rejected++
			continue
		}
		if networkID != 0 && eventNetwork != 0 && eventNetwork != networkID {
			rejected++
			continue
		}
		trades = append(trades, trade)
	}
	return trades, rejected
}

// normalize returns the trade together with the event's network (0 if absent).
func (n *Normalizer) normalize(raw json.RawMessage) (model.Trade, int, bool) {
	w, ok := decodeEnvelope(raw)
	if !ok {
		return model.Trade{}, 0, false
	}

	id, ok := eventID(&w)
	if !ok {
		return model.Trade{}, 0, false
	}

	side, ok := model.ParseSide(w.EventDisplayType.Text())
	if !ok {
		return model.Trade{}, 0, false
	}

	data := decodeData(w.Data)
	amountToken, amountUSD := resolveAmounts(&w, data)

	trade := model.Trade{
		ID:           id,
		Timestamp:    TimestampMillis(w.Timestamp, n.now()),
		MakerAddress: w.maker(),
		Side:         side,
		AmountToken:  amountToken,
		AmountUSD:    amountUSD,
		PriceUSD:     resolvePrice(data.priceUSD, amountToken, amountUSD),
	}
	return trade, w.networkID(), true
}

// eventID derives a stable dedup id:
// own id, then txHash:logIndex:supplementalIndex, then maker:timestamp.
func eventID(w *eventWire) (string, bool) {
	if w.ID.Present() && w.ID.Text() != "" {
		return w.ID.Text(), true
	}

	if txHash, ok := w.TransactionHash.AsString(); ok {
		return strings.Join([]string{txHash, indexText(w.LogIndex), indexText(w.SupplementalIndex)}, ":"), true
	}

	if maker := w.maker(); maker != "" && w.Timestamp.Present() && w.Timestamp.Text() != "" {
		return maker + ":" + w.Timestamp.Text(), true
	}

	return "", false
}

func indexText(s Scalar) string {
	if s.IsNumber() {
		return s.Text()
	}
	return "0"
}

// resolveAmounts picks the token amount and USD notional.
// Magnitudes are returned; the side carries direction.
func resolveAmounts(w *eventWire, d amounts) (amountToken, amountUSD float64) {
	amount0 := d.amount0.or(pick(w.Amount0))
	amount1 := d.amount1.or(pick(w.Amount1))
	usdFromEvent := pick(w.AmountUSD, w.AmountUsd)

	token := d.nonLiquidity.or(amount0, amount1)
	usd := d.priceUSDTotal.or(usdFromEvent)

	if !usd.ok {
		token0USD := pick(w.Token0SwapValueUsd)
		token1USD := pick(w.Token1SwapValueUsd)

		switch {
		case d.nonLiquidity.ok && d.priceUSD.ok:
			usd = number{v: d.nonLiquidity.v * d.priceUSD.v, ok: true}
		case amount0.ok && token0USD.ok:
			token, usd = amount0, token0USD
		case amount1.ok && token1USD.ok:
			token, usd = amount1, token1USD
		}
	}

	amountToken = finiteAbs(token.v)
	amountUSD = finiteAbs(usd.v)
	return amountToken, amountUSD
}

// resolvePrice uses the explicit unit price, else derives usd/token.
func resolvePrice(explicit number, amountToken, amountUSD float64) *float64 {
	if explicit.ok {
		p := explicit.v
		return &p
	}
	if amountToken == 0 || amountUSD == 0 {
		return nil
	}
	p := amountUSD / amountToken
	if math.IsInf(p, 0) || math.IsNaN(p) {
		return nil
	}
	return &p
}

func finiteAbs(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Abs(f)
}
