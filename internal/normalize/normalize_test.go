package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tradefeed/internal/model"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(func() time.Time { return fixedNow })
}

func TestNormalize_SwapEvent(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "evt-1",
		"timestamp": 1705320000,
		"maker": "0xMaker",
		"networkId": 1,
		"eventDisplayType": "Buy",
		"data": {
			"__typename": "SwapEventData",
			"amountNonLiquidityToken": "1500.5",
			"priceUsd": "0.002",
			"priceUsdTotal": "3.001"
		}
	}`)

	trade, ok := newTestNormalizer().Normalize(raw)
	require.True(t, ok)

	assert.Equal(t, "evt-1", trade.ID)
	assert.Equal(t, int64(1705320000000), trade.Timestamp)
	assert.Equal(t, "0xMaker", trade.MakerAddress)
	assert.Equal(t, model.SideBuy, trade.Side)
	assert.InDelta(t, 1500.5, trade.AmountToken, 1e-9)
	assert.InDelta(t, 3.001, trade.AmountUSD, 1e-9)
	require.NotNil(t, trade.PriceUSD)
	assert.InDelta(t, 0.002, *trade.PriceUSD, 1e-12)
}

func TestNormalize_IDFallbackChain(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
		wantOK bool
	}{
		{
			name:   "own id",
			raw:    `{"id":"abc","transactionHash":"0xtx","eventDisplayType":"buy"}`,
			wantID: "abc",
			wantOK: true,
		},
		{
			name:   "numeric id",
			raw:    `{"id":12345,"eventDisplayType":"sell"}`,
			wantID: "12345",
			wantOK: true,
		},
		{
			name:   "empty id falls through to tx hash",
			raw:    `{"id":"","transactionHash":"0xtx","logIndex":7,"supplementalIndex":2,"eventDisplayType":"buy"}`,
			wantID: "0xtx:7:2",
			wantOK: true,
		},
		{
			name:   "missing indices default to zero",
			raw:    `{"transactionHash":"0xtx","eventDisplayType":"buy"}`,
			wantID: "0xtx:0:0",
			wantOK: true,
		},
		{
			name:   "maker and timestamp",
			raw:    `{"maker":"0xm","timestamp":1705320000,"eventDisplayType":"buy"}`,
			wantID: "0xm:1705320000",
			wantOK: true,
		},
		{
			name:   "makerAddress and zero timestamp",
			raw:    `{"makerAddress":"0xm","timestamp":0,"eventDisplayType":"sell"}`,
			wantID: "0xm:0",
			wantOK: true,
		},
		{
			name:   "maker without timestamp",
			raw:    `{"maker":"0xm","eventDisplayType":"buy"}`,
			wantOK: false,
		},
		{
			name:   "no identity at all",
			raw:    `{"eventDisplayType":"buy","data":{"__typename":"SwapEventData","priceUsd":"1"}}`,
			wantOK: false,
		},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, ok := n.Normalize(json.RawMessage(tt.raw))
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, trade.ID)
			}
		})
	}
}

func TestNormalize_RejectsNonTrades(t *testing.T) {
	n := newTestNormalizer()
	for _, raw := range []string{
		`{"id":"1","eventDisplayType":"Mint"}`,
		`{"id":"1","eventDisplayType":"Burn"}`,
		`{"id":"1","eventDisplayType":""}`,
		`{"id":"1"}`,
		`{"id":"1","eventDisplayType":{"kind":"buy"}}`,
		`null`,
		`[]`,
		`"buy"`,
		`{not json`,
		``,
	} {
		_, ok := n.Normalize(json.RawMessage(raw))
		assert.False(t, ok, "expected rejection for %s", raw)
	}
}

func TestNormalize_EnvelopeKeysAreCaseSensitive(t *testing.T) {
	n := newTestNormalizer()

	_, ok := n.Normalize(json.RawMessage(`{"ID":"c","EVENTDISPLAYTYPE":"buy","Timestamp":5}`))
	assert.False(t, ok)

	// Wrong-case amounts are ignored like wrong-case payload fields.
	trade, ok := n.Normalize(json.RawMessage(`{"id":"c","eventDisplayType":"buy","Amount0":"7","amountUSD":"3","data":{"__typename":"SwapEventData","AmountNonLiquidityToken":"9"}}`))
	require.True(t, ok)
	assert.Equal(t, "c", trade.ID)
	assert.Zero(t, trade.AmountToken)
	assert.Equal(t, 3.0, trade.AmountUSD)
}

func TestNormalize_AmountFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantToken float64
		wantUSD   float64
		wantPrice *float64
	}{
		{
			name:      "shifted amount wins over raw amount",
			raw:       `{"id":"1","eventDisplayType":"buy","data":{"__typename":"SwapEventData","amount0Shifted":"2","amount0":"2000000","priceUsdTotal":"10"}}`,
			wantToken: 2,
			wantUSD:   10,
			wantPrice: ptr(5),
		},
		{
			name:      "blank strings are skipped",
			raw:       `{"id":"1","eventDisplayType":"buy","data":{"__typename":"SwapEventData","amountNonLiquidityTokenShifted":"","amountNonLiquidityToken":"4","priceUsd":"2.5"}}`,
			wantToken: 4,
			wantUSD:   10,
			wantPrice: ptr(2.5),
		},
		{
			name:      "non-numeric strings are skipped",
			raw:       `{"id":"1","eventDisplayType":"sell","data":{"__typename":"UnconfirmedSwapEventData","amount0Shifted":"n/a","amount0In":"3","priceUsdTotal":"6"}}`,
			wantToken: 3,
			wantUSD:   6,
			wantPrice: ptr(2),
		},
		{
			name:      "top-level usd when variant has no total",
			raw:       `{"id":"1","eventDisplayType":"buy","amountUSD":"42","data":{"__typename":"SwapEventData","amount1":"21"}}`,
			wantToken: 21,
			wantUSD:   42,
			wantPrice: ptr(2),
		},
		{
			name:      "lower-case amountUsd",
			raw:       `{"id":"1","eventDisplayType":"buy","amount0":"5","amountUsd":15}`,
			wantToken: 5,
			wantUSD:   15,
			wantPrice: ptr(3),
		},
		{
			name:      "token0 swap value keyed to amount0",
			raw:       `{"id":"1","eventDisplayType":"sell","amount0":"8","token0SwapValueUsd":"16","data":{"__typename":"UnconfirmedLiquidityChangeEventData"}}`,
			wantToken: 8,
			wantUSD:   16,
			wantPrice: ptr(2),
		},
		{
			name:      "token1 swap value keyed to amount1",
			raw:       `{"id":"1","eventDisplayType":"buy","amount1":"4","token1SwapValueUsd":"1","data":{"__typename":"UnconfirmedLiquidityChangeEventData"}}`,
			wantToken: 4,
			wantUSD:   1,
			wantPrice: ptr(0.25),
		},
		{
			name:      "negative amounts are stored as magnitudes",
			raw:       `{"id":"1","eventDisplayType":"sell","data":{"__typename":"SwapEventData","amount0":"-7","priceUsdTotal":"-14"}}`,
			wantToken: 7,
			wantUSD:   14,
			wantPrice: ptr(2),
		},
		{
			name:      "no amounts at all",
			raw:       `{"id":"1","eventDisplayType":"buy"}`,
			wantToken: 0,
			wantUSD:   0,
			wantPrice: nil,
		},
		{
			name:      "explicit price kept without usd",
			raw:       `{"id":"1","eventDisplayType":"buy","data":{"__typename":"SwapEventData","priceUsd":"0.5"}}`,
			wantToken: 0,
			wantUSD:   0,
			wantPrice: ptr(0.5),
		},
		{
			name:      "untagged swap-shaped payload",
			raw:       `{"id":"1","eventDisplayType":"buy","data":{"amount0In":"9","priceUsdTotal":"18"}}`,
			wantToken: 9,
			wantUSD:   18,
			wantPrice: ptr(2),
		},
		{
			name:      "unknown tag uses only generic fields",
			raw:       `{"id":"1","eventDisplayType":"buy","amount0":"3","amountUSD":"9","data":{"__typename":"FutureEventData","volume":"99"}}`,
			wantToken: 3,
			wantUSD:   9,
			wantPrice: ptr(3),
		},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, ok := n.Normalize(json.RawMessage(tt.raw))
			require.True(t, ok)
			assert.InDelta(t, tt.wantToken, trade.AmountToken, 1e-9)
			assert.InDelta(t, tt.wantUSD, trade.AmountUSD, 1e-9)
			if tt.wantPrice == nil {
				assert.Nil(t, trade.PriceUSD)
				return
			}
			require.NotNil(t, trade.PriceUSD)
			assert.InDelta(t, *tt.wantPrice, *trade.PriceUSD, 1e-9)
		})
	}
}

func TestTimestampMillis(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"seconds number", `1705320000`, 1705320000000},
		{"milliseconds number", `1705320000123`, 1705320000123},
		{"seconds string", `"1705320000"`, 1705320000000},
		{"milliseconds string", `"1705320000123"`, 1705320000123},
		{"fractional seconds", `1705320000.5`, 1705320000500},
		{"exactly 1e12 is seconds", `1000000000000`, 1000000000000000},
		{"rfc3339", `"2024-01-15T12:00:00Z"`, fixedNow.UnixMilli()},
		{"rfc3339 nano", `"2024-01-15T11:00:00.250Z"`, fixedNow.Add(-time.Hour + 250*time.Millisecond).UnixMilli()},
		{"garbage falls back to now", `"yesterday"`, fixedNow.UnixMilli()},
		{"blank falls back to now", `""`, fixedNow.UnixMilli()},
		{"null falls back to now", `null`, fixedNow.UnixMilli()},
		{"huge milliseconds fall back to now", `1e20`, fixedNow.UnixMilli()},
		{"huge negative seconds fall back to now", `-1e20`, fixedNow.UnixMilli()},
		{"huge string falls back to now", `"9.3e18"`, fixedNow.UnixMilli()},
		{"largest representable", `9.2e18`, 9200000000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scalar
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			assert.Equal(t, tt.want, TimestampMillis(s, fixedNow))
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raws := []string{
		`{"id":"a","timestamp":"garbage","eventDisplayType":"buy","amount0":"1","amountUSD":"2"}`,
		`{"transactionHash":"0xtx","timestamp":1705320000,"eventDisplayType":"sell","data":{"__typename":"SwapEventData","amount1Out":"3","priceUsd":"1.5"}}`,
		`{"maker":"0xm","timestamp":"2024-01-15T12:00:00Z","eventDisplayType":"SELL"}`,
		`{"eventDisplayType":"buy"}`,
	}

	n := newTestNormalizer()
	for _, raw := range raws {
		first, ok1 := n.Normalize(json.RawMessage(raw))
		second, ok2 := n.Normalize(json.RawMessage(raw))
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, first, second)
	}
}

func TestNormalizeBatch_NetworkFilter(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id":"1","networkId":1,"eventDisplayType":"buy"}`),
		json.RawMessage(`{"id":"2","networkId":56,"eventDisplayType":"buy"}`),
		json.RawMessage(`{"id":"3","eventDisplayType":"sell"}`),
		json.RawMessage(`{"id":"4","eventDisplayType":"mint"}`),
	}

	trades, rejected := newTestNormalizer().NormalizeBatch(raws, 1)
	require.Len(t, trades, 2)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, "1", trades[0].ID)
	assert.Equal(t, "3", trades[1].ID)

	all, rejected := newTestNormalizer().NormalizeBatch(raws, 0)
	assert.Len(t, all, 3)
	assert.Equal(t, 1, rejected)
}

func TestNormalize_DefaultClock(t *testing.T) {
	before := time.Now().UnixMilli()
	trade, ok := Normalize(json.RawMessage(`{"id":"x","eventDisplayType":"buy"}`))
	after := time.Now().UnixMilli()

	require.True(t, ok)
	assert.GreaterOrEqual(t, trade.Timestamp, before)
	assert.LessOrEqual(t, trade.Timestamp, after)
}

func ptr(f float64) *float64 { return &f }
