package normalize

import "encoding/json"

// Variant tags carried in data.__typename.
const (
	TypeSwap                     = "SwapEventData"
	TypeUnconfirmedSwap          = "UnconfirmedSwapEventData"
	TypeMint                     = "MintEventData"
	TypeBurn                     = "BurnEventData"
	TypePoolBalanceChanged       = "PoolBalanceChangedEventData"
	TypeUnconfirmedLiquidityDiff = "UnconfirmedLiquidityChangeEventData"
)

// eventWire is the envelope of a provider event. The data payload is
// decoded separately by variant.
type eventWire struct {
	ID                Scalar
	TransactionHash   Scalar
	LogIndex          Scalar
	SupplementalIndex Scalar
	Maker             Scalar
	MakerAddress      Scalar
	Timestamp         Scalar
	NetworkID         Scalar
	EventDisplayType  Scalar

	// Generic top-level amount fields
	Amount0            Scalar
	Amount1            Scalar
	AmountUSD          Scalar
	AmountUsd          Scalar
	Token0SwapValueUsd Scalar
	Token1SwapValueUsd Scalar

	Data json.RawMessage
}

// decodeEnvelope reads the envelope with exact, case-sensitive keys, the
// same lookup used for the data payload. It fails on anything but an object.
func decodeEnvelope(raw json.RawMessage) (eventWire, bool) {
	var p payloadFields
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return eventWire{}, false
	}

	return eventWire{
		ID:                 p.get("id"),
		TransactionHash:    p.get("transactionHash"),
		LogIndex:           p.get("logIndex"),
		SupplementalIndex:  p.get("supplementalIndex"),
		Maker:              p.get("maker"),
		MakerAddress:       p.get("makerAddress"),
		Timestamp:          p.get("timestamp"),
		NetworkID:          p.get("networkId"),
		EventDisplayType:   p.get("eventDisplayType"),
		Amount0:            p.get("amount0"),
		Amount1:            p.get("amount1"),
		AmountUSD:          p.get("amountUSD"),
		AmountUsd:          p.get("amountUsd"),
		Token0SwapValueUsd: p.get("token0SwapValueUsd"),
		Token1SwapValueUsd: p.get("token1SwapValueUsd"),
		Data:               p["data"],
	}, true
}

// maker returns the maker address from either field name.
func (w *eventWire) maker() string {
	if m, ok := w.Maker.AsString(); ok {
		return m
	}
	if m, ok := w.MakerAddress.AsString(); ok {
		return m
	}
	return ""
}

// networkID returns the event's network, or 0 when absent.
func (w *eventWire) networkID() int {
	f, ok := w.NetworkID.Float()
	if !ok {
		return 0
	}
	return int(f)
}

// payloadFields is a decoded data object keyed by field name.
type payloadFields map[string]json.RawMessage

// has reports whether key is present, even with a null value.
func (p payloadFields) has(key string) bool {
	_, ok := p[key]
	return ok
}

// get returns the scalar stored under key.
func (p payloadFields) get(key string) Scalar {
	var s Scalar
	if raw, ok := p[key]; ok {
		_ = s.UnmarshalJSON(raw)
	}
	return s
}

// typename returns the variant discriminator, or "" when absent.
func (p payloadFields) typename() string {
	s, _ := p.get("__typename").AsString()
	return s
}
