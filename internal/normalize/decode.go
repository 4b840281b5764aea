package normalize

import "encoding/json"

// amounts holds the values a variant decoder can supply.
type amounts struct {
	amount0       number
	amount1       number
	nonLiquidity  number
	priceUSD      number
	priceUSDTotal number
}

// decodeFunc extracts amounts from one payload variant.
type decodeFunc func(p payloadFields) amounts

// decoders dispatches on data.__typename.
var decoders = map[string]decodeFunc{
	TypeSwap:                     decodeSwap,
	TypeUnconfirmedSwap:          decodeSwap,
	TypeMint:                     decodeSwap,
	TypeBurn:                     decodeSwap,
	TypePoolBalanceChanged:       decodeSwap,
	TypeUnconfirmedLiquidityDiff: decodeLiquidityChange,
}

// swapShapeFields mark an untagged payload as swap-shaped.
var swapShapeFields = []string{
	"amount0",
	"amount1",
	"amount0In",
	"amount1In",
	"amountNonLiquidityToken",
	"priceUsd",
	"priceUsdTotal",
}

// decodeData decodes a raw data payload through the dispatch table.
func decodeData(raw json.RawMessage) amounts {
	if len(raw) == 0 {
		return amounts{}
	}

	var p payloadFields
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return amounts{}
	}

	decode, ok := decoders[p.typename()]
	if !ok {
		decode = decodeDefault
	}
	return decode(p)
}

// decodeSwap handles swaps, mints, burns and pool balance changes.
// Field priority follows which names carry decimal-shifted values first.
func decodeSwap(p payloadFields) amounts {
	return amounts{
		amount0: pick(
			p.get("amount0Shifted"),
			p.get("amount0"),
			p.get("amount0In"),
			p.get("amount0Out"),
			p.get("amountBaseToken"),
			p.get("amountNonLiquidityToken"),
			p.get("amountNonLiquidityTokenShifted"),
		),
		amount1: pick(
			p.get("amount1Shifted"),
			p.get("amount1"),
			p.get("amount1In"),
			p.get("amount1Out"),
			p.get("amountNonLiquidityToken"),
			p.get("amountNonLiquidityTokenShifted"),
			p.get("amountBaseToken"),
		),
		nonLiquidity: pick(
			p.get("amountNonLiquidityTokenShifted"),
			p.get("amountNonLiquidityToken"),
		),
		priceUSD:      pick(p.get("priceUsd"), p.get("priceBaseToken")),
		priceUSDTotal: pick(p.get("priceUsdTotal"), p.get("priceBaseTokenTotal")),
	}
}

// decodeLiquidityChange only exposes per-token amounts.
func decodeLiquidityChange(p payloadFields) amounts {
	return amounts{
		amount0: pick(p.get("amount0Shifted"), p.get("amount0")),
		amount1: pick(p.get("amount1Shifted"), p.get("amount1")),
	}
}

// decodeDefault handles unknown or missing tags. Swap-shaped payloads are
// decoded as swaps; anything else leaves only the top-level fallbacks.
func decodeDefault(p payloadFields) amounts {
	for _, key := range swapShapeFields {
		if p.has(key) {
			return decodeSwap(p)
		}
	}
	return amounts{}
}
