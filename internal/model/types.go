package model

import (
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Trades
// -----------------------------------------------------------------------------

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide maps a provider display type onto a Side.
// Matching is case-insensitive; anything other than buy/sell is rejected.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	}
	return "", false
}

// Trade is the canonical, provider-agnostic representation of a buy or sell.
type Trade struct {
	ID           string   `json:"id"`                     // Stable dedup id
	Timestamp    int64    `json:"timestamp"`              // ms since epoch
	MakerAddress string   `json:"makerAddress,omitempty"` // Empty when unknown
	Side         Side     `json:"side"`                   // "buy" or "sell"
	AmountToken  float64  `json:"amountToken"`            // Token quantity
	AmountUSD    float64  `json:"amountUsd"`              // Always >= 0
	PriceUSD     *float64 `json:"priceUsd"`               // nil when not derivable
}

// Key returns the composite dedup key "id:timestamp:maker".
func (t Trade) Key() string {
	var b strings.Builder
	b.Grow(len(t.ID) + len(t.MakerAddress) + 22)
	b.WriteString(t.ID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(t.Timestamp, 10))
	b.WriteByte(':')
	b.WriteString(t.MakerAddress)
	return b.String()
}

// HasPrice reports whether the trade carries a unit price.
func (t Trade) HasPrice() bool {
	return t.PriceUSD != nil
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

// ConnectionState is the lifecycle state of the live feed.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateReady        ConnectionState = "ready"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
	StateUnauthorized ConnectionState = "unauthorized"
)

// Target identifies which asset's feed is active.
type Target struct {
	Address   string `json:"address"`
	NetworkID int    `json:"networkId"`
}

// Valid reports whether the target can be subscribed to.
func (t Target) Valid() bool {
	return strings.TrimSpace(t.Address) != "" && t.NetworkID != 0
}

// Equal compares targets. Addresses are compared case-insensitively.
func (t Target) Equal(o Target) bool {
	return t.NetworkID == o.NetworkID && strings.EqualFold(t.Address, o.Address)
}

func (t Target) String() string {
	return t.Address + "@" + strconv.Itoa(t.NetworkID)
}
