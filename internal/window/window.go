package window

import (
	"sort"

	"github.com/rickgao/tradefeed/internal/model"
)

// DefaultMaxEvents is the window size used when none is configured.
const DefaultMaxEvents = 60

// Merge combines incoming trades with the current window and returns a new
// slice sorted by timestamp descending, truncated to maxEvents.
//
// Incoming trades are inserted before existing ones, so when two trades
// share a key the incoming one is kept. Neither input is modified.
// A maxEvents <= 0 uses DefaultMaxEvents.
func Merge(current, incoming []model.Trade, maxEvents int) []model.Trade {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	seen := make(map[string]struct{}, len(current)+len(incoming))
	merged := make([]model.Trade, 0, len(current)+len(incoming))

	add := func(trades []model.Trade) {
		for _, t := range trades {
			key := t.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, t)
		}
	}
	add(incoming)
	add(current)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp > merged[j].Timestamp
		}
		if merged[i].ID != merged[j].ID {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].Key() < merged[j].Key()
	})

	if len(merged) > maxEvents {
		merged = merged[:maxEvents:maxEvents]
	}
	return merged
}

// Window is an immutable bounded trade window. The zero value is an empty
// window with DefaultMaxEvents capacity.
type Window struct {
	trades []model.Trade
	max    int
}

// New creates an empty window holding at most maxEvents trades.
func New(maxEvents int) Window {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return Window{max: maxEvents}
}

// Merge returns a new window with incoming merged in.
func (w Window) Merge(incoming []model.Trade) Window {
	return Window{
		trades: Merge(w.trades, incoming, w.Max()),
		max:    w.Max(),
	}
}

// Trades returns a copy of the window contents, newest first.
func (w Window) Trades() []model.Trade {
	out := make([]model.Trade, len(w.trades))
	copy(out, w.trades)
	return out
}

// Len returns the number of trades held.
func (w Window) Len() int {
	return len(w.trades)
}

// Max returns the window capacity.
func (w Window) Max() int {
	if w.max <= 0 {
		return DefaultMaxEvents
	}
	return w.max
}

// Clear returns an empty window with the same capacity.
func (w Window) Clear() Window {
	return Window{max: w.Max()}
}
