// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the live subscription for a single (address, network) target
//   - Issues one backfill query per target and merges it with live events
//   - Reconnects with exponential backoff after stream or subscribe failures
//   - Surfaces the trade window, connection state and last error
//
// All state changes run on one event-loop goroutine. Provider callbacks,
// timer fires and target changes are posted as events into an unbounded
// queue and applied in arrival order, so no component state is shared
// between goroutines.
package connection
