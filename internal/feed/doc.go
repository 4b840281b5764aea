// Package feed is the consumer-facing view of a live trade feed.
//
// A Feed wraps a connection.Manager with a wall clock that ticks once per
// second, independently of trade arrival, and recomputes the aggregate
// signals on every tick and on every window change. Buy pressure therefore
// decays to nil as trades age out even when the feed is quiet.
package feed
