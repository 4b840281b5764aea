// Package window implements the bounded trade window.
//
// A window holds at most N canonical trades, newest first. Merging is
// keyed by Trade.Key() so replaying the same backfill or live batch any
// number of times, in any order, yields the same window.
package window
