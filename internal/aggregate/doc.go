// Package aggregate derives signals from a trade window.
//
// Everything here is a pure function of the window and a "now" instant.
// Callers recompute on every window change and on every clock tick so that
// buy pressure decays even when no trades arrive.
package aggregate
