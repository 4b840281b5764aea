// Package model defines shared data types used across the trade feed.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Amounts: float64 magnitudes; direction is carried by Side
//   - Nullable values: empty string for addresses, nil pointer for prices
package model
