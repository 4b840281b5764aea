// Package normalize implements the Event Normalizer component.
//
// The Event Normalizer:
//   - Decodes raw provider events (JSON) whose data payload is a tagged union
//     keyed by "__typename" (swap, unconfirmed swap, mint/burn, liquidity change)
//   - Derives a stable dedup id, classifies buy/sell and resolves token/USD
//     amounts through ordered fallback lists
//   - Never fails: events that cannot become a canonical trade are rejected
//     and the caller drops them
package normalize
