// Package provider implements the market-data provider adapter.
//
// Client talks to a Codex-style GraphQL API:
//   - FetchRecentEvents posts the getTokenEvents query over HTTPS
//   - Subscribe opens a graphql-transport-ws subscription over WebSocket
//
// Client satisfies connection.Provider. NewFactory adapts a Config into a
// connection.ProviderFactory so the Connection Manager's registry can build
// one client per API key.
package provider
