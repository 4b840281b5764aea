package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrHandshakeFailed = errors.New("subscription handshake failed")
	ErrUnknownVariant  = errors.New("unknown subscription variant")
)

// Variant selects which subscription the client opens.
type Variant string

const (
	VariantEVM Variant = "evm" // onTokenEventsCreated
	VariantSol Variant = "sol" // onUnconfirmedEventsCreated
)

// ParseVariant parses "evm" or "sol", case-insensitively.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantEVM:
		return VariantEVM, nil
	case VariantSol:
		return VariantSol, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// graphqlRequest is the body of a GraphQL POST or subscribe payload.
type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// graphqlError is one entry of a GraphQL errors array.
type graphqlError struct {
	Message string `json:"message"`
}

// graphqlResponse is a GraphQL result envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// joinErrors joins non-empty messages with ", ".
func joinErrors(errs []graphqlError, fallback string) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return fallback
	}
	return strings.Join(msgs, ", ")
}

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// wsSubprotocol is negotiated on dial.
const wsSubprotocol = "graphql-transport-ws"

// wsMessage is a graphql-transport-ws frame.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// eventsPayload is the shape under a subscription's root field.
type eventsPayload struct {
	Events []json.RawMessage `json:"events"`
}

// tokenEventsResponse is the data of the getTokenEvents query.
type tokenEventsResponse struct {
	GetTokenEvents *struct {
		Items []json.RawMessage `json:"items"`
	} `json:"getTokenEvents"`
}

// compactEvents drops null entries.
func compactEvents(events []json.RawMessage) []json.RawMessage {
	out := events[:0:0]
	for _, e := range events {
		trimmed := strings.TrimSpace(string(e))
		if trimmed == "" || trimmed == "null" {
			continue
		}
		out = append(out, e)
	}
	return out
}
