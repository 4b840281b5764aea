package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FetchRecentEvents returns up to limit of the target's most recent events.
// Null items are dropped. Ordering is whatever the provider returns.
func (c *Client) FetchRecentEvents(ctx context.Context, address string, networkID, limit int) ([]json.RawMessage, error) {
	req := graphqlRequest{
		Query:         getTokenEventsQuery,
		OperationName: "GetTokenEvents",
		Variables: map[string]any{
			"limit":     limit,
			"direction": "DESC",
			"query": map[string]any{
				"address":   strings.ToLower(address),
				"networkId": networkID,
			},
		},
	}

	var resp tokenEventsResponse
	if err := c.query(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("get token events: %w", err)
	}
	if resp.GetTokenEvents == nil {
		return nil, nil
	}

	events := compactEvents(resp.GetTokenEvents.Items)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	c.logger.Debug("fetched recent events",
		"address", address,
		"network_id", networkID,
		"count", len(events),
	)
	return events, nil
}
