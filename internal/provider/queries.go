package provider

import "strings"

// eventFields is the selection set shared by the query and subscriptions.
const eventFields = `
    id
    address
    timestamp
    transactionHash
    logIndex
    supplementalIndex
    maker
    networkId
    eventDisplayType
    token0SwapValueUsd
    token1SwapValueUsd
    data {
      __typename
      ... on SwapEventData {
        amount0
        amount1
        amountNonLiquidityToken
        priceUsd
        priceUsdTotal
        priceBaseToken
        priceBaseTokenTotal
      }
      ... on MintEventData {
        amount0
        amount1
        amount0Shifted
        amount1Shifted
      }
      ... on BurnEventData {
        amount0
        amount1
        amount0Shifted
        amount1Shifted
      }
      ... on PoolBalanceChangedEventData {
        amount0
        amount1
        amount0Shifted
        amount1Shifted
      }
    }`

// unconfirmedFields is the selection set for unconfirmed (sol) events.
const unconfirmedFields = `
    id
    address
    timestamp
    transactionHash
    maker
    networkId
    eventDisplayType
    data {
      __typename
      ... on UnconfirmedSwapEventData {
        amountNonLiquidityToken
        priceUsd
        priceUsdTotal
        priceBaseToken
        priceBaseTokenTotal
      }
      ... on UnconfirmedLiquidityChangeEventData {
        amount0
        amount1
        amount0Shifted
        amount1Shifted
      }
    }`

var getTokenEventsQuery = compact(`
query GetTokenEvents($query: EventsQueryInput!, $limit: Int, $direction: RankingDirection) {
  getTokenEvents(query: $query, limit: $limit, direction: $direction) {
    items {` + eventFields + `
    }
  }
}`)

var onTokenEventsCreatedSubscription = compact(`
subscription OnTokenEventsCreated($input: OnTokenEventsCreatedInput!) {
  onTokenEventsCreated(input: $input) {
    events {` + eventFields + `
    }
  }
}`)

var onUnconfirmedEventsCreatedSubscription = compact(`
subscription OnUnconfirmedEventsCreated($address: String!) {
  onUnconfirmedEventsCreated(address: $address) {
    events {` + unconfirmedFields + `
    }
  }
}`)

// subscription returns the operation for the variant.
func (v Variant) subscription(address string, networkID int) (req graphqlRequest, rootField string) {
	if v == VariantSol {
		return graphqlRequest{
			Query:         onUnconfirmedEventsCreatedSubscription,
			OperationName: "OnUnconfirmedEventsCreated",
			Variables:     map[string]any{"address": address},
		}, "onUnconfirmedEventsCreated"
	}
	return graphqlRequest{
		Query:         onTokenEventsCreatedSubscription,
		OperationName: "OnTokenEventsCreated",
		Variables: map[string]any{
			"input": map[string]any{
				"tokenAddress": address,
				"networkId":    networkID,
			},
		},
	}, "onTokenEventsCreated"
}

// compact collapses whitespace so queries stay small on the wire.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
