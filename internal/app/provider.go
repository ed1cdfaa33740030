package app

import (
	"context"
	"whalewatch/clients/polymarketapi"
)

// MarketDataProvider is the subset of the Polymarket API client the
// scan and scoring pipeline depends on. Kept narrow for test mocking.
type MarketDataProvider interface {
	ListOpenMarkets(ctx context.Context, tagSlug string, limit int) ([]polymarketapi.Market, error)
	GetMarketActivity(ctx context.Context, conditionID string, limit int) ([]polymarketapi.Trade, error)
	GetWalletHistory(ctx context.Context, wallet string, limit int) ([]polymarketapi.Trade, error)
	GetWalletPositions(ctx context.Context, wallet string) ([]polymarketapi.Position, error)
}

var _ MarketDataProvider = (*polymarketapi.PolymarketApiClient)(nil)
