package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"whalewatch/clients/polymarketapi"

	"go.uber.org/zap"
)

// Fixed scoring weights. They sum to 1.0 and are not configurable.
const (
	weightWinRate     = 0.4
	weightBetSize     = 0.2
	weightVolume      = 0.2
	weightFrequency   = 0.1
	weightRecentPerf  = 0.1
	neutralComponent  = 50.0
	recentTradeWindow = 10

	// Saturation points: the value at which each normalized
	// sub-score reaches its 100 cap.
	avgBetSaturation = 20000.0
	volumeSaturation = 500000.0
	tradesSaturation = 50.0
)

// ScoreMetrics are the inputs behind a wallet's composite score.
type ScoreMetrics struct {
	WinRate           float64 `json:"winRate"` // 0.0 to 1.0 over resolved positions
	AvgBetSize        float64 `json:"avgBetSize"`
	TotalVolume       float64 `json:"totalVolume"`
	TotalTrades       int     `json:"totalTrades"`
	RecentPerformance float64 `json:"recentPerformance"` // 0-100 component value
}

// WhaleScoreRecord holds a computed wallet quality score.
type WhaleScoreRecord struct {
	Wallet     string       `json:"wallet"`
	Score      int          `json:"score"` // 0-100
	Metrics    ScoreMetrics `json:"metrics"`
	ComputedAt time.Time    `json:"computedAt"`
}

// WhaleScorer computes 0-100 quality scores for wallets from their
// trade history and resolved positions. Results are cached per wallet
// to keep repeated scans off the rate limiter; a score may lag its
// true value by up to the cache TTL.
type WhaleScorer struct {
	logger   *zap.Logger
	provider MarketDataProvider

	cacheTTL     time.Duration
	historyLimit int

	mu    sync.RWMutex
	cache map[string]*WhaleScoreRecord
}

// NewWhaleScorer creates a scorer with the given cache TTL and wallet
// history fetch limit.
func NewWhaleScorer(
	logger *zap.Logger,
	provider MarketDataProvider,
	cacheTTL time.Duration,
	historyLimit int,
) *WhaleScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}

	return &WhaleScorer{
		logger:       logger,
		provider:     provider,
		cacheTTL:     cacheTTL,
		historyLimit: historyLimit,
		cache:        make(map[string]*WhaleScoreRecord),
	}
}

// GetScore returns the cached score for a wallet, computing it from
// fresh history and positions if the cache entry is missing or stale.
func (ws *WhaleScorer) GetScore(ctx context.Context, wallet string) (*WhaleScoreRecord, error) {
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	ws.mu.RLock()
	cached, ok := ws.cache[wallet]
	ws.mu.RUnlock()

	if ok && time.Since(cached.ComputedAt) < ws.cacheTTL {
		return cached, nil
	}

	record, err := ws.fetchAndScore(ctx, wallet)
	if err != nil {
		// If we have stale cache, return it on error
		if cached != nil {
			ws.logger.Warn("using stale score due to fetch error",
				zap.String("wallet", shortID(wallet)),
				zap.Error(err),
			)
			return cached, nil
		}
		return nil, err
	}

	ws.mu.Lock()
	ws.cache[wallet] = record
	ws.mu.Unlock()

	return record, nil
}

// fetchAndScore pulls history and positions concurrently and computes
// the composite score.
func (ws *WhaleScorer) fetchAndScore(ctx context.Context, wallet string) (*WhaleScoreRecord, error) {
	var (
		wg        sync.WaitGroup
		trades    []polymarketapi.Trade
		positions []polymarketapi.Position
		histErr   error
		posErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		trades, histErr = ws.provider.GetWalletHistory(ctx, wallet, ws.historyLimit)
	}()
	go func() {
		defer wg.Done()
		positions, posErr = ws.provider.GetWalletPositions(ctx, wallet)
	}()
	wg.Wait()

	if histErr != nil {
		return nil, fmt.Errorf("wallet history: %w", histErr)
	}
	if posErr != nil {
		// Positions are optional: missing data means the win-rate
		// component falls back to its neutral default.
		ws.logger.Warn("wallet positions unavailable, using neutral win rate",
			zap.String("wallet", shortID(wallet)),
			zap.Error(posErr),
		)
		positions = nil
	}

	record := ComputeScore(wallet, trades, positions)

	ws.logger.Debug("computed wallet score",
		zap.String("wallet", shortID(wallet)),
		zap.Int("score", record.Score),
		zap.Float64("winRate", record.Metrics.WinRate),
		zap.Int("trades", record.Metrics.TotalTrades),
	)

	return record, nil
}

// ComputeScore is the pure scoring function over a wallet's trades and
// positions. No history yields score 0: a valid "insufficient data"
// outcome, not an error.
func ComputeScore(
	wallet string,
	trades []polymarketapi.Trade,
	positions []polymarketapi.Position,
) *WhaleScoreRecord {
	record := &WhaleScoreRecord{
		Wallet:     wallet,
		ComputedAt: time.Now(),
	}

	if len(trades) == 0 {
		return record
	}

	// Resolved positions keyed by market. Redeemable marks a market
	// whose outcome has settled.
	resolved := make(map[string]bool) // conditionID -> won
	wins := 0
	total := 0
	for _, p := range positions {
		if !p.Redeemable {
			continue
		}
		won := p.CashPnl > 0
		resolved[p.ConditionID] = won
		if won {
			wins++
		}
		total++
	}

	winRateComponent := neutralComponent
	winRate := 0.0
	if total > 0 {
		winRate = float64(wins) / float64(total)
		winRateComponent = winRate * 100
	}

	var totalVolume float64
	for i := range trades {
		totalVolume += trades[i].Notional()
	}
	avgBetSize := totalVolume / float64(len(trades))

	betSizeScore := math.Min(100, avgBetSize/avgBetSaturation*100)
	volumeScore := math.Min(100, totalVolume/volumeSaturation*100)
	frequencyScore := math.Min(100, float64(len(trades))/tradesSaturation*100)
	recentPerf := recentPerformance(trades, resolved)

	weighted := winRateComponent*weightWinRate +
		betSizeScore*weightBetSize +
		volumeScore*weightVolume +
		frequencyScore*weightFrequency +
		recentPerf*weightRecentPerf

	score := int(math.Round(weighted))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	record.Score = score
	record.Metrics = ScoreMetrics{
		WinRate:           winRate,
		AvgBetSize:        avgBetSize,
		TotalVolume:       totalVolume,
		TotalTrades:       len(trades),
		RecentPerformance: recentPerf,
	}
	return record
}

// recentPerformance computes the win fraction over the 10 most-recent
// trades whose markets have resolved, on a 0-100 scale. Trades with no
// matching resolved position are skipped; no matches defaults to the
// neutral 50.
func recentPerformance(trades []polymarketapi.Trade, resolved map[string]bool) float64 {
	if len(resolved) == 0 {
		return neutralComponent
	}

	recent := make([]polymarketapi.Trade, len(trades))
	copy(recent, trades)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp > recent[j].Timestamp
	})
	if len(recent) > recentTradeWindow {
		recent = recent[:recentTradeWindow]
	}

	wins := 0
	matched := 0
	for _, t := range recent {
		won, ok := resolved[t.ConditionID]
		if !ok {
			continue
		}
		matched++
		if won {
			wins++
		}
	}

	if matched == 0 {
		return neutralComponent
	}
	return float64(wins) / float64(matched) * 100
}

// CacheSize returns the current number of cached wallet scores.
func (ws *WhaleScorer) CacheSize() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.cache)
}

// PruneStale removes expired entries from the score cache.
func (ws *WhaleScorer) PruneStale() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	pruned := 0
	for wallet, record := range ws.cache {
		if time.Since(record.ComputedAt) > ws.cacheTTL {
			delete(ws.cache, wallet)
			pruned++
		}
	}
	return pruned
}
