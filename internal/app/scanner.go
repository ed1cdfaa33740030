package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"whalewatch/clients/polymarketapi"

	"go.uber.org/zap"
)

// WhaleThresholdUSD is the fixed notional above which a bet counts as
// a whale bet.
const WhaleThresholdUSD = 5000.0

// WhaleEvent is one whale bet detected during a scan. Events are
// recomputed every cycle and never mutated after creation; the score
// is captured by value so later re-scores do not alter past events.
type WhaleEvent struct {
	Market      string       `json:"market"`
	ConditionID string       `json:"conditionId"`
	Category    string       `json:"category,omitempty"`
	Wallet      string       `json:"wallet"`
	BetSize     float64      `json:"betSize"`
	Side        string       `json:"side"`
	Price       float64      `json:"price"`
	Outcome     string       `json:"outcome"`
	Timestamp   int64        `json:"timestamp"`
	WhaleScore  int          `json:"whaleScore"`
	Metrics     ScoreMetrics `json:"metrics"`
	TxHash      string       `json:"txHash"`
}

// WhaleScanner finds whale bets across open markets and scores the
// wallets behind them.
type WhaleScanner struct {
	logger   *zap.Logger
	provider MarketDataProvider
	scorer   *WhaleScorer

	marketLimit   int
	batchSize     int
	activityLimit int
}

func NewWhaleScanner(
	logger *zap.Logger,
	provider MarketDataProvider,
	scorer *WhaleScorer,
	marketLimit, batchSize, activityLimit int,
) *WhaleScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if marketLimit <= 0 {
		marketLimit = 100
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if activityLimit <= 0 {
		activityLimit = 100
	}

	return &WhaleScanner{
		logger:        logger,
		provider:      provider,
		scorer:        scorer,
		marketLimit:   marketLimit,
		batchSize:     batchSize,
		activityLimit: activityLimit,
	}
}

// Scan fetches open markets for a category (empty categoryID scans
// everything), finds trades at or above the whale threshold, scores
// each bettor, and returns events meeting minScore ranked best-first.
//
// Markets are processed in fixed-size batches with all fetches inside
// a batch issued concurrently, bounding peak outbound pressure. A
// market whose activity fetch fails is skipped; partial results are
// still returned.
func (s *WhaleScanner) Scan(ctx context.Context, categoryID string, minScore int) ([]WhaleEvent, error) {
	tagSlug := ""
	keywordFilter := false
	if categoryID != "" {
		cat := CategoryByID(categoryID)
		if cat == nil {
			return nil, fmt.Errorf("unknown category %q", categoryID)
		}
		tagSlug = cat.TagSlug
		// Categories without a server-side slug fall back to
		// keyword-classifying an unfiltered market list.
		keywordFilter = tagSlug == ""
	}

	markets, err := s.provider.ListOpenMarkets(ctx, tagSlug, s.marketLimit)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	if keywordFilter {
		// The provider may cache the returned slice, so filter into a
		// fresh one instead of reusing its backing array.
		filtered := make([]polymarketapi.Market, 0, len(markets))
		for _, m := range markets {
			if MatchesCategory(m.Question, categoryID) {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}

	start := time.Now()
	var (
		mu     sync.Mutex
		events []WhaleEvent
	)

	for batchStart := 0; batchStart < len(markets); batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > len(markets) {
			batchEnd = len(markets)
		}

		var wg sync.WaitGroup
		for _, market := range markets[batchStart:batchEnd] {
			wg.Add(1)
			go func(m polymarketapi.Market) {
				defer wg.Done()

				found, err := s.scanMarket(ctx, m, categoryID, minScore)
				if err != nil {
					s.logger.Warn("market scan failed, skipping",
						zap.String("conditionId", shortID(m.ConditionID)),
						zap.Error(err),
					)
					return
				}
				if len(found) == 0 {
					return
				}

				mu.Lock()
				events = append(events, found...)
				mu.Unlock()
			}(market)
		}
		wg.Wait()
	}

	events = dedupeByTxHash(events)
	rankEvents(events)

	s.logger.Debug("scan complete",
		zap.String("category", categoryID),
		zap.Int("markets", len(markets)),
		zap.Int("whales", len(events)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return events, nil
}

// scanMarket fetches one market's activity and turns qualifying trades
// into scored whale events.
func (s *WhaleScanner) scanMarket(
	ctx context.Context,
	market polymarketapi.Market,
	categoryID string,
	minScore int,
) ([]WhaleEvent, error) {
	trades, err := s.provider.GetMarketActivity(ctx, market.ConditionID, s.activityLimit)
	if err != nil {
		return nil, err
	}

	var events []WhaleEvent
	for i := range trades {
		trade := &trades[i]
		notional := trade.Notional()
		if notional < WhaleThresholdUSD {
			continue
		}

		record, err := s.scorer.GetScore(ctx, trade.ProxyWallet)
		if err != nil {
			s.logger.Warn("wallet scoring failed, skipping trade",
				zap.String("wallet", shortID(trade.ProxyWallet)),
				zap.Error(err),
			)
			continue
		}
		if record.Score < minScore {
			continue
		}

		title := trade.Title
		if title == "" {
			title = market.Question
		}

		events = append(events, WhaleEvent{
			Market:      title,
			ConditionID: market.ConditionID,
			Category:    categoryID,
			Wallet:      trade.ProxyWallet,
			BetSize:     notional,
			Side:        trade.Side,
			Price:       trade.Price,
			Outcome:     trade.Outcome,
			Timestamp:   trade.Timestamp,
			WhaleScore:  record.Score,
			Metrics:     record.Metrics,
			TxHash:      trade.TransactionHash,
		})
	}
	return events, nil
}

// dedupeByTxHash keeps the first event per transaction hash. Events
// without a hash are kept as-is.
func dedupeByTxHash(events []WhaleEvent) []WhaleEvent {
	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, e := range events {
		if e.TxHash != "" {
			if seen[e.TxHash] {
				continue
			}
			seen[e.TxHash] = true
		}
		out = append(out, e)
	}
	return out
}

// rankEvents sorts score descending, then timestamp descending, then
// tx hash ascending so exact ties have a deterministic total order.
func rankEvents(events []WhaleEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].WhaleScore != events[j].WhaleScore {
			return events[i].WhaleScore > events[j].WhaleScore
		}
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp > events[j].Timestamp
		}
		return events[i].TxHash < events[j].TxHash
	})
}
