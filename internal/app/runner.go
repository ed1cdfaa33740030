package app

import (
	"context"
	"fmt"
	"time"
	clts "whalewatch/clients"
	"whalewatch/clients/polymarketevents"
	"whalewatch/config"

	"go.uber.org/zap"
)

// Runner wires the scoring, scanning, and tracking components together
// and owns their lifecycles.
type Runner struct {
	clients *clts.Clients
	cfg     *config.Config

	scorer    *WhaleScorer
	scanner   *WhaleScanner
	activity  *ActivityLog
	state     *StateStore
	registry  *TrackerRegistry
	dashboard *DashboardServer
}

func NewRunner(clients *clts.Clients, cfg *config.Config) *Runner {
	return &Runner{
		clients: clients,
		cfg:     cfg,
	}
}

// Run builds the pipeline, resumes persisted trackers, and blocks
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.clients.Logger
	cfg := r.cfg

	logger.Info("starting whale tracker",
		zap.Duration("scanInterval", cfg.Tracker.ScanInterval),
		zap.Int("minScore", cfg.Tracker.MinScore),
		zap.Bool("autoTrade", cfg.Tracker.AutoTrade),
		zap.Int("categories", len(Categories)),
	)

	r.activity = NewActivityLog(20)
	r.scorer = NewWhaleScorer(
		logger,
		r.clients.Polymarket,
		cfg.Scorer.CacheTTL,
		cfg.Scorer.HistoryLimit,
	)
	r.scanner = NewWhaleScanner(
		logger,
		r.clients.Polymarket,
		r.scorer,
		cfg.Scanner.MarketLimit,
		cfg.Scanner.BatchSize,
		cfg.Scanner.ActivityLimit,
	)

	if r.clients.Gist != nil {
		r.state = NewStateStore(logger, r.clients.Gist, cfg.Tracker.StateFile)
		if !r.clients.Gist.IsEnabled() {
			logger.Info("gist persistence disabled, tracker state will not survive restarts")
		}
	}

	r.registry = NewTrackerRegistry(
		logger,
		r.scanner,
		r.clients.Notifier,
		r.activity,
		r.state,
		cfg.Tracker.ScanInterval,
		cfg.Tracker.MinScanGap,
		cfg.Tracker.ResumeDelay,
		cfg.Tracker.MinScore,
		cfg.Tracker.AutoTrade,
	)
	r.registry.Resume(ctx)

	if r.clients.News != nil {
		go r.clients.News.Run(ctx)
	}

	if r.clients.PolymarketEvents != nil {
		if err := r.connectLiveEvents(ctx); err != nil {
			logger.Warn("live events unavailable, continuing with polling only", zap.Error(err))
		} else {
			go r.consumeLiveEvents(ctx)
			go r.runLiveEventsReconnector(ctx)
		}
	}

	if cfg.Dashboard.Enabled {
		r.dashboard = NewDashboardServer(logger, r.registry, r.activity, r.clients.News)
		r.dashboard.Serve(cfg.Dashboard.Port)
	}

	r.activity.Add(SeverityInfo, "Whale tracker started")

	<-ctx.Done()
	logger.Info("runner shutting down")

	if r.clients.PolymarketEvents != nil {
		_ = r.clients.PolymarketEvents.Close()
	}
	r.registry.StopAll(context.WithoutCancel(ctx))
	if r.dashboard != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.dashboard.Shutdown(shutdownCtx)
		cancel()
	}
	if r.clients.Notifier != nil {
		_ = r.clients.Notifier.Close()
	}

	return nil
}

// connectLiveEvents subscribes the WebSocket client to the token IDs of
// currently open markets. Live events only hint at activity between
// polls; the poll loop remains the source of truth.
func (r *Runner) connectLiveEvents(ctx context.Context) error {
	markets, err := r.clients.Polymarket.ListOpenMarkets(ctx, "", r.cfg.Scanner.MarketLimit)
	if err != nil {
		return fmt.Errorf("list markets for live events: %w", err)
	}

	var tokenIDs []string
	for i := range markets {
		tokenIDs = append(tokenIDs, markets[i].GetTokenIDs()...)
	}
	if len(tokenIDs) == 0 {
		return fmt.Errorf("no token IDs to subscribe to")
	}

	// The parent context must outlive this call: ConnectMarket ties the
	// connection's lifetime to it.
	if err := r.clients.PolymarketEvents.ConnectMarket(ctx, tokenIDs); err != nil {
		return fmt.Errorf("connect market ws: %w", err)
	}

	r.clients.Logger.Info("live events connected", zap.Int("subscribedTokens", len(tokenIDs)))
	return nil
}

// consumeLiveEvents surfaces whale-sized live trades in the activity
// log. No scoring happens here; the next poll picks the trade up with
// full wallet context.
func (r *Runner) consumeLiveEvents(ctx context.Context) {
	events := r.clients.PolymarketEvents
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-events.Errors():
			if !ok {
				return
			}
			r.clients.Logger.Warn("live events stream error", zap.Error(err))
		case msg, ok := <-events.Messages():
			if !ok {
				return
			}
			trade := polymarketevents.ParseTradeEvent(msg)
			if trade == nil {
				continue
			}
			notional := trade.Notional()
			if notional < WhaleThresholdUSD {
				continue
			}
			r.activity.Add(SeverityWhale, fmt.Sprintf(
				"Live: $%.0f %s at %.2f", notional, trade.Side, trade.GetPriceFloat(),
			))
		}
	}
}

// runLiveEventsReconnector watches for a stale stream and re-dials.
func (r *Runner) runLiveEventsReconnector(ctx context.Context) {
	logger := r.clients.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.clients.PolymarketEvents.Stats()
			if stats.MessageCount == 0 || time.Since(stats.LastMessageAt) <= 2*time.Minute {
				continue
			}

			logger.Warn("live events stream stale, reconnecting",
				zap.Duration("sinceLastMessage", time.Since(stats.LastMessageAt)),
			)
			_ = r.clients.PolymarketEvents.Close()
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			if err := r.connectLiveEvents(ctx); err != nil {
				logger.Error("live events reconnect failed", zap.Error(err))
			} else {
				go r.consumeLiveEvents(ctx)
			}
		}
	}
}

// Registry exposes the tracker registry, mainly for tests and tooling.
func (r *Runner) Registry() *TrackerRegistry {
	return r.registry
}
