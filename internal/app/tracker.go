package app

import (
	"context"
	"fmt"
	"sync"
	"time"
	"whalewatch/clients/notifier"

	"go.uber.org/zap"
)

const (
	globalFeedLimit    = 20
	categoryFeedLimit  = 5
	autoTradeThreshold = 85
	alertedTxCap       = 4096
)

// CategoryStats are the per-category aggregates recomputed each scan.
type CategoryStats struct {
	Count     int     `json:"count"`
	AvgScore  float64 `json:"avgScore"`
	VolumeUSD float64 `json:"volumeUSD"`
}

// CategorySnapshot is the per-category view exposed to the dashboard.
type CategorySnapshot struct {
	Category   Category      `json:"category"`
	IsActive   bool          `json:"isActive"`
	LastScanAt time.Time     `json:"lastScanAt"`
	Stats      CategoryStats `json:"stats"`
	Whales     []WhaleEvent  `json:"whales"` // top events for display
}

// trackerState is the registry's record for one category. All fields
// are guarded by the registry mutex.
type trackerState struct {
	category   Category
	active     bool
	generation uint64 // bumped on every start/stop to fence in-flight scans
	lastScanAt time.Time
	whales     []WhaleEvent
	stats      CategoryStats
	cancel     context.CancelFunc
}

// TrackerRegistry owns one independent poll loop per category,
// throttles re-scans, merges results into a global ranked alert feed,
// and persists which categories are running.
type TrackerRegistry struct {
	logger   *zap.Logger
	scanner  *WhaleScanner
	notifier notifier.Notifier
	activity *ActivityLog
	state    *StateStore

	scanInterval time.Duration
	minScanGap   time.Duration
	resumeDelay  time.Duration

	mu         sync.Mutex
	trackers   map[string]*trackerState
	minScore   int
	autoTrade  bool
	globalFeed []WhaleEvent
	alertedTx  map[string]bool
}

func NewTrackerRegistry(
	logger *zap.Logger,
	scanner *WhaleScanner,
	notif notifier.Notifier,
	activity *ActivityLog,
	state *StateStore,
	scanInterval, minScanGap, resumeDelay time.Duration,
	minScore int,
	autoTrade bool,
) *TrackerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}
	if minScanGap <= 0 {
		minScanGap = 5 * time.Second
	}
	if minScore <= 0 {
		minScore = 75
	}
	if activity == nil {
		activity = NewActivityLog(20)
	}

	trackers := make(map[string]*trackerState, len(Categories))
	for _, cat := range Categories {
		trackers[cat.ID] = &trackerState{category: cat}
	}

	return &TrackerRegistry{
		logger:       logger,
		scanner:      scanner,
		notifier:     notif,
		activity:     activity,
		state:        state,
		scanInterval: scanInterval,
		minScanGap:   minScanGap,
		resumeDelay:  resumeDelay,
		trackers:     trackers,
		minScore:     minScore,
		autoTrade:    autoTrade,
		alertedTx:    make(map[string]bool),
	}
}

// Start begins the recurring scan loop for a category. Starting an
// already-running category is a no-op.
func (tr *TrackerRegistry) Start(ctx context.Context, categoryID string) error {
	tr.mu.Lock()
	ts, ok := tr.trackers[categoryID]
	if !ok {
		tr.mu.Unlock()
		return fmt.Errorf("unknown category %q", categoryID)
	}
	if ts.active {
		tr.mu.Unlock()
		tr.logger.Debug("tracker already running", zap.String("category", categoryID))
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ts.active = true
	ts.generation++
	ts.cancel = cancel
	gen := ts.generation
	tr.mu.Unlock()

	tr.activity.Add(SeverityInfo, fmt.Sprintf("Started %s tracker", ts.category.Label))
	tr.logger.Info("tracker started", zap.String("category", categoryID))
	tr.persist(ctx)

	go tr.runLoop(loopCtx, categoryID, gen)
	return nil
}

// Stop halts a category's loop and discards its cached events.
// Stopping a stopped category is a no-op. An in-flight scan for the
// old generation is fenced out when it tries to apply results.
func (tr *TrackerRegistry) Stop(ctx context.Context, categoryID string) error {
	tr.mu.Lock()
	ts, ok := tr.trackers[categoryID]
	if !ok {
		tr.mu.Unlock()
		return fmt.Errorf("unknown category %q", categoryID)
	}
	if !ts.active {
		tr.mu.Unlock()
		return nil
	}

	ts.active = false
	ts.generation++
	if ts.cancel != nil {
		ts.cancel()
		ts.cancel = nil
	}
	ts.whales = nil
	ts.stats = CategoryStats{}
	tr.recomputeGlobalFeedLocked()
	label := ts.category.Label
	tr.mu.Unlock()

	tr.activity.Add(SeverityInfo, fmt.Sprintf("Stopped %s tracker", label))
	tr.logger.Info("tracker stopped", zap.String("category", categoryID))
	tr.persist(ctx)
	return nil
}

// StartAll starts every category sequentially so initial-load API
// pressure is spread out.
func (tr *TrackerRegistry) StartAll(ctx context.Context) {
	for _, cat := range Categories {
		if err := tr.Start(ctx, cat.ID); err != nil {
			tr.logger.Error("failed to start tracker",
				zap.String("category", cat.ID),
				zap.Error(err),
			)
		}
	}
}

// StopAll stops every category sequentially.
func (tr *TrackerRegistry) StopAll(ctx context.Context) {
	for _, cat := range Categories {
		if err := tr.Stop(ctx, cat.ID); err != nil {
			tr.logger.Error("failed to stop tracker",
				zap.String("category", cat.ID),
				zap.Error(err),
			)
		}
	}
}

// runLoop performs an immediate scan and then re-scans on a ticker
// until the tracker's context is cancelled.
func (tr *TrackerRegistry) runLoop(ctx context.Context, categoryID string, gen uint64) {
	tr.ScanCategory(ctx, categoryID, gen)

	ticker := time.NewTicker(tr.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tr.ScanCategory(ctx, categoryID, gen)
		case <-ctx.Done():
			return
		}
	}
}

// ScanCategory runs one scan cycle for a category. Cycles arriving
// within the minimum gap of the previous completed scan are skipped to
// protect the upstream API from backed-up scans.
func (tr *TrackerRegistry) ScanCategory(ctx context.Context, categoryID string, gen uint64) {
	tr.mu.Lock()
	ts, ok := tr.trackers[categoryID]
	if !ok || !ts.active || ts.generation != gen {
		tr.mu.Unlock()
		return
	}
	if !ts.lastScanAt.IsZero() && time.Since(ts.lastScanAt) < tr.minScanGap {
		tr.mu.Unlock()
		tr.logger.Debug("scan throttled",
			zap.String("category", categoryID),
			zap.Duration("minGap", tr.minScanGap),
		)
		return
	}
	minScore := tr.minScore
	label := ts.category.Label
	tr.mu.Unlock()

	events, err := tr.scanner.Scan(ctx, categoryID, minScore)
	if err != nil {
		// Keep last-known-good results: stale beats empty.
		tr.logger.Error("scan failed",
			zap.String("category", categoryID),
			zap.Error(err),
		)
		tr.activity.Add(SeverityError, fmt.Sprintf("%s scan failed: %v", label, err))
		return
	}

	tr.applyScanResults(categoryID, gen, events)
}

// applyScanResults installs a scan's events if the tracker is still
// running the same generation. Results from a scan that was in flight
// across a stop (or stop/start) are discarded.
func (tr *TrackerRegistry) applyScanResults(categoryID string, gen uint64, events []WhaleEvent) {
	tr.mu.Lock()

	ts, ok := tr.trackers[categoryID]
	if !ok || !ts.active || ts.generation != gen {
		tr.mu.Unlock()
		tr.logger.Debug("discarding stale scan results", zap.String("category", categoryID))
		return
	}

	ts.whales = events
	ts.lastScanAt = time.Now()
	ts.stats = computeStats(events)
	tr.recomputeGlobalFeedLocked()

	fresh := tr.markFreshLocked(events)
	autoTrade := tr.autoTrade
	label := ts.category.Label
	tr.mu.Unlock()

	if len(fresh) > 0 {
		tr.activity.Add(SeverityWhale, fmt.Sprintf("%s: %d new whale bet(s) detected", label, len(fresh)))
	} else {
		tr.activity.Add(SeveritySuccess, fmt.Sprintf("%s scan complete, %d whale(s) tracked", label, len(events)))
	}

	for _, e := range fresh {
		tr.emitAlert(e)
		if autoTrade && e.WhaleScore >= autoTradeThreshold {
			// Observability only. No order is ever placed.
			tr.logger.Info("auto-trade would copy whale bet",
				zap.String("wallet", shortID(e.Wallet)),
				zap.String("market", e.Market),
				zap.Int("score", e.WhaleScore),
				zap.Float64("betSize", e.BetSize),
			)
			tr.activity.Add(SeverityInfo, fmt.Sprintf(
				"Auto-trade: would copy %s bet of $%.0f (score %d)",
				shortID(e.Wallet), e.BetSize, e.WhaleScore,
			))
		}
	}
}

// markFreshLocked returns events not yet alerted and records their tx
// hashes. Caller holds the registry mutex.
func (tr *TrackerRegistry) markFreshLocked(events []WhaleEvent) []WhaleEvent {
	if len(tr.alertedTx) > alertedTxCap {
		tr.alertedTx = make(map[string]bool)
	}

	var fresh []WhaleEvent
	for _, e := range events {
		if e.TxHash == "" || tr.alertedTx[e.TxHash] {
			continue
		}
		tr.alertedTx[e.TxHash] = true
		fresh = append(fresh, e)
	}
	return fresh
}

func (tr *TrackerRegistry) emitAlert(e WhaleEvent) {
	if tr.notifier == nil {
		return
	}

	tr.notifier.SendWhaleAlert(notifier.WhaleAlert{
		WalletAddress:   e.Wallet,
		WalletURL:       "https://polymarket.com/profile/" + e.Wallet,
		Score:           e.WhaleScore,
		Side:            e.Side,
		Outcome:         e.Outcome,
		Shares:          sharesFromNotional(e.BetSize, e.Price),
		Price:           e.Price,
		Notional:        e.BetSize,
		MarketTitle:     e.Market,
		ConditionID:     e.ConditionID,
		Category:        e.Category,
		WinRate:         e.Metrics.WinRate,
		AvgBetSize:      e.Metrics.AvgBetSize,
		TotalVolume:     e.Metrics.TotalVolume,
		TradeCount:      e.Metrics.TotalTrades,
		TransactionHash: e.TxHash,
		Timestamp:       time.Unix(e.Timestamp, 0),
	})
}

func sharesFromNotional(notional, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return notional / price
}

// recomputeGlobalFeedLocked rebuilds the merged alert feed from every
// active category's events. The feed owns nothing; it is fully
// recomputed on each update, so concurrent category scans racing on it
// resolve as last-writer-wins. Caller holds the registry mutex.
func (tr *TrackerRegistry) recomputeGlobalFeedLocked() {
	var merged []WhaleEvent
	for _, ts := range tr.trackers {
		if !ts.active {
			continue
		}
		merged = append(merged, ts.whales...)
	}

	rankEvents(merged)
	if len(merged) > globalFeedLimit {
		merged = merged[:globalFeedLimit]
	}
	tr.globalFeed = merged
}

func computeStats(events []WhaleEvent) CategoryStats {
	stats := CategoryStats{Count: len(events)}
	if len(events) == 0 {
		return stats
	}

	var scoreSum float64
	for _, e := range events {
		scoreSum += float64(e.WhaleScore)
		stats.VolumeUSD += e.BetSize
	}
	stats.AvgScore = scoreSum / float64(len(events))
	return stats
}

// GlobalFeed returns a copy of the merged top alerts.
func (tr *TrackerRegistry) GlobalFeed() []WhaleEvent {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]WhaleEvent, len(tr.globalFeed))
	copy(out, tr.globalFeed)
	return out
}

// Snapshot returns the per-category dashboard view, truncated to the
// top events per category.
func (tr *TrackerRegistry) Snapshot() []CategorySnapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]CategorySnapshot, 0, len(Categories))
	for _, cat := range Categories {
		ts := tr.trackers[cat.ID]

		whales := ts.whales
		if len(whales) > categoryFeedLimit {
			whales = whales[:categoryFeedLimit]
		}
		display := make([]WhaleEvent, len(whales))
		copy(display, whales)

		out = append(out, CategorySnapshot{
			Category:   cat,
			IsActive:   ts.active,
			LastScanAt: ts.lastScanAt,
			Stats:      ts.stats,
			Whales:     display,
		})
	}
	return out
}

// ActiveCategories returns the IDs of currently-running trackers.
func (tr *TrackerRegistry) ActiveCategories() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var active []string
	for _, cat := range Categories {
		if tr.trackers[cat.ID].active {
			active = append(active, cat.ID)
		}
	}
	return active
}

// AlertCount returns the number of distinct whale bets alerted since
// startup (or since the last dedupe-map reset).
func (tr *TrackerRegistry) AlertCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.alertedTx)
}

// Settings returns the current mutable settings.
func (tr *TrackerRegistry) Settings() (minScore int, autoTrade bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.minScore, tr.autoTrade
}

// UpdateSettings changes the score threshold and auto-trade flag,
// persisting the new values.
func (tr *TrackerRegistry) UpdateSettings(ctx context.Context, minScore int, autoTrade bool) error {
	if minScore < 0 || minScore > 100 {
		return fmt.Errorf("minScore %d out of range [0,100]", minScore)
	}

	tr.mu.Lock()
	tr.minScore = minScore
	tr.autoTrade = autoTrade
	tr.mu.Unlock()

	tr.activity.Add(SeverityInfo, fmt.Sprintf("Settings updated: minScore=%d autoTrade=%v", minScore, autoTrade))
	tr.persist(ctx)
	return nil
}

// persist saves the current settings record. Takes the mutex itself;
// must not be called with it held.
func (tr *TrackerRegistry) persist(ctx context.Context) {
	if tr.state == nil {
		return
	}

	tr.mu.Lock()
	settings := TrackerSettings{
		MinScore:         tr.minScore,
		AutoTrade:        tr.autoTrade,
		ActiveCategories: nil,
	}
	for _, cat := range Categories {
		if tr.trackers[cat.ID].active {
			settings.ActiveCategories = append(settings.ActiveCategories, cat.ID)
		}
	}
	tr.mu.Unlock()

	if err := tr.state.Save(ctx, settings); err != nil {
		tr.logger.Warn("tracker state save failed", zap.Error(err))
	}
}

// Resume restores persisted settings and restarts the categories that
// were running before the last shutdown, after a short delay so
// collaborators finish initializing first.
func (tr *TrackerRegistry) Resume(ctx context.Context) {
	if tr.state == nil {
		return
	}

	settings, ok := tr.state.Load(ctx)
	if !ok {
		return
	}

	// The record is written wholesale, so a loaded MinScore of 0 is a
	// deliberate setting, not an absent field.
	tr.mu.Lock()
	if settings.MinScore >= 0 && settings.MinScore <= 100 {
		tr.minScore = settings.MinScore
	}
	tr.autoTrade = settings.AutoTrade
	tr.mu.Unlock()

	if len(settings.ActiveCategories) == 0 {
		return
	}

	go func() {
		select {
		case <-time.After(tr.resumeDelay):
		case <-ctx.Done():
			return
		}

		tr.logger.Info("resuming persisted trackers",
			zap.Strings("categories", settings.ActiveCategories),
		)
		for _, id := range settings.ActiveCategories {
			if err := tr.Start(ctx, id); err != nil {
				tr.logger.Error("failed to resume tracker",
					zap.String("category", id),
					zap.Error(err),
				)
			}
		}
	}()
}
