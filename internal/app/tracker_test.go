package app

import (
	"context"
	"strings"
	"testing"
	"time"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"

	"go.uber.org/zap"
)

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// whaleProvider seeds a provider with one crypto market carrying one
// whale-sized bet from a high-scoring wallet.
func whaleProvider() *MockProvider {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{
			ProxyWallet:     "0xWHALE",
			ConditionID:     "m1",
			Side:            "BUY",
			Outcome:         "Yes",
			Price:           0.6,
			UsdcSize:        6000,
			Timestamp:       1700000100,
			TransactionHash: "0xA",
		},
	}
	return provider
}

func newTestRegistry(provider *MockProvider, notif *MockNotifier, store *StateStore, autoTrade bool) *TrackerRegistry {
	scorer := NewWhaleScorer(zap.NewNop(), provider, 5*time.Minute, 100)
	scanner := NewWhaleScanner(zap.NewNop(), provider, scorer, 100, 10, 100)

	// A nil *MockNotifier must become a nil interface, not a typed nil.
	var n notifier.Notifier
	if notif != nil {
		n = notif
	}
	return NewTrackerRegistry(
		zap.NewNop(), scanner, n, NewActivityLog(20), store,
		time.Hour, time.Nanosecond, time.Millisecond, 75, autoTrade,
	)
}

func TestStart_ScansImmediately(t *testing.T) {
	provider := whaleProvider()
	notif := &MockNotifier{}
	tr := newTestRegistry(provider, notif, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(tr.GlobalFeed()) == 1
	})

	feed := tr.GlobalFeed()
	if feed[0].Wallet != "0xWHALE" {
		t.Errorf("unexpected wallet %q in global feed", feed[0].Wallet)
	}
	if feed[0].Category != "crypto" {
		t.Errorf("unexpected category %q", feed[0].Category)
	}
	if alerts := notif.Alerts(); len(alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(alerts))
	}
}

func TestStart_Idempotent(t *testing.T) {
	provider := whaleProvider()
	tr := newTestRegistry(provider, nil, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("second start must be a no-op, got: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return provider.ListCalls() >= 1
	})
	time.Sleep(50 * time.Millisecond)

	// One loop, one immediate scan.
	if calls := provider.ListCalls(); calls != 1 {
		t.Errorf("expected 1 market list fetch, got %d", calls)
	}
	if active := tr.ActiveCategories(); len(active) != 1 || active[0] != "crypto" {
		t.Errorf("unexpected active categories %v", active)
	}
}

func TestStart_UnknownCategory(t *testing.T) {
	tr := newTestRegistry(NewMockProvider(), nil, nil, false)

	if err := tr.Start(context.Background(), "weather"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestStop_NoOpWhenStopped(t *testing.T) {
	tr := newTestRegistry(NewMockProvider(), nil, nil, false)

	if err := tr.Stop(context.Background(), "crypto"); err != nil {
		t.Errorf("stopping a stopped tracker must be a no-op, got: %v", err)
	}
}

func TestStop_RemovesEventsFromGlobalFeed(t *testing.T) {
	provider := whaleProvider()
	tr := newTestRegistry(provider, nil, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(tr.GlobalFeed()) == 1
	})

	if err := tr.Stop(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if feed := tr.GlobalFeed(); len(feed) != 0 {
		t.Errorf("expected empty global feed after stop, got %d events", len(feed))
	}
	for _, snap := range tr.Snapshot() {
		if snap.Category.ID == "crypto" {
			if snap.IsActive {
				t.Error("crypto should be inactive after stop")
			}
			if len(snap.Whales) != 0 {
				t.Errorf("expected cleared whales, got %d", len(snap.Whales))
			}
		}
	}
}

func TestScanCategory_Throttled(t *testing.T) {
	provider := whaleProvider()
	scorer := NewWhaleScorer(zap.NewNop(), provider, 5*time.Minute, 100)
	scanner := NewWhaleScanner(zap.NewNop(), provider, scorer, 100, 10, 100)
	tr := NewTrackerRegistry(
		zap.NewNop(), scanner, nil, NewActivityLog(20), nil,
		time.Hour, time.Hour, time.Millisecond, 75, false,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(tr.GlobalFeed()) == 1
	})

	// Within the minimum gap the cycle is skipped entirely.
	tr.ScanCategory(ctx, "crypto", 1)
	if calls := provider.ListCalls(); calls != 1 {
		t.Errorf("expected throttled scan to skip fetching, got %d calls", calls)
	}
}

func TestApplyScanResults_StaleGenerationDiscarded(t *testing.T) {
	provider := whaleProvider()
	tr := newTestRegistry(provider, nil, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(tr.GlobalFeed()) == 1
	})

	stale := []WhaleEvent{{
		ConditionID: "ghost",
		Category:    "crypto",
		Wallet:      "0xOLD",
		BetSize:     99999,
		WhaleScore:  99,
		TxHash:      "0xSTALE",
	}}
	tr.applyScanResults("crypto", 999, stale)

	feed := tr.GlobalFeed()
	if len(feed) != 1 || feed[0].Wallet != "0xWHALE" {
		t.Errorf("stale-generation results leaked into the feed: %v", feed)
	}
}

func TestApplyScanResults_DiscardedAfterStop(t *testing.T) {
	provider := whaleProvider()
	tr := newTestRegistry(provider, nil, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(tr.GlobalFeed()) == 1
	})
	if err := tr.Stop(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A scan that was in flight across the stop applies with the old
	// generation and must be dropped.
	tr.applyScanResults("crypto", 1, []WhaleEvent{{Wallet: "0xOLD", TxHash: "0xL"}})

	if feed := tr.GlobalFeed(); len(feed) != 0 {
		t.Errorf("in-flight results applied after stop: %v", feed)
	}
}

func TestAlerts_DedupedByTxHash(t *testing.T) {
	provider := whaleProvider()
	notif := &MockNotifier{}
	tr := newTestRegistry(provider, notif, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(notif.Alerts()) == 1
	})

	// Re-scan sees the same trade again; no duplicate alert goes out.
	tr.ScanCategory(ctx, "crypto", 1)
	time.Sleep(20 * time.Millisecond)

	if alerts := notif.Alerts(); len(alerts) != 1 {
		t.Errorf("expected 1 alert after re-scan, got %d", len(alerts))
	}
}

func TestAutoTrade_LogsWouldCopy(t *testing.T) {
	provider := whaleProvider()
	tr := newTestRegistry(provider, nil, nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		for _, e := range tr.activity.Entries() {
			if e.Severity == SeverityInfo && strings.HasPrefix(e.Message, "Auto-trade") {
				return true
			}
		}
		return false
	})
}

func TestUpdateSettings(t *testing.T) {
	tr := newTestRegistry(NewMockProvider(), nil, nil, false)

	if err := tr.UpdateSettings(context.Background(), 90, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	minScore, autoTrade := tr.Settings()
	if minScore != 90 || !autoTrade {
		t.Errorf("settings not applied: minScore=%d autoTrade=%v", minScore, autoTrade)
	}

	if err := tr.UpdateSettings(context.Background(), 101, false); err == nil {
		t.Error("expected range error for minScore 101")
	}
	if err := tr.UpdateSettings(context.Background(), -1, false); err == nil {
		t.Error("expected range error for minScore -1")
	}
}

func TestPersist_ActiveCategories(t *testing.T) {
	provider := whaleProvider()
	storage := NewMockGistStorage()
	store := NewStateStore(zap.NewNop(), storage, "tracker_state.json")
	tr := newTestRegistry(provider, nil, store, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings, ok := store.Load(ctx)
	if !ok {
		t.Fatal("expected persisted state after start")
	}
	if len(settings.ActiveCategories) != 1 || settings.ActiveCategories[0] != "crypto" {
		t.Errorf("unexpected persisted categories %v", settings.ActiveCategories)
	}

	if err := tr.Stop(ctx, "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	settings, ok = store.Load(ctx)
	if !ok {
		t.Fatal("expected persisted state after stop")
	}
	if len(settings.ActiveCategories) != 0 {
		t.Errorf("expected no active categories persisted, got %v", settings.ActiveCategories)
	}
}

func TestResume_RestartsPersistedCategories(t *testing.T) {
	provider := whaleProvider()
	storage := NewMockGistStorage()
	store := NewStateStore(zap.NewNop(), storage, "tracker_state.json")

	if err := store.Save(context.Background(), TrackerSettings{
		MinScore:         80,
		AutoTrade:        true,
		ActiveCategories: []string{"crypto", "retired-category"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr := newTestRegistry(provider, nil, store, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr.Resume(ctx)

	waitFor(t, 2*time.Second, func() bool {
		active := tr.ActiveCategories()
		return len(active) == 1 && active[0] == "crypto"
	})

	minScore, autoTrade := tr.Settings()
	if minScore != 80 {
		t.Errorf("expected restored minScore 80, got %d", minScore)
	}
	if !autoTrade {
		t.Error("expected restored autoTrade true")
	}
}

func TestResume_RestoresZeroMinScore(t *testing.T) {
	storage := NewMockGistStorage()
	store := NewStateStore(zap.NewNop(), storage, "tracker_state.json")

	// An operator can legitimately run with no score threshold.
	if err := store.Save(context.Background(), TrackerSettings{MinScore: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr := newTestRegistry(NewMockProvider(), nil, store, false)
	tr.Resume(context.Background())

	if minScore, _ := tr.Settings(); minScore != 0 {
		t.Errorf("expected persisted minScore 0 restored, got %d", minScore)
	}
}

func TestResume_NoPersistedState(t *testing.T) {
	storage := NewMockGistStorage()
	store := NewStateStore(zap.NewNop(), storage, "tracker_state.json")
	tr := newTestRegistry(NewMockProvider(), nil, store, false)

	tr.Resume(context.Background())
	time.Sleep(20 * time.Millisecond)

	if active := tr.ActiveCategories(); len(active) != 0 {
		t.Errorf("expected nothing resumed, got %v", active)
	}
}

func TestSnapshot_CoversAllCategories(t *testing.T) {
	tr := newTestRegistry(NewMockProvider(), nil, nil, false)

	snaps := tr.Snapshot()
	if len(snaps) != len(Categories) {
		t.Fatalf("expected %d snapshots, got %d", len(Categories), len(snaps))
	}
	for i, snap := range snaps {
		if snap.Category.ID != Categories[i].ID {
			t.Errorf("snapshot order mismatch at %d: %q", i, snap.Category.ID)
		}
		if snap.IsActive {
			t.Errorf("category %q should start inactive", snap.Category.ID)
		}
	}
}

func TestComputeStats(t *testing.T) {
	events := []WhaleEvent{
		{WhaleScore: 80, BetSize: 6000},
		{WhaleScore: 90, BetSize: 10000},
	}

	stats := computeStats(events)
	if stats.Count != 2 {
		t.Errorf("expected count 2, got %d", stats.Count)
	}
	if stats.AvgScore != 85 {
		t.Errorf("expected avg score 85, got %f", stats.AvgScore)
	}
	if stats.VolumeUSD != 16000 {
		t.Errorf("expected volume 16000, got %f", stats.VolumeUSD)
	}

	empty := computeStats(nil)
	if empty.Count != 0 || empty.AvgScore != 0 {
		t.Errorf("unexpected stats for no events: %+v", empty)
	}
}
