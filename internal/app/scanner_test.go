package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"whalewatch/clients/polymarketapi"

	"go.uber.org/zap"
)

func newTestScanner(provider *MockProvider) *WhaleScanner {
	scorer := NewWhaleScorer(zap.NewNop(), provider, 5*time.Minute, 100)
	return NewWhaleScanner(zap.NewNop(), provider, scorer, 100, 10, 100)
}

func TestScan_DetectsWhaleBet(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?", Active: true},
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

	events, err := newTestScanner(provider).Scan(context.Background(), "", 75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 whale event, got %d", len(events))
	}

	e := events[0]
	if e.Wallet != "0xWHALE" {
		t.Errorf("unexpected wallet %q", e.Wallet)
	}
	if e.BetSize != 6000 {
		t.Errorf("unexpected bet size %f", e.BetSize)
	}
	if e.Market != "Will BTC hit 100k?" {
		t.Errorf("expected fallback to market question, got %q", e.Market)
	}
	if e.WhaleScore < 75 {
		t.Errorf("expected score >= 75, got %d", e.WhaleScore)
	}
}

func TestScan_RaisedMinScoreExcludesMidWallet(t *testing.T) {
	provider := NewMockProvider()
	// 50 large trades, half the resolved markets won: lands at 75.
	var trades []polymarketapi.Trade
	var positions []polymarketapi.Position
	for i := 0; i < 50; i++ {
		cid := fmt.Sprintf("hist-%d", i)
		trades = append(trades, polymarketapi.Trade{
			ProxyWallet: "0xMID",
			ConditionID: cid,
			UsdcSize:    20000,
			Timestamp:   int64(1700000000 + i),
		})
		pnl := 100.0
		if i%2 == 1 {
			pnl = -100.0
		}
		positions = append(positions, polymarketapi.Position{
			ProxyWallet: "0xMID",
			ConditionID: cid,
			CashPnl:     pnl,
			Redeemable:  true,
		})
	}
	provider.history["0xMID"] = trades
	provider.positions["0xMID"] = positions
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xMID", ConditionID: "m1", UsdcSize: 6000, TransactionHash: "0xA"},
	}

	scanner := newTestScanner(provider)

	events, err := scanner.Scan(context.Background(), "", 75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event at threshold 75, got %d", len(events))
	}
	if events[0].WhaleScore != 75 {
		t.Errorf("expected score 75, got %d", events[0].WhaleScore)
	}

	events, err = scanner.Scan(context.Background(), "", 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events at threshold 90, got %d", len(events))
	}
}

func TestScan_MinScoreFiltersOut(t *testing.T) {
	provider := NewMockProvider()
	// No history recorded: the wallet scores 0.
	provider.history["0xNEW"] = nil
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xNEW", ConditionID: "m1", UsdcSize: 9000, TransactionHash: "0xA"},
	}

	events, err := newTestScanner(provider).Scan(context.Background(), "", 75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected low-score wallet filtered out, got %d events", len(events))
	}
}

func TestScan_BelowThresholdIgnored(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m1", UsdcSize: 4000, TransactionHash: "0xA"},
	}

	events, err := newTestScanner(provider).Scan(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("sub-threshold trade must never surface, got %d events", len(events))
	}
	// The wallet was never worth scoring.
	if provider.HistoryCalls() != 0 {
		t.Errorf("expected no wallet fetches, got %d", provider.HistoryCalls())
	}
}

func TestScan_FailedMarketSkipped(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "bad", Question: "Broken market"},
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activityErr["bad"] = errors.New("upstream 500")
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m1", UsdcSize: 6000, TransactionHash: "0xA"},
	}

	events, err := newTestScanner(provider).Scan(context.Background(), "", 75)
	if err != nil {
		t.Fatalf("partial failure must not fail the scan: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event from the healthy market, got %d", len(events))
	}
	if events[0].ConditionID != "m1" {
		t.Errorf("unexpected event from %q", events[0].ConditionID)
	}
}

func TestScan_AllMarketsFailReturnsError(t *testing.T) {
	provider := NewMockProvider()
	provider.marketsErr = errors.New("gamma down")

	if _, err := newTestScanner(provider).Scan(context.Background(), "", 75); err == nil {
		t.Error("expected error when the market list is unavailable")
	}
}

func TestScan_UnknownCategory(t *testing.T) {
	provider := NewMockProvider()

	if _, err := newTestScanner(provider).Scan(context.Background(), "weather", 75); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestScan_KeywordFallbackCategory(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will SpaceX reach Mars by 2030?"},
		{ConditionID: "m2", Question: "Will the Lakers win tonight?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m1", UsdcSize: 6000, TransactionHash: "0xA"},
	}
	provider.activity["m2"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m2", UsdcSize: 7000, TransactionHash: "0xB"},
	}

	// Science has no server-side slug, so markets are keyword-filtered.
	events, err := newTestScanner(provider).Scan(context.Background(), "science", 75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the science market, got %d events", len(events))
	}
	if events[0].ConditionID != "m1" {
		t.Errorf("expected event from m1, got %q", events[0].ConditionID)
	}
	if events[0].Category != "science" {
		t.Errorf("expected category science, got %q", events[0].Category)
	}
}

func TestScan_KeywordFilterLeavesProviderSliceIntact(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	// Non-matching market first so an aliased filter would overwrite it.
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will the Lakers win tonight?"},
		{ConditionID: "m2", Question: "Will SpaceX reach Mars by 2030?"},
	}
	provider.activity["m2"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m2", UsdcSize: 6000, TransactionHash: "0xA"},
	}

	if _, err := newTestScanner(provider).Scan(context.Background(), "science", 75); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.markets[0].ConditionID != "m1" || provider.markets[1].ConditionID != "m2" {
		t.Errorf("provider market slice mutated by keyword filter: %+v", provider.markets)
	}
}

func TestScan_DedupesByTxHash(t *testing.T) {
	provider := NewMockProvider()
	provider.richHistory("0xWHALE")
	provider.markets = []polymarketapi.Market{
		{ConditionID: "m1", Question: "Will BTC hit 100k?"},
	}
	provider.activity["m1"] = []polymarketapi.Trade{
		{ProxyWallet: "0xWHALE", ConditionID: "m1", UsdcSize: 6000, Timestamp: 1, TransactionHash: "0xSAME"},
		{ProxyWallet: "0xWHALE", ConditionID: "m1", UsdcSize: 6000, Timestamp: 1, TransactionHash: "0xSAME"},
	}

	events, err := newTestScanner(provider).Scan(context.Background(), "", 75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected duplicate tx collapsed to 1 event, got %d", len(events))
	}
}

func TestRankEvents(t *testing.T) {
	events := []WhaleEvent{
		{WhaleScore: 80, Timestamp: 5, TxHash: "0xC"},
		{WhaleScore: 90, Timestamp: 1, TxHash: "0xA"},
		{WhaleScore: 80, Timestamp: 9, TxHash: "0xB"},
		{WhaleScore: 80, Timestamp: 5, TxHash: "0xA"},
	}

	rankEvents(events)

	wantHashes := []string{"0xA", "0xB", "0xA", "0xC"}
	wantScores := []int{90, 80, 80, 80}
	for i := range events {
		if events[i].WhaleScore != wantScores[i] || events[i].TxHash != wantHashes[i] {
			t.Fatalf("position %d: got score=%d hash=%s", i, events[i].WhaleScore, events[i].TxHash)
		}
	}
}

func TestDedupeByTxHash_KeepsHashless(t *testing.T) {
	events := []WhaleEvent{
		{TxHash: ""},
		{TxHash: ""},
		{TxHash: "0xA"},
		{TxHash: "0xA"},
	}

	out := dedupeByTxHash(events)
	if len(out) != 3 {
		t.Errorf("expected hashless events kept and hashed deduped, got %d", len(out))
	}
}
