package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
)

// MockProvider is an in-memory MarketDataProvider for testing.
type MockProvider struct {
	mu sync.Mutex

	markets   []polymarketapi.Market
	activity  map[string][]polymarketapi.Trade // conditionID -> trades
	history   map[string][]polymarketapi.Trade // wallet -> trades
	positions map[string][]polymarketapi.Position

	marketsErr  error
	historyErr  error
	activityErr map[string]error

	listCalls     int
	activityCalls int
	historyCalls  int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		activity:    make(map[string][]polymarketapi.Trade),
		history:     make(map[string][]polymarketapi.Trade),
		positions:   make(map[string][]polymarketapi.Position),
		activityErr: make(map[string]error),
	}
}

func (m *MockProvider) ListOpenMarkets(ctx context.Context, tagSlug string, limit int) ([]polymarketapi.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.marketsErr != nil {
		return nil, m.marketsErr
	}
	return m.markets, nil
}

func (m *MockProvider) GetMarketActivity(ctx context.Context, conditionID string, limit int) ([]polymarketapi.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activityCalls++
	if err := m.activityErr[conditionID]; err != nil {
		return nil, err
	}
	return m.activity[conditionID], nil
}

func (m *MockProvider) GetWalletHistory(ctx context.Context, wallet string, limit int) ([]polymarketapi.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history[wallet], nil
}

func (m *MockProvider) GetWalletPositions(ctx context.Context, wallet string) ([]polymarketapi.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[wallet], nil
}

func (m *MockProvider) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *MockProvider) ActivityCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activityCalls
}

func (m *MockProvider) HistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls
}

// richHistory populates a wallet with history and resolved positions
// that produce a high score (large bets, high volume, strong win rate).
func (m *MockProvider) richHistory(wallet string) {
	var trades []polymarketapi.Trade
	var positions []polymarketapi.Position
	for i := 0; i < 50; i++ {
		cid := fmt.Sprintf("cond-%s-%d", wallet, i)
		trades = append(trades, polymarketapi.Trade{
			ProxyWallet: wallet,
			ConditionID: cid,
			UsdcSize:    20000,
			Timestamp:   int64(1700000000 + i),
		})
		positions = append(positions, polymarketapi.Position{
			ProxyWallet: wallet,
			ConditionID: cid,
			CashPnl:     150,
			Redeemable:  true,
		})
	}
	m.history[wallet] = trades
	m.positions[wallet] = positions
}

// MockGistStorage is an in-memory gist.Storage for testing.
type MockGistStorage struct {
	mu      sync.RWMutex
	files   map[string]string
	enabled bool
	loadErr error
	saveErr error
}

func NewMockGistStorage() *MockGistStorage {
	return &MockGistStorage{
		files:   make(map[string]string),
		enabled: true,
	}
}

func (m *MockGistStorage) IsEnabled() bool {
	return m.enabled
}

func (m *MockGistStorage) LoadJSON(ctx context.Context, filename string, dest any) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	m.mu.RLock()
	content := m.files[filename]
	m.mu.RUnlock()
	if content == "" {
		return fmt.Errorf("file %q not found", filename)
	}
	return json.Unmarshal([]byte(content), dest)
}

func (m *MockGistStorage) SaveJSON(ctx context.Context, filename string, data any) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filename] = string(jsonData)
	return nil
}

func (m *MockGistStorage) GetContent(filename string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filename]
}

// MockNotifier records whale alerts for assertions.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []notifier.WhaleAlert
}

func (m *MockNotifier) SendWhaleAlert(alert notifier.WhaleAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *MockNotifier) Close() error { return nil }

func (m *MockNotifier) Alerts() []notifier.WhaleAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifier.WhaleAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
