package notifier

import (
	"time"
)

// WhaleAlert contains all the data needed for a whale alert notification.
type WhaleAlert struct {
	// Wallet info
	WalletAddress string
	WalletURL     string
	Score         int

	// Trade info
	Side     string // BUY or SELL
	Outcome  string
	Shares   float64
	Price    float64
	Notional float64

	// Market info
	MarketTitle string
	MarketURL   string
	ConditionID string
	Category    string

	// Wallet quality metrics behind the score
	WinRate     float64
	AvgBetSize  float64
	TotalVolume float64
	TradeCount  int

	// Alert metadata
	TransactionHash string
	Timestamp       time.Time
}

// Notifier is the interface for sending whale alerts to various channels.
type Notifier interface {
	// SendWhaleAlert sends a whale alert notification.
	SendWhaleAlert(alert WhaleAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendWhaleAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendWhaleAlert(alert WhaleAlert) {
	for _, n := range m.notifiers {
		n.SendWhaleAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
