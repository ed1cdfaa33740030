package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"whalewatch/clients/notifier"
	"whalewatch/config"

	"go.uber.org/zap"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// TelegramClient sends whale alerts to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	isProd   bool
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return &TelegramClient{
			logger: logger,
			chatID: chatID,
			isProd: cfg.IsProd,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		isProd:   cfg.IsProd,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendWhaleAlert sends a whale alert notification.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendWhaleAlert(alert notifier.WhaleAlert) {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return
	}

	message := tc.buildAlertMessage(alert)

	if err := tc.sendMessage(message); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram whale alert",
		zap.String("wallet", alert.WalletAddress),
		zap.String("market", alert.MarketTitle),
	)
}

func (tc *TelegramClient) buildAlertMessage(alert notifier.WhaleAlert) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(buildAlertTitle(alert))))

	// Market info
	if alert.MarketURL != "" {
		sb.WriteString(fmt.Sprintf("*Market:* [%s](%s)\n", escapeMarkdown(alert.MarketTitle), alert.MarketURL))
	} else {
		sb.WriteString(fmt.Sprintf("*Market:* %s\n", escapeMarkdown(alert.MarketTitle)))
	}
	if alert.Category != "" {
		sb.WriteString(fmt.Sprintf("*Category:* %s\n", escapeMarkdown(alert.Category)))
	}
	if alert.Outcome != "" {
		sb.WriteString(fmt.Sprintf("*Outcome:* %s\n", escapeMarkdown(alert.Outcome)))
	}
	sb.WriteString("\n")

	// Wallet info
	shortAddr := shortAddress(alert.WalletAddress)
	if alert.WalletURL != "" {
		sb.WriteString(fmt.Sprintf("*Whale:* [%s](%s)\n", escapeMarkdown(shortAddr), alert.WalletURL))
	} else {
		sb.WriteString(fmt.Sprintf("*Whale:* %s\n", escapeMarkdown(shortAddr)))
	}
	sb.WriteString(fmt.Sprintf("*Score:* %d/100\n", alert.Score))

	// Trade details
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		sideEmoji = "🔴"
	}
	sb.WriteString(fmt.Sprintf("*Side:* %s %s\n", sideEmoji, alert.Side))
	sb.WriteString(fmt.Sprintf("*Trade:* %.2f shares @ $%.3f\n", alert.Shares, alert.Price))
	sb.WriteString(fmt.Sprintf("*Notional:* $%.2f\n\n", alert.Notional))

	// Wallet quality metrics
	sb.WriteString(fmt.Sprintf("*Win Rate:* %.1f%%\n", alert.WinRate*100))
	sb.WriteString(fmt.Sprintf("*Avg Bet:* $%.0f\n", alert.AvgBetSize))
	sb.WriteString(fmt.Sprintf("*Volume:* $%.0f over %d trades\n", alert.TotalVolume, alert.TradeCount))

	// Timestamp
	pst, _ := time.LoadLocation("America/Los_Angeles")
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_whalewatch • %s_", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)")))

	return sb.String()
}

func buildAlertTitle(alert notifier.WhaleAlert) string {
	switch {
	case alert.Score >= 90:
		return "🐋 Elite Whale Bet"
	case alert.Notional >= 50000:
		return "🐋 Massive Whale Bet"
	default:
		return "🐋 Whale Bet Detected"
	}
}

func (tc *TelegramClient) sendMessage(text string) error {
	url := fmt.Sprintf(telegramAPIURL, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    tc.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
