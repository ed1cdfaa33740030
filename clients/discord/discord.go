package discord

import (
	"fmt"
	"strings"
	"time"
	"whalewatch/clients/notifier"
	"whalewatch/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient sends whale alerts to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// SendWhaleAlert sends a rich embedded whale alert.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendWhaleAlert(alert notifier.WhaleAlert) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	embed := dc.buildWhaleEmbed(alert)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord whale alert",
		zap.String("wallet", alert.WalletAddress),
		zap.String("market", alert.MarketTitle),
	)
}

func (dc *DiscordClient) buildWhaleEmbed(alert notifier.WhaleAlert) *discordgo.MessageEmbed {
	// Choose color based on side
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	}

	title := buildAlertTitle(alert)

	// Make wallet address a clickable link to the profile
	walletDisplay := shortAddress(alert.WalletAddress)
	if alert.WalletURL != "" {
		walletDisplay = fmt.Sprintf("[%s](%s)", walletDisplay, alert.WalletURL)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Whale",
			Value:  walletDisplay,
			Inline: true,
		},
		{
			Name:   "Score",
			Value:  fmt.Sprintf("%d/100", alert.Score),
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  fmt.Sprintf("%s %s", sideEmoji, alert.Side),
			Inline: true,
		},
		{
			Name:   "Trade",
			Value:  fmt.Sprintf("%.2f shares @ $%.3f", alert.Shares, alert.Price),
			Inline: true,
		},
		{
			Name:   "Notional",
			Value:  fmt.Sprintf("$%.2f", alert.Notional),
			Inline: true,
		},
		{
			Name:   "Win Rate (resolved)",
			Value:  fmt.Sprintf("%.1f%%", alert.WinRate*100),
			Inline: true,
		},
		{
			Name:   "Avg Bet",
			Value:  fmt.Sprintf("$%.0f", alert.AvgBetSize),
			Inline: true,
		},
		{
			Name:   "Volume",
			Value:  fmt.Sprintf("$%.0f (%d trades)", alert.TotalVolume, alert.TradeCount),
			Inline: true,
		},
	}
	if alert.Category != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Category",
			Value:  alert.Category,
			Inline: true,
		})
	}

	description := fmt.Sprintf("**%s**", alert.MarketTitle)
	if alert.Outcome != "" {
		description += fmt.Sprintf("\nOutcome: %s", alert.Outcome)
	}

	pst, _ := time.LoadLocation("America/Los_Angeles")
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	footerText := fmt.Sprintf("whalewatch * %s", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       title,
		URL:         alert.MarketURL, // Makes title clickable
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
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

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
