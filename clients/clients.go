package clients

import (
	"whalewatch/clients/discord"
	"whalewatch/clients/gist"
	"whalewatch/clients/newsfeed"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/clients/polymarketevents"
	"whalewatch/clients/telegram"
	"whalewatch/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord          *discord.DiscordClient
	Telegram         *telegram.TelegramClient
	Notifier         notifier.Notifier // Combined notifier for all channels
	Polymarket       *polymarketapi.PolymarketApiClient
	PolymarketEvents *polymarketevents.PolymarketEventsClient
	Gist             *gist.Client
	News             *newsfeed.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	// Create combined notifier for all channels
	multiNotifier := notifier.NewMultiNotifier(discordClient, telegramClient)

	c := &Clients{
		Logger:     logger,
		Discord:    discordClient,
		Telegram:   telegramClient,
		Notifier:   multiNotifier,
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
		Gist:       gist.NewClient(logger, cfg),
	}

	// Only create WebSocket client if configured to use it
	if cfg.LiveEvents.Enabled {
		c.PolymarketEvents = polymarketevents.NewPolymarketEventsClient(logger)
	}

	if cfg.News.Enabled {
		c.News = newsfeed.NewClient(logger, cfg)
	}

	return c
}
