package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool

	// Discord
	Discord DiscordConfig

	// Telegram
	Telegram TelegramConfig

	// Whale tracking
	Tracker TrackerConfig

	// Market scanning
	Scanner ScannerConfig

	// Wallet scoring
	Scorer ScorerConfig

	// Polymarket API
	Polymarket PolymarketConfig

	// Live trade events over WebSocket
	LiveEvents LiveEventsConfig

	// News headline polling
	News NewsConfig

	// GitHub Gist persistence
	Gist GistConfig

	// Dashboard JSON server
	Dashboard DashboardConfig
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string
	ProdChannelID string
	BetaChannelID string
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string
	ProdChatID string
	BetaChatID string
}

// TrackerConfig holds per-category whale tracker configuration.
type TrackerConfig struct {
	ScanInterval time.Duration // recurring scan cadence per category
	MinScanGap   time.Duration // minimum gap between two scans of one category
	MinScore     int           // default whale score threshold for alerts
	AutoTrade    bool          // log-only copy intent for top-scoring whales
	ResumeDelay  time.Duration // delay before resuming persisted trackers at boot
	StateFile    string        // filename for the persisted settings record
}

// ScannerConfig holds whale scan pipeline configuration.
type ScannerConfig struct {
	MarketLimit   int // open markets fetched per scan
	BatchSize     int // markets fetched concurrently per batch
	ActivityLimit int // trades fetched per market
}

// ScorerConfig holds wallet scoring configuration.
type ScorerConfig struct {
	CacheTTL     time.Duration // per-wallet score cache validity
	HistoryLimit int           // wallet trades fetched for scoring
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL      string
	DataAPIURL       string
	RequestTimeout   time.Duration
	ResponseCacheTTL time.Duration
}

// LiveEventsConfig holds WebSocket live-trade configuration.
type LiveEventsConfig struct {
	Enabled bool
}

// NewsConfig holds news headline polling configuration.
type NewsConfig struct {
	Enabled      bool
	Feeds        []string
	PollInterval time.Duration
	MaxHeadlines int
}

// GistConfig holds GitHub Gist configuration.
type GistConfig struct {
	Token  string
	GistID string
}

// DashboardConfig holds dashboard server configuration.
type DashboardConfig struct {
	Enabled bool
	Port    int
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd:   false,
		Discord:  DiscordConfig{},
		Telegram: TelegramConfig{},
		Tracker: TrackerConfig{
			ScanInterval: 30 * time.Second,
			MinScanGap:   5 * time.Second,
			MinScore:     75,
			AutoTrade:    false,
			ResumeDelay:  2 * time.Second,
			StateFile:    "tracker_state.json",
		},
		Scanner: ScannerConfig{
			MarketLimit:   100,
			BatchSize:     10,
			ActivityLimit: 100,
		},
		Scorer: ScorerConfig{
			CacheTTL:     5 * time.Minute,
			HistoryLimit: 100,
		},
		Polymarket: PolymarketConfig{
			GammaAPIURL:      "https://gamma-api.polymarket.com",
			DataAPIURL:       "https://data-api.polymarket.com",
			RequestTimeout:   15 * time.Second,
			ResponseCacheTTL: 30 * time.Second,
		},
		LiveEvents: LiveEventsConfig{Enabled: false},
		News: NewsConfig{
			Enabled:      false,
			PollInterval: 2 * time.Minute,
			MaxHeadlines: 20,
		},
		Gist: GistConfig{},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
		},

		Tracker: TrackerConfig{
			ScanInterval: envDuration("TRACKER_SCAN_INTERVAL", 30*time.Second),
			MinScanGap:   envDuration("TRACKER_MIN_SCAN_GAP", 5*time.Second),
			MinScore:     envInt("TRACKER_MIN_SCORE", 75),
			AutoTrade:    envBoolDefault("TRACKER_AUTO_TRADE", false),
			ResumeDelay:  envDuration("TRACKER_RESUME_DELAY", 2*time.Second),
			StateFile:    envString("TRACKER_STATE_FILE", "tracker_state.json"),
		},

		Scanner: ScannerConfig{
			MarketLimit:   envInt("SCANNER_MARKET_LIMIT", 100),
			BatchSize:     envInt("SCANNER_BATCH_SIZE", 10),
			ActivityLimit: envInt("SCANNER_ACTIVITY_LIMIT", 100),
		},

		Scorer: ScorerConfig{
			CacheTTL:     envDuration("SCORER_CACHE_TTL", 5*time.Minute),
			HistoryLimit: envInt("SCORER_HISTORY_LIMIT", 100),
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL:      envString("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
			DataAPIURL:       envString("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
			RequestTimeout:   envDuration("POLYMARKET_REQUEST_TIMEOUT", 15*time.Second),
			ResponseCacheTTL: envDuration("POLYMARKET_RESPONSE_CACHE_TTL", 30*time.Second),
		},

		LiveEvents: LiveEventsConfig{
			Enabled: envBoolDefault("LIVE_EVENTS_ENABLED", false),
		},

		News: NewsConfig{
			Enabled:      envBoolDefault("NEWS_ENABLED", false),
			Feeds:        envStringSlice("NEWS_FEEDS"),
			PollInterval: envDuration("NEWS_POLL_INTERVAL", 2*time.Minute),
			MaxHeadlines: envInt("NEWS_MAX_HEADLINES", 20),
		},

		Gist: GistConfig{
			Token:  envString("GITHUB_TOKEN", ""),
			GistID: envString("STATE_GIST_ID", ""),
		},

		Dashboard: DashboardConfig{
			Enabled: envBoolDefault("DASHBOARD_ENABLED", true),
			Port:    envInt("DASHBOARD_PORT", 8080),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
