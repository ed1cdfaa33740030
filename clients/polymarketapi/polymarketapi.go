package polymarketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"whalewatch/config"

	"go.uber.org/zap"
)

// PolymarketApiClient fetches market, trade and wallet data from the
// Gamma and Data APIs. Successful GET responses are cached per URL for
// a short TTL to keep repeated scans off the rate limiter.
type PolymarketApiClient struct {
	logger       *zap.Logger
	httpClient   *http.Client
	gammaBaseURL string
	dataBaseURL  string

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cache    map[string]cacheEntry
}

type cacheEntry struct {
	body      []byte
	fetchedAt time.Time
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Polymarket.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		gammaBaseURL: cfg.Polymarket.GammaAPIURL,
		dataBaseURL:  cfg.Polymarket.DataAPIURL,
		cacheTTL:     cfg.Polymarket.ResponseCacheTTL,
		cache:        make(map[string]cacheEntry),
	}
}

// ---- Gamma API types ----

type GammaEvent struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

// Market is an immutable snapshot of a Gamma market, fetched per scan.
type Market struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Question     string          `json:"question"`
	ConditionID  string          `json:"conditionId"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`

	Volume24hr float64 `json:"volume24hr"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`
}

// GetTokenIDs parses the ClobTokenIDs field and returns the token IDs.
// The Gamma API serves this either as a direct array or as a JSON
// string containing an array.
func (m *Market) GetTokenIDs() []string {
	if len(m.ClobTokenIDs) == 0 {
		return nil
	}

	var tokenIDs []string
	if err := json.Unmarshal(m.ClobTokenIDs, &tokenIDs); err == nil && len(tokenIDs) > 0 {
		if len(tokenIDs) == 1 && len(tokenIDs[0]) > 0 && tokenIDs[0][0] == '[' {
			var nested []string
			if err := json.Unmarshal([]byte(tokenIDs[0]), &nested); err == nil && len(nested) > 0 {
				return nested
			}
		}
		return tokenIDs
	}

	var jsonStr string
	if err := json.Unmarshal(m.ClobTokenIDs, &jsonStr); err == nil && jsonStr != "" {
		var inner []string
		if err := json.Unmarshal([]byte(jsonStr), &inner); err == nil && len(inner) > 0 {
			return inner
		}
	}

	return nil
}

// ---- Data API types ----

// Trade represents a trade from the data API, sourced either per
// market (activity) or per wallet (history).
type Trade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, ...
	Side            string  `json:"side"` // BUY or SELL
	Outcome         string  `json:"outcome"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	UsdcSize        float64 `json:"usdcSize"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`

	// Market metadata
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// Notional returns the USD size of the trade. Some endpoints populate
// usdcSize, others only size and price.
func (t *Trade) Notional() float64 {
	if t.UsdcSize > 0 {
		return t.UsdcSize
	}
	return t.Size * t.Price
}

// Position represents a wallet position from the data API. Redeemable
// positions belong to resolved markets; CashPnl is the realized result.
type Position struct {
	ProxyWallet string  `json:"proxyWallet"`
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CashPnl     float64 `json:"cashPnl"`
	CurPrice    float64 `json:"curPrice"`
	Redeemable  bool    `json:"redeemable"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
}

// ListOpenMarkets fetches up to limit open markets. When tagSlug is
// non-empty the Gamma events endpoint filters server-side by category
// tag; markets are flattened out of their events and deduped by
// condition ID.
func (c *PolymarketApiClient) ListOpenMarkets(
	ctx context.Context,
	tagSlug string,
	limit int,
) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}

	if tagSlug == "" {
		u, err := url.Parse(c.gammaBaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
		}
		u.Path = "/markets"

		q := u.Query()
		q.Set("limit", fmt.Sprintf("%d", limit))
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("order", "volume24hr")
		q.Set("ascending", "false")
		u.RawQuery = q.Encode()

		var markets []Market
		if err := c.doGet(ctx, u.String(), &markets); err != nil {
			return nil, fmt.Errorf("list open markets: %w", err)
		}
		return filterOpen(markets, limit), nil
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/events"

	q := u.Query()
	q.Set("tag_slug", tagSlug)
	q.Set("active", "true")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	var events []GammaEvent
	if err := c.doGet(ctx, u.String(), &events); err != nil {
		return nil, fmt.Errorf("list open markets by tag: %w", err)
	}

	seen := make(map[string]bool)
	var markets []Market
	for _, ev := range events {
		for _, m := range ev.Markets {
			if m.ConditionID == "" || seen[m.ConditionID] {
				continue
			}
			seen[m.ConditionID] = true
			markets = append(markets, m)
		}
	}
	return filterOpen(markets, limit), nil
}

func filterOpen(markets []Market, limit int) []Market {
	open := make([]Market, 0, len(markets))
	for _, m := range markets {
		if m.ConditionID == "" || m.Closed || !m.Active {
			continue
		}
		open = append(open, m)
	}
	if len(open) > limit {
		open = open[:limit]
	}
	return open
}

// GetMarketActivity fetches recent trades for a market condition ID.
func (c *PolymarketApiClient) GetMarketActivity(
	ctx context.Context,
	conditionID string,
	limit int,
) ([]Trade, error) {
	conditionID = strings.TrimSpace(conditionID)
	if conditionID == "" {
		return nil, fmt.Errorf("conditionID is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	q.Set("market", conditionID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGet(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get market activity: %w", err)
	}

	return trades, nil
}

// GetWalletHistory fetches a wallet's trade history, filtered to
// actual trades (the activity endpoint also reports splits, merges,
// redeems and rewards).
func (c *PolymarketApiClient) GetWalletHistory(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Trade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/activity"

	q := u.Query()
	q.Set("user", wallet)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var activity []Trade
	if err := c.doGet(ctx, u.String(), &activity); err != nil {
		return nil, fmt.Errorf("get wallet history: %w", err)
	}

	trades := make([]Trade, 0, len(activity))
	for _, a := range activity {
		if a.Type == "" || a.Type == "TRADE" {
			trades = append(trades, a)
		}
	}
	return trades, nil
}

// GetWalletPositions fetches all positions for a wallet address.
func (c *PolymarketApiClient) GetWalletPositions(
	ctx context.Context,
	wallet string,
) ([]Position, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/positions"

	q := u.Query()
	q.Set("user", wallet)
	q.Set("sizeThreshold", "0")
	u.RawQuery = q.Encode()

	var positions []Position
	if err := c.doGet(ctx, u.String(), &positions); err != nil {
		return nil, fmt.Errorf("get wallet positions: %w", err)
	}

	return positions, nil
}

// CacheSize returns the number of cached responses.
func (c *PolymarketApiClient) CacheSize() int {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return len(c.cache)
}

// doGet performs a GET request and decodes the JSON response, serving
// from the response cache when a fresh entry exists for the URL.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string, dest any) error {
	if body, ok := c.cachedBody(url); ok {
		return json.Unmarshal(body, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	c.storeBody(url, body)
	return nil
}

func (c *PolymarketApiClient) cachedBody(url string) ([]byte, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.cache[url]
	if !ok || time.Since(entry.fetchedAt) >= c.cacheTTL {
		return nil, false
	}
	c.logger.Debug("response cache hit", zap.String("url", url))
	return entry.body, true
}

func (c *PolymarketApiClient) storeBody(url string, body []byte) {
	if c.cacheTTL <= 0 {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	// Drop expired entries opportunistically so the map stays bounded.
	for k, e := range c.cache {
		if time.Since(e.fetchedAt) >= c.cacheTTL {
			delete(c.cache, k)
		}
	}
	c.cache[url] = cacheEntry{body: body, fetchedAt: time.Now()}
}
