package newsfeed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"whalewatch/config"

	"go.uber.org/zap"
)

// Headline is a single news item from one of the configured feeds.
type Headline struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
}

// rssDocument is the minimal subset of RSS 2.0 we decode.
type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

// Client polls RSS feeds and keeps a bounded, deduped buffer of the
// most recent headlines for the dashboard.
type Client struct {
	logger       *zap.Logger
	httpClient   *http.Client
	feeds        []string
	pollInterval time.Duration
	maxHeadlines int

	mu        sync.RWMutex
	headlines []Headline
	seen      map[string]bool
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxHeadlines := cfg.News.MaxHeadlines
	if maxHeadlines <= 0 {
		maxHeadlines = 20
	}

	return &Client{
		logger:       logger,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		feeds:        cfg.News.Feeds,
		pollInterval: cfg.News.PollInterval,
		maxHeadlines: maxHeadlines,
		seen:         make(map[string]bool),
	}
}

// Run polls all configured feeds on a ticker until ctx is cancelled.
// An initial poll happens immediately so the dashboard is not empty
// for a full interval after boot.
func (c *Client) Run(ctx context.Context) {
	if len(c.feeds) == 0 {
		c.logger.Info("no news feeds configured, news poller idle")
		return
	}

	c.logger.Info("news poller started",
		zap.Int("feeds", len(c.feeds)),
		zap.Duration("interval", c.pollInterval),
	)

	c.PollOnce(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.PollOnce(ctx)
		case <-ctx.Done():
			c.logger.Info("news poller stopped")
			return
		}
	}
}

// PollOnce fetches every configured feed once. Failed feeds are logged
// and skipped so one broken source never empties the buffer.
func (c *Client) PollOnce(ctx context.Context) {
	for _, feedURL := range c.feeds {
		headlines, err := c.fetchFeed(ctx, feedURL)
		if err != nil {
			c.logger.Warn("news feed fetch failed",
				zap.String("feed", feedURL),
				zap.Error(err),
			)
			continue
		}
		c.addHeadlines(headlines)
	}
}

// Headlines returns the buffered headlines, newest first.
func (c *Client) Headlines() []Headline {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Headline, len(c.headlines))
	copy(out, c.headlines)
	return out
}

func (c *Client) fetchFeed(ctx context.Context, feedURL string) ([]Headline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}

	source := strings.TrimSpace(doc.Channel.Title)
	headlines := make([]Headline, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		headlines = append(headlines, Headline{
			Title:       title,
			Link:        strings.TrimSpace(item.Link),
			Source:      source,
			PublishedAt: parsePubDate(item.PubDate),
		})
	}
	return headlines, nil
}

// addHeadlines merges new items into the buffer, dropping duplicates
// by link (or title when the link is missing) and trimming to the
// newest maxHeadlines.
func (c *Client) addHeadlines(items []Headline) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, h := range items {
		key := h.Link
		if key == "" {
			key = h.Title
		}
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		c.headlines = append(c.headlines, h)
		added++
	}

	if added == 0 {
		return
	}

	sort.SliceStable(c.headlines, func(i, j int) bool {
		return c.headlines[i].PublishedAt.After(c.headlines[j].PublishedAt)
	})

	if len(c.headlines) > c.maxHeadlines {
		for _, dropped := range c.headlines[c.maxHeadlines:] {
			key := dropped.Link
			if key == "" {
				key = dropped.Title
			}
			delete(c.seen, key)
		}
		c.headlines = c.headlines[:c.maxHeadlines]
	}

	c.logger.Debug("news buffer updated",
		zap.Int("added", added),
		zap.Int("total", len(c.headlines)),
	)
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
