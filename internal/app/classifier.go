package app

import (
	"strings"
)

// Category is a topical market grouping with an independent tracker.
type Category struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	TagSlug string `json:"tagSlug,omitempty"` // server-side filter slug, empty when keyword-only
}

// Categories is the fixed set of tracked categories.
var Categories = []Category{
	{ID: "politics", Label: "Politics", TagSlug: "politics"},
	{ID: "crypto", Label: "Crypto", TagSlug: "crypto"},
	{ID: "pop-culture", Label: "Pop Culture", TagSlug: "pop-culture"},
	{ID: "sports", Label: "Sports", TagSlug: "sports"},
	{ID: "business", Label: "Business", TagSlug: "business"},
	{ID: "science", Label: "Science", TagSlug: ""},
}

// categoryKeywords drives the keyword fallback when server-side
// category filtering is unavailable. Substring matching against the
// market question is an approximation; false positives and negatives
// are expected and acceptable.
var categoryKeywords = map[string][]string{
	"politics": {
		"president", "congress", "senate", "house", "election", "vote",
		"trump", "biden", "government", "governor", "mayor", "ballot",
		"republican", "democrat", "gop", "white house", "primary",
		"nominee", "poll", "candidate", "impeach",
	},
	"crypto": {
		"bitcoin", "btc", "ethereum", "eth", "crypto", "token",
		"blockchain", "defi", "nft", "altcoin", "stablecoin", "solana",
		"dogecoin", "binance", "coinbase", "xrp",
	},
	"pop-culture": {
		"movie", "film", "oscars", "grammy", "emmys", "celebrity",
		"music", "album", "tour", "tv show", "streaming", "netflix",
		"disney", "marvel", "box office", "viral", "tiktok", "taylor swift",
	},
	"sports": {
		"nfl", "nba", "mlb", "nhl", "soccer", "football", "basketball",
		"baseball", "hockey", "super bowl", "world series", "world cup",
		"championship", "playoffs", "finals", "mvp", "olympics", "ufc",
	},
	"business": {
		"stock", "nasdaq", "dow", "s&p", "ipo", "merger", "acquisition",
		"earnings", "revenue", "fed", "interest rate", "inflation",
		"gdp", "recession", "unemployment", "ceo", "wall street",
	},
	"science": {
		"nasa", "spacex", "launch", "rocket", "mars", "moon", "vaccine",
		"fda", "climate", "hurricane", "temperature", "ai model",
		"nobel", "fusion", "quantum", "asteroid",
	},
}

// KnownCategory reports whether id names a tracked category.
func KnownCategory(id string) bool {
	return CategoryByID(id) != nil
}

// CategoryByID looks up a tracked category by ID.
func CategoryByID(id string) *Category {
	for i := range Categories {
		if Categories[i].ID == id {
			return &Categories[i]
		}
	}
	return nil
}

// Classify assigns a market question to zero or more categories via
// case-insensitive keyword matching. A question matching nothing
// belongs to no keyword-filtered category view.
func Classify(question string) []string {
	q := strings.ToLower(question)
	if q == "" {
		return nil
	}

	var matched []string
	for _, cat := range Categories {
		for _, kw := range categoryKeywords[cat.ID] {
			if strings.Contains(q, kw) {
				matched = append(matched, cat.ID)
				break
			}
		}
	}
	return matched
}

// MatchesCategory reports whether a market question belongs to the
// given category under keyword classification.
func MatchesCategory(question, categoryID string) bool {
	q := strings.ToLower(question)
	for _, kw := range categoryKeywords[categoryID] {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
