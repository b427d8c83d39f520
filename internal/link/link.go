// Package link builds canonical market URLs for trades.
package link

import (
	"strings"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// BaseURL is the event page prefix on the venue.
const BaseURL = "https://polymarket.com/event/"

// Generate returns the market URL for slug, or "" when slug is blank.
func Generate(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}
	return BaseURL + slug
}

// ForEvent returns the market URL for a source trade.
func ForEvent(ev model.TradeEvent) string {
	return Generate(ev.Slug)
}
