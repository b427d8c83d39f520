package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is one trade made by a tracked source wallet, as delivered by
// the trade-detection collaborator. Delivery is at-least-once.
type TradeEvent struct {
	SourceWallet      string          `json:"source_wallet"`
	SourceTradeHash   string          `json:"source_trade_hash"`
	MarketConditionID string          `json:"market_condition_id"`
	MarketTitle       string          `json:"market_title"`
	Side              Side            `json:"side"`
	Size              decimal.Decimal `json:"size"`
	Price             decimal.Decimal `json:"price"`
	Slug              string          `json:"slug,omitempty"`
	DetectedAt        time.Time       `json:"detected_at,omitempty"`
}

// Validate checks required fields and normalizes the wallet and side in place.
func (e *TradeEvent) Validate() error {
	e.SourceWallet = NormalizeWallet(e.SourceWallet)
	e.SourceTradeHash = strings.TrimSpace(e.SourceTradeHash)
	e.MarketConditionID = strings.TrimSpace(e.MarketConditionID)

	if e.SourceWallet == "" {
		return fmt.Errorf("%w: source_wallet is required", ErrInvalidEvent)
	}
	if e.SourceTradeHash == "" {
		return fmt.Errorf("%w: source_trade_hash is required", ErrInvalidEvent)
	}
	if e.MarketConditionID == "" {
		return fmt.Errorf("%w: market_condition_id is required", ErrInvalidEvent)
	}
	side, err := ParseSide(string(e.Side))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	e.Side = side
	if !e.Size.IsPositive() {
		return fmt.Errorf("%w: size must be positive", ErrInvalidEvent)
	}
	if !e.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidEvent)
	}
	return nil
}
