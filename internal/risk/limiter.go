// Package risk implements the per-subscriber sizing and spend-cap rules
// applied before a mirrored order is submitted.
//
// A subscriber mirrors a fixed percentage of each source trade. The result
// is clamped to the account's per-order cap, and the order is rejected when
// it would push the day's confirmed notional past the daily limit.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

var (
	// ErrDailyLimitExceeded is returned when an order would push the day's
	// confirmed notional beyond the account's daily limit.
	ErrDailyLimitExceeded = errors.New("risk: daily limit exceeded")

	// ErrNonPositiveSize is returned when sizing produces nothing to submit.
	ErrNonPositiveSize = errors.New("risk: proposed size is not positive")
)

var hundred = decimal.NewFromInt(100)

// Size computes the mirrored order size for one subscriber:
//
//	proposed = sourceSize * copyPercentage / 100
//
// clamped to MaxTradeSize when the account sets one.
func Size(sourceSize decimal.Decimal, acct *model.TradingAccount) decimal.Decimal {
	proposed := sourceSize.Mul(acct.CopyPercentage).Div(hundred)
	if acct.MaxTradeSize.Valid && proposed.GreaterThan(acct.MaxTradeSize.Decimal) {
		proposed = acct.MaxTradeSize.Decimal
	}
	return proposed
}

// CheckDailyLimit validates a proposed order against the daily cap.
//
// Parameters:
//   - alreadyToday: confirmed notional already copied in the current day
//   - proposed: size of the order about to be submitted
//   - limit: the account's daily limit; an invalid NullDecimal means no cap
//
// Landing exactly on the limit is allowed.
func CheckDailyLimit(alreadyToday, proposed decimal.Decimal, limit decimal.NullDecimal) error {
	if !proposed.IsPositive() {
		return ErrNonPositiveSize
	}
	if !limit.Valid {
		return nil
	}
	if alreadyToday.Add(proposed).GreaterThan(limit.Decimal) {
		return ErrDailyLimitExceeded
	}
	return nil
}
