// Package store defines the persistence interface for the copy-trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

var (
	ErrAccountNotFound   = errors.New("store: trading account not found")
	ErrTradeNotFound     = errors.New("store: copy trade not found")
	ErrDuplicateTrade    = errors.New("store: copy trade already recorded for this source trade")
	ErrInvalidTransition = errors.New("store: copy trade is not pending")
)

// SubscriptionStore persists subscriptions keyed by (userID, sourceWallet).
// Wallets are expected to be normalized by the caller.
type SubscriptionStore interface {
	// UpsertSubscription inserts or overwrites the mode of an existing pair.
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error

	// DeleteSubscription removes the pair. Deleting nothing is not an error.
	DeleteSubscription(ctx context.Context, userID, wallet string) error

	// ListSubscriptionsByUser returns a user's subscriptions.
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]model.Subscription, error)

	// ListSubscriptionsByWallet returns every subscriber of a source wallet.
	ListSubscriptionsByWallet(ctx context.Context, wallet string) ([]model.Subscription, error)
}

// AccountStore persists one trading account per user.
type AccountStore interface {
	// SaveAccount inserts acct, or overwrites only the address and
	// credentials when an account already exists. Returns the stored row.
	SaveAccount(ctx context.Context, acct *model.TradingAccount) (*model.TradingAccount, error)

	// GetAccount returns ErrAccountNotFound when absent.
	GetAccount(ctx context.Context, userID string) (*model.TradingAccount, error)

	// UpdateAccountSettings merges the present patch fields.
	UpdateAccountSettings(ctx context.Context, userID string, patch model.SettingsPatch, now time.Time) (*model.TradingAccount, error)

	// DeleteAccount is idempotent.
	DeleteAccount(ctx context.Context, userID string) error
}

// LedgerStore persists copy-trade records.
type LedgerStore interface {
	// InsertCopyTrade assigns rec.ID. Returns ErrDuplicateTrade when a record
	// for (UserID, SourceTradeHash) already exists.
	InsertCopyTrade(ctx context.Context, rec *model.CopyTradeRecord) (int64, error)

	// UpdateCopyTradeStatus moves a pending record to a terminal status.
	// Returns ErrTradeNotFound or ErrInvalidTransition.
	UpdateCopyTradeStatus(ctx context.Context, id int64, upd model.StatusUpdate) error

	// ListCopyTrades returns a user's records by id descending.
	ListCopyTrades(ctx context.Context, userID string, limit int) ([]model.CopyTradeRecord, error)

	// FindCopyTrade returns the record for (userID, sourceTradeHash), or
	// ErrTradeNotFound.
	FindCopyTrade(ctx context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error)

	// SumConfirmedVolume sums Size over executed records with a tx hash
	// created in [from, to).
	SumConfirmedVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)

	// SumPendingVolume sums Size over pending records created in [from, to).
	SumPendingVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)

	// CountCopyTradesByStatus counts a user's records created in [from, to).
	CountCopyTradesByStatus(ctx context.Context, userID string, from, to time.Time) (map[model.Status]int, error)
}

// Store is the full persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	SubscriptionStore
	AccountStore
	LedgerStore
}
