package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Ledger reads are never
// cached: limit enforcement needs the exact confirmed volume.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// cachedAccount carries the credentials that model.TradingAccount hides
// from JSON.
type cachedAccount struct {
	model.TradingAccount
	Credentials string `json:"credentials"`
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := s.primary.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletSubsKey(sub.SourceWallet))
	return nil
}

func (s *CachedStore) DeleteSubscription(ctx context.Context, userID, wallet string) error {
	if err := s.primary.DeleteSubscription(ctx, userID, wallet); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletSubsKey(wallet))
	return nil
}

func (s *CachedStore) SaveAccount(ctx context.Context, acct *model.TradingAccount) (*model.TradingAccount, error) {
	saved, err := s.primary.SaveAccount(ctx, acct)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, accountKey(acct.UserID))
	return saved, nil
}

func (s *CachedStore) UpdateAccountSettings(ctx context.Context, userID string, patch model.SettingsPatch, now time.Time) (*model.TradingAccount, error) {
	acct, err := s.primary.UpdateAccountSettings(ctx, userID, patch, now)
	if err != nil {
		return nil, err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, accountKey(userID))
	return acct, nil
}

func (s *CachedStore) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.primary.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(userID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.TradingAccount, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var c cachedAccount
		if json.Unmarshal(data, &c) == nil {
			acct := c.TradingAccount
			acct.EncryptedCredentials = c.Credentials
			return &acct, nil
		}
	}

	// Cache miss: read from primary.
	acct, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cachedAccount{TradingAccount: *acct, Credentials: acct.EncryptedCredentials}); err == nil {
		s.rdb.Set(ctx, accountKey(userID), data, s.ttl)
	}
	return acct, nil
}

func (s *CachedStore) ListSubscriptionsByWallet(ctx context.Context, wallet string) ([]model.Subscription, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, walletSubsKey(wallet)).Bytes()
	if err == nil {
		var subs []model.Subscription
		if json.Unmarshal(data, &subs) == nil {
			return subs, nil
		}
	}

	// Cache miss.
	subs, err := s.primary.ListSubscriptionsByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(subs); err == nil {
		s.rdb.Set(ctx, walletSubsKey(wallet), data, s.ttl)
	}
	return subs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	return s.primary.ListSubscriptionsByUser(ctx, userID)
}

func (s *CachedStore) InsertCopyTrade(ctx context.Context, rec *model.CopyTradeRecord) (int64, error) {
	return s.primary.InsertCopyTrade(ctx, rec)
}

func (s *CachedStore) UpdateCopyTradeStatus(ctx context.Context, id int64, upd model.StatusUpdate) error {
	return s.primary.UpdateCopyTradeStatus(ctx, id, upd)
}

func (s *CachedStore) ListCopyTrades(ctx context.Context, userID string, limit int) ([]model.CopyTradeRecord, error) {
	return s.primary.ListCopyTrades(ctx, userID, limit)
}

func (s *CachedStore) FindCopyTrade(ctx context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error) {
	return s.primary.FindCopyTrade(ctx, userID, sourceTradeHash)
}

func (s *CachedStore) SumConfirmedVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	return s.primary.SumConfirmedVolume(ctx, userID, from, to)
}

func (s *CachedStore) SumPendingVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	return s.primary.SumPendingVolume(ctx, userID, from, to)
}

func (s *CachedStore) CountCopyTradesByStatus(ctx context.Context, userID string, from, to time.Time) (map[model.Status]int, error) {
	return s.primary.CountCopyTradesByStatus(ctx, userID, from, to)
}

// --- Cache helpers ---

func accountKey(uid string) string      { return fmt.Sprintf("copytrade:account:%s", uid) }
func walletSubsKey(wallet string) string { return fmt.Sprintf("copytrade:wallet-subs:%s", wallet) }
