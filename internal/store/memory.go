package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[subKey]*model.Subscription
	accounts      map[string]*model.TradingAccount
	ledger        []*model.CopyTradeRecord
	byID          map[int64]*model.CopyTradeRecord
	bySource      map[tradeKey]int64
	nextID        int64
}

type subKey struct{ userID, wallet string }

type tradeKey struct{ userID, hash string }

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[subKey]*model.Subscription),
		accounts:      make(map[string]*model.TradingAccount),
		byID:          make(map[int64]*model.CopyTradeRecord),
		bySource:      make(map[tradeKey]int64),
	}
}

// --- Subscriptions ---

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subKey{sub.UserID, sub.SourceWallet}
	if existing, ok := s.subscriptions[key]; ok {
		existing.Mode = sub.Mode
		existing.UpdatedAt = sub.UpdatedAt
		*sub = *existing
		return nil
	}
	copy := *sub
	s.subscriptions[key] = &copy
	return nil
}

func (s *MemoryStore) DeleteSubscription(_ context.Context, userID, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, subKey{userID, wallet})
	return nil
}

func (s *MemoryStore) ListSubscriptionsByUser(_ context.Context, userID string) ([]model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Subscription
	for key, sub := range s.subscriptions {
		if key.userID == userID {
			result = append(result, *sub)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListSubscriptionsByWallet(_ context.Context, wallet string) ([]model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Subscription
	for key, sub := range s.subscriptions {
		if key.wallet == wallet {
			result = append(result, *sub)
		}
	}
	return result, nil
}

// --- Accounts ---

func (s *MemoryStore) SaveAccount(_ context.Context, acct *model.TradingAccount) (*model.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[acct.UserID]; ok {
		existing.WalletAddress = acct.WalletAddress
		existing.EncryptedCredentials = acct.EncryptedCredentials
		existing.UpdatedAt = acct.UpdatedAt
		copy := *existing
		return &copy, nil
	}

	stored := *acct
	s.accounts[acct.UserID] = &stored
	copy := stored
	return &copy, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.TradingAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copy := *acct
	return &copy, nil
}

func (s *MemoryStore) UpdateAccountSettings(_ context.Context, userID string, patch model.SettingsPatch, now time.Time) (*model.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	patch.Apply(acct)
	acct.UpdatedAt = now
	copy := *acct
	return &copy, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, userID)
	return nil
}

// --- Ledger ---

func (s *MemoryStore) InsertCopyTrade(_ context.Context, rec *model.CopyTradeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tradeKey{rec.UserID, rec.SourceTradeHash}
	if _, ok := s.bySource[key]; ok {
		return 0, ErrDuplicateTrade
	}

	s.nextID++
	stored := *rec
	stored.ID = s.nextID
	s.ledger = append(s.ledger, &stored)
	s.byID[stored.ID] = &stored
	s.bySource[key] = stored.ID
	rec.ID = stored.ID
	return stored.ID, nil
}

func (s *MemoryStore) UpdateCopyTradeStatus(_ context.Context, id int64, upd model.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrTradeNotFound
	}
	if rec.Status != model.StatusPending {
		return ErrInvalidTransition
	}
	upd.Apply(rec)
	return nil
}

func (s *MemoryStore) ListCopyTrades(_ context.Context, userID string, limit int) ([]model.CopyTradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.CopyTradeRecord
	for _, rec := range s.ledger {
		if rec.UserID == userID {
			result = append(result, *rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) FindCopyTrade(_ context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySource[tradeKey{userID, sourceTradeHash}]
	if !ok {
		return nil, ErrTradeNotFound
	}
	copy := *s.byID[id]
	return &copy, nil
}

func (s *MemoryStore) SumConfirmedVolume(_ context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, rec := range s.ledger {
		if rec.UserID != userID || !inWindow(rec.CreatedAt, from, to) {
			continue
		}
		if rec.Confirmed() {
			total = total.Add(rec.Size)
		}
	}
	return total, nil
}

func (s *MemoryStore) SumPendingVolume(_ context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, rec := range s.ledger {
		if rec.UserID == userID && rec.Status == model.StatusPending && inWindow(rec.CreatedAt, from, to) {
			total = total.Add(rec.Size)
		}
	}
	return total, nil
}

func (s *MemoryStore) CountCopyTradesByStatus(_ context.Context, userID string, from, to time.Time) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Status]int)
	for _, rec := range s.ledger {
		if rec.UserID == userID && inWindow(rec.CreatedAt, from, to) {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

// inWindow is the half-open [from, to) check shared by the volume queries.
func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
