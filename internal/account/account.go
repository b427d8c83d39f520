// Package account manages per-user trading accounts: the execution wallet,
// its encrypted credentials and the copy-trading risk settings.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/store"
)

var (
	ErrMissingUser        = errors.New("account: user_id is required")
	ErrMissingWallet      = errors.New("account: wallet_address is required")
	ErrMissingCredentials = errors.New("account: encrypted_credentials is required")
)

// Service is the trading account store.
type Service struct {
	store store.AccountStore
	now   func() time.Time
}

// NewService creates an account service backed by st.
func NewService(st store.AccountStore) *Service {
	return &Service{store: st, now: time.Now}
}

// Save creates the account with default risk settings, or replaces only the
// wallet address and credentials of an existing one.
func (s *Service) Save(ctx context.Context, userID, walletAddress, encryptedCredentials string) (*model.TradingAccount, error) {
	userID = strings.TrimSpace(userID)
	walletAddress = strings.TrimSpace(walletAddress)
	switch {
	case userID == "":
		return nil, ErrMissingUser
	case walletAddress == "":
		return nil, ErrMissingWallet
	case encryptedCredentials == "":
		return nil, ErrMissingCredentials
	}

	acct := model.NewTradingAccount(userID, walletAddress, encryptedCredentials, s.now().UTC())
	return s.store.SaveAccount(ctx, acct)
}

// Get returns store.ErrAccountNotFound when the user has no account.
func (s *Service) Get(ctx context.Context, userID string) (*model.TradingAccount, error) {
	return s.store.GetAccount(ctx, strings.TrimSpace(userID))
}

// UpdateSettings merges the fields present in patch.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch model.SettingsPatch) (*model.TradingAccount, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if patch.Empty() {
		return s.store.GetAccount(ctx, userID)
	}
	acct, err := s.store.UpdateAccountSettings(ctx, userID, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Delete removes the account. Deleting a missing account succeeds.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.DeleteAccount(ctx, strings.TrimSpace(userID)); err != nil {
		return fmt.Errorf("delete account %s: %w", userID, err)
	}
	return nil
}
