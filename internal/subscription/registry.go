// Package subscription manages which users follow which source wallets and
// in which mode.
package subscription

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
	ErrMissingUser   = errors.New("subscription: user_id is required")
	ErrMissingWallet = errors.New("subscription: wallet is required")
)

// Registry is the subscription registry.
type Registry struct {
	store store.SubscriptionStore
	now   func() time.Time
}

// NewRegistry creates a registry backed by st.
func NewRegistry(st store.SubscriptionStore) *Registry {
	return &Registry{store: st, now: time.Now}
}

// Subscribe follows wallet for userID. Re-subscribing overwrites the mode.
func (r *Registry) Subscribe(ctx context.Context, userID, wallet string, mode model.Mode) (*model.Subscription, error) {
	userID = strings.TrimSpace(userID)
	wallet = model.NormalizeWallet(wallet)
	if userID == "" {
		return nil, ErrMissingUser
	}
	if wallet == "" {
		return nil, ErrMissingWallet
	}
	mode, err := model.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	sub := &model.Subscription{
		UserID:       userID,
		SourceWallet: wallet,
		Mode:         mode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe %s to %s: %w", userID, wallet, err)
	}
	return sub, nil
}

// Unsubscribe stops following wallet. It succeeds when nothing was followed.
func (r *Registry) Unsubscribe(ctx context.Context, userID, wallet string) error {
	if err := r.store.DeleteSubscription(ctx, strings.TrimSpace(userID), model.NormalizeWallet(wallet)); err != nil {
		return fmt.Errorf("unsubscribe %s from %s: %w", userID, wallet, err)
	}
	return nil
}

// List returns every subscription of userID, in no particular order.
func (r *Registry) List(ctx context.Context, userID string) ([]model.Subscription, error) {
	subs, err := r.store.ListSubscriptionsByUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions %s: %w", userID, err)
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	return subs, nil
}

// Subscribers splits the followers of wallet by mode.
func (r *Registry) Subscribers(ctx context.Context, wallet string) (auto, recommend []model.Subscription, err error) {
	wallet = model.NormalizeWallet(wallet)
	subs, err := r.store.ListSubscriptionsByWallet(ctx, wallet)
	if err != nil {
		return nil, nil, fmt.Errorf("list subscribers of %s: %w", wallet, err)
	}
	for _, sub := range subs {
		switch sub.Mode {
		case model.ModeAuto:
			auto = append(auto, sub)
		case model.ModeRecommend:
			recommend = append(recommend, sub)
		}
	}
	return auto, recommend, nil
}
