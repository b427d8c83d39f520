package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

func newTestCachedStore(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ms := NewMemoryStore()
	return NewCachedStore(ms, rdb, time.Minute), ms, mr
}

func TestCachedStore_AccountReadThrough(t *testing.T) {
	cs, ms, mr := newTestCachedStore(t)
	ctx := context.Background()

	cs.SaveAccount(ctx, model.NewTradingAccount("u1", "0xw", "secret", t0))
	enabled := true
	cs.UpdateAccountSettings(ctx, "u1", model.SettingsPatch{CopyEnabled: &enabled}, t0)

	acct, err := cs.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.CopyEnabled {
		t.Fatal("expected copy enabled")
	}
	if !mr.Exists(accountKey("u1")) {
		t.Fatal("expected the account to be cached")
	}

	// A write that bypasses the cache is not seen until the entry goes.
	disabled := false
	ms.UpdateAccountSettings(ctx, "u1", model.SettingsPatch{CopyEnabled: &disabled}, t0)
	cached, _ := cs.GetAccount(ctx, "u1")
	if !cached.CopyEnabled {
		t.Fatal("expected the cached copy to be served")
	}
	if cached.EncryptedCredentials != "secret" {
		t.Errorf("credentials lost in cache round trip: %q", cached.EncryptedCredentials)
	}

	mr.FastForward(2 * time.Minute)
	expired, _ := cs.GetAccount(ctx, "u1")
	if expired.CopyEnabled {
		t.Error("expected a fresh read after the ttl")
	}
}

func TestCachedStore_SettingsUpdateInvalidates(t *testing.T) {
	cs, _, mr := newTestCachedStore(t)
	ctx := context.Background()

	cs.SaveAccount(ctx, model.NewTradingAccount("u1", "0xw", "secret", t0))
	enabled := true
	cs.UpdateAccountSettings(ctx, "u1", model.SettingsPatch{
		CopyEnabled: &enabled,
		DailyLimit:  model.SetTo(decimal.NewFromInt(100)),
	}, t0)
	cs.GetAccount(ctx, "u1")

	disabled := false
	if _, err := cs.UpdateAccountSettings(ctx, "u1", model.SettingsPatch{CopyEnabled: &disabled}, t0); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(accountKey("u1")) {
		t.Error("expected the cache entry to be invalidated")
	}

	acct, err := cs.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.CopyEnabled {
		t.Error("expected copy disabled on the next read")
	}
	if !acct.DailyLimit.Valid || !acct.DailyLimit.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("daily limit lost in cache round trip: %+v", acct.DailyLimit)
	}

	cs.DeleteAccount(ctx, "u1")
	if _, err := cs.GetAccount(ctx, "u1"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound after delete, got %v", err)
	}
}

func TestCachedStore_DeleteSubscriptionInvalidates(t *testing.T) {
	cs, _, mr := newTestCachedStore(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		cs.UpsertSubscription(ctx, &model.Subscription{UserID: user, SourceWallet: "0xwhale", Mode: model.ModeAuto, CreatedAt: t0, UpdatedAt: t0})
	}
	subs, err := cs.ListSubscriptionsByWallet(ctx, "0xwhale")
	if err != nil || len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d (%v)", len(subs), err)
	}
	if !mr.Exists(walletSubsKey("0xwhale")) {
		t.Fatal("expected the subscriber list to be cached")
	}

	if err := cs.DeleteSubscription(ctx, "u1", "0xwhale"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(walletSubsKey("0xwhale")) {
		t.Error("expected the cache entry to be invalidated")
	}

	subs, _ = cs.ListSubscriptionsByWallet(ctx, "0xwhale")
	if len(subs) != 1 || subs[0].UserID != "u2" {
		t.Errorf("unexpected subscribers %+v", subs)
	}

	cs.UpsertSubscription(ctx, &model.Subscription{UserID: "u2", SourceWallet: "0xwhale", Mode: model.ModeRecommend, CreatedAt: t0, UpdatedAt: t0})
	subs, _ = cs.ListSubscriptionsByWallet(ctx, "0xwhale")
	if len(subs) != 1 || subs[0].Mode != model.ModeRecommend {
		t.Errorf("expected the mode change to be visible, got %+v", subs)
	}
}
