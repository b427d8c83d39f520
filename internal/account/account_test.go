package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestSave_CreatesWithDefaults(t *testing.T) {
	s := NewService(store.NewMemoryStore())

	acct, err := s.Save(context.Background(), "u1", "0xwallet1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.CopyEnabled {
		t.Error("expected copy disabled by default")
	}
	if !acct.CopyPercentage.Equal(d(10)) {
		t.Errorf("expected default percentage 10, got %s", acct.CopyPercentage)
	}
	if acct.MaxTradeSize.Valid || acct.DailyLimit.Valid {
		t.Error("expected no caps by default")
	}
}

func TestSave_UpsertOverwritesAddressOnly(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	s.Save(ctx, "u1", "0xwallet1", "c1")
	enabled := true
	pct := d(35)
	if _, err := s.UpdateSettings(ctx, "u1", model.SettingsPatch{
		CopyEnabled:    &enabled,
		CopyPercentage: &pct,
		DailyLimit:     model.SetTo(d(500)),
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(ctx, "u1", "0xwallet2", "c2"); err != nil {
		t.Fatal(err)
	}

	acct, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.WalletAddress != "0xwallet2" || acct.EncryptedCredentials != "c2" {
		t.Errorf("expected new address and credentials, got %s / %s", acct.WalletAddress, acct.EncryptedCredentials)
	}
	if !acct.CopyEnabled || !acct.CopyPercentage.Equal(d(35)) || !acct.DailyLimit.Decimal.Equal(d(500)) {
		t.Errorf("risk settings were reset: %+v", acct)
	}
}

func TestSave_Validation(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.Save(ctx, "", "0xw", "c"); !errors.Is(err, ErrMissingUser) {
		t.Errorf("expected ErrMissingUser, got %v", err)
	}
	if _, err := s.Save(ctx, "u1", "", "c"); !errors.Is(err, ErrMissingWallet) {
		t.Errorf("expected ErrMissingWallet, got %v", err)
	}
	if _, err := s.Save(ctx, "u1", "0xw", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewService(store.NewMemoryStore())

	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUpdateSettings_OnlyPercentage(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()
	s.Save(ctx, "u1", "0xw", "c")

	enabled := true
	s.UpdateSettings(ctx, "u1", model.SettingsPatch{
		CopyEnabled:  &enabled,
		MaxTradeSize: model.SetTo(d(20)),
		DailyLimit:   model.SetTo(d(100)),
	})

	pct := d(50)
	acct, err := s.UpdateSettings(ctx, "u1", model.SettingsPatch{CopyPercentage: &pct})
	if err != nil {
		t.Fatal(err)
	}
	if !acct.CopyPercentage.Equal(d(50)) {
		t.Errorf("expected 50, got %s", acct.CopyPercentage)
	}
	if !acct.CopyEnabled || !acct.MaxTradeSize.Decimal.Equal(d(20)) || !acct.DailyLimit.Decimal.Equal(d(100)) {
		t.Errorf("other fields changed: %+v", acct)
	}
}

func TestUpdateSettings_ClearCap(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()
	s.Save(ctx, "u1", "0xw", "c")
	s.UpdateSettings(ctx, "u1", model.SettingsPatch{DailyLimit: model.SetTo(d(100))})

	acct, err := s.UpdateSettings(ctx, "u1", model.SettingsPatch{DailyLimit: model.Clear()})
	if err != nil {
		t.Fatal(err)
	}
	if acct.DailyLimit.Valid {
		t.Error("expected daily limit cleared")
	}
}

func TestUpdateSettings_Errors(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	enabled := true
	if _, err := s.UpdateSettings(ctx, "ghost", model.SettingsPatch{CopyEnabled: &enabled}); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	s.Save(ctx, "u1", "0xw", "c")
	zero := decimal.Zero
	if _, err := s.UpdateSettings(ctx, "u1", model.SettingsPatch{CopyPercentage: &zero}); !errors.Is(err, model.ErrInvalidSettings) {
		t.Errorf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()
	s.Save(ctx, "u1", "0xw", "c")

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "u1"); err != nil {
		t.Errorf("second delete should succeed, got %v", err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
