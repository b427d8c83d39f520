package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// newTestPostgres connects to TEST_DATABASE_URL and migrates the schema.
// Each test works under fresh user ids, so runs do not interfere.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPostgresStore_InsertDuplicate(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	user := uuid.NewString()

	rec := record(user, "h1", 10, t0)
	id, err := s.InsertCopyTrade(ctx, rec)
	if err != nil || id <= 0 || rec.ID != id {
		t.Fatalf("insert: id %d, rec.ID %d, err %v", id, rec.ID, err)
	}
	if _, err := s.InsertCopyTrade(ctx, record(user, "h1", 10, t0)); !errors.Is(err, ErrDuplicateTrade) {
		t.Errorf("expected ErrDuplicateTrade, got %v", err)
	}

	found, err := s.FindCopyTrade(ctx, user, "h1")
	if err != nil || found.ID != id || !found.Size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected record %+v (%v)", found, err)
	}
	if _, err := s.FindCopyTrade(ctx, user, "h2"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestPostgresStore_StatusGuard(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	user := uuid.NewString()

	id, err := s.InsertCopyTrade(ctx, record(user, "h1", 10, t0))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateCopyTradeStatus(ctx, id, model.Executed{OrderID: "o1", TxHash: "0x1"}.Fields()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateCopyTradeStatus(ctx, id, model.Failed{Reason: "late"}.Fields()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.UpdateCopyTradeStatus(ctx, -1, model.Failed{}.Fields()); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}

	found, _ := s.FindCopyTrade(ctx, user, "h1")
	if found.Status != model.StatusExecuted || found.TxHash == nil || *found.TxHash != "0x1" {
		t.Errorf("outcome overwritten: %+v", found)
	}
}

func TestPostgresStore_VolumeWindow(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	user := uuid.NewString()

	resolve := func(hash string, size int64, at time.Time, outcome model.Outcome) {
		t.Helper()
		id, err := s.InsertCopyTrade(ctx, record(user, hash, size, at))
		if err != nil {
			t.Fatal(err)
		}
		if outcome != nil {
			if err := s.UpdateCopyTradeStatus(ctx, id, outcome.Fields()); err != nil {
				t.Fatal(err)
			}
		}
	}
	resolve("a", 40, t0, model.Executed{OrderID: "o", TxHash: "0xa"})
	resolve("b", 25, t0.Add(time.Hour), model.Executed{OrderID: "o"})
	resolve("c", 70, t0.Add(-24*time.Hour), model.Executed{TxHash: "0xc"})
	resolve("d", 15, t0, model.Failed{Reason: "rejected"})
	resolve("e", 90, t0, nil)

	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	vol, err := s.SumConfirmedVolume(ctx, user, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if !vol.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected confirmed volume 40, got %s", vol)
	}

	pending, err := s.SumPendingVolume(ctx, user, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if !pending.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected pending volume 90, got %s", pending)
	}

	counts, err := s.CountCopyTradesByStatus(ctx, user, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusExecuted] != 2 || counts[model.StatusFailed] != 1 || counts[model.StatusPending] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestPostgresStore_AccountUpsertKeepsSettings(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	user := uuid.NewString()

	if _, err := s.SaveAccount(ctx, model.NewTradingAccount(user, "0xw1", "c1", t0)); err != nil {
		t.Fatal(err)
	}
	enabled := true
	if _, err := s.UpdateAccountSettings(ctx, user, model.SettingsPatch{
		CopyEnabled: &enabled,
		DailyLimit:  model.SetTo(decimal.NewFromInt(100)),
	}, t0); err != nil {
		t.Fatal(err)
	}

	acct, err := s.SaveAccount(ctx, model.NewTradingAccount(user, "0xw2", "c2", t0))
	if err != nil {
		t.Fatal(err)
	}
	if acct.WalletAddress != "0xw2" || !acct.CopyEnabled || !acct.DailyLimit.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected account after upsert %+v", acct)
	}

	acct, err = s.UpdateAccountSettings(ctx, user, model.SettingsPatch{DailyLimit: model.Clear()}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if acct.DailyLimit.Valid {
		t.Error("expected daily limit cleared")
	}

	s.DeleteAccount(ctx, user)
	if _, err := s.GetAccount(ctx, user); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
