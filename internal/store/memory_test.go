package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func record(user, hash string, size int64, at time.Time) *model.CopyTradeRecord {
	return &model.CopyTradeRecord{
		UserID:          user,
		SourceTradeHash: hash,
		Side:            model.SideBuy,
		Size:            decimal.NewFromInt(size),
		Price:           decimal.RequireFromString("0.5"),
		Status:          model.StatusPending,
		CreatedAt:       at,
	}
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.InsertCopyTrade(ctx, record("u1", "h1", 10, t0))
	if err != nil || id != 1 {
		t.Fatalf("expected id 1, got %d (%v)", id, err)
	}
	if _, err := s.InsertCopyTrade(ctx, record("u1", "h1", 10, t0)); !errors.Is(err, ErrDuplicateTrade) {
		t.Errorf("expected ErrDuplicateTrade, got %v", err)
	}
	if _, err := s.InsertCopyTrade(ctx, record("u2", "h1", 10, t0)); err != nil {
		t.Errorf("same hash for another user should succeed, got %v", err)
	}

	rec, err := s.FindCopyTrade(ctx, "u1", "h1")
	if err != nil || rec.ID != 1 || rec.Status != model.StatusPending {
		t.Errorf("expected pending trade 1, got %+v (%v)", rec, err)
	}
	if _, err := s.FindCopyTrade(ctx, "u1", "h2"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestMemoryStore_StatusTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, _ := s.InsertCopyTrade(ctx, record("u1", "h1", 10, t0))

	if err := s.UpdateCopyTradeStatus(ctx, id, model.Executed{OrderID: "o", TxHash: "0x1"}.Fields()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateCopyTradeStatus(ctx, id, model.Failed{}.Fields()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.UpdateCopyTradeStatus(ctx, 99, model.Failed{}.Fields()); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestMemoryStore_ConfirmedVolumeWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	confirm := func(rec *model.CopyTradeRecord, tx string) {
		id, err := s.InsertCopyTrade(ctx, rec)
		if err != nil {
			t.Fatal(err)
		}
		s.UpdateCopyTradeStatus(ctx, id, model.Executed{OrderID: "o", TxHash: tx}.Fields())
	}
	confirm(record("u1", "a", 40, t0), "0xa")
	confirm(record("u1", "b", 25, t0.Add(time.Hour)), "")
	confirm(record("u1", "c", 70, t0.Add(-24*time.Hour)), "0xc")
	s.InsertCopyTrade(ctx, record("u1", "d", 90, t0))

	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	vol, err := s.SumConfirmedVolume(ctx, "u1", from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !vol.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected 40, got %s", vol)
	}

	counts, _ := s.CountCopyTradesByStatus(ctx, "u1", from, from.AddDate(0, 0, 1))
	if counts[model.StatusExecuted] != 2 || counts[model.StatusPending] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, h := range []string{"a", "b", "c"} {
		s.InsertCopyTrade(ctx, record("u1", h, 1, t0))
	}

	recs, _ := s.ListCopyTrades(ctx, "u1", 2)
	if len(recs) != 2 || recs[0].SourceTradeHash != "c" || recs[1].SourceTradeHash != "b" {
		t.Errorf("unexpected order %+v", recs)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.SaveAccount(ctx, model.NewTradingAccount("u1", "0xw", "c", t0))

	acct, _ := s.GetAccount(ctx, "u1")
	acct.CopyEnabled = true

	again, _ := s.GetAccount(ctx, "u1")
	if again.CopyEnabled {
		t.Error("mutating a returned account must not touch the store")
	}
}
