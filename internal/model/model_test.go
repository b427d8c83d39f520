package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"auto", ModeAuto, false},
		{" Recommend ", ModeRecommend, false},
		{"mirror", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTradeEventValidate(t *testing.T) {
	valid := func() TradeEvent {
		return TradeEvent{
			SourceWallet:      " 0xABC ",
			SourceTradeHash:   "0xhash",
			MarketConditionID: "cond-1",
			Side:              "buy",
			Size:              decimal.NewFromInt(300),
			Price:             decimal.RequireFromString("0.42"),
		}
	}

	ev := valid()
	if err := ev.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	if ev.SourceWallet != "0xabc" || ev.Side != SideBuy {
		t.Errorf("expected normalized wallet and side, got %q %q", ev.SourceWallet, ev.Side)
	}

	tests := []struct {
		name   string
		mutate func(*TradeEvent)
	}{
		{"no wallet", func(e *TradeEvent) { e.SourceWallet = "" }},
		{"no hash", func(e *TradeEvent) { e.SourceTradeHash = " " }},
		{"no market", func(e *TradeEvent) { e.MarketConditionID = "" }},
		{"bad side", func(e *TradeEvent) { e.Side = "HOLD" }},
		{"zero size", func(e *TradeEvent) { e.Size = decimal.Zero }},
		{"negative price", func(e *TradeEvent) { e.Price = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid()
			tt.mutate(&ev)
			if err := ev.Validate(); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestSettingsPatchJSON(t *testing.T) {
	var absent SettingsPatch
	if err := json.Unmarshal([]byte(`{"copy_percentage":"25"}`), &absent); err != nil {
		t.Fatal(err)
	}
	if absent.MaxTradeSize.Set || absent.DailyLimit.Set {
		t.Error("absent caps must stay unset")
	}
	if absent.CopyPercentage == nil || !absent.CopyPercentage.Equal(decimal.NewFromInt(25)) {
		t.Errorf("unexpected percentage %v", absent.CopyPercentage)
	}

	var cleared SettingsPatch
	if err := json.Unmarshal([]byte(`{"daily_limit":null,"max_trade_size":40}`), &cleared); err != nil {
		t.Fatal(err)
	}
	if !cleared.DailyLimit.Set || cleared.DailyLimit.Value.Valid {
		t.Error("explicit null must clear daily_limit")
	}
	if !cleared.MaxTradeSize.Value.Valid || !cleared.MaxTradeSize.Value.Decimal.Equal(decimal.NewFromInt(40)) {
		t.Errorf("unexpected max_trade_size %+v", cleared.MaxTradeSize)
	}
	if cleared.Empty() || !(SettingsPatch{}).Empty() {
		t.Error("Empty reported incorrectly")
	}
}

func TestSettingsPatchApply(t *testing.T) {
	acct := NewTradingAccount("u1", "0xw", "c", fixedTime)
	acct.DailyLimit = decimal.NewNullDecimal(decimal.NewFromInt(100))

	SettingsPatch{MaxTradeSize: SetTo(decimal.NewFromInt(5))}.Apply(acct)
	if !acct.DailyLimit.Valid {
		t.Error("unset field was modified")
	}
	SettingsPatch{DailyLimit: Clear()}.Apply(acct)
	if acct.DailyLimit.Valid {
		t.Error("expected daily limit cleared")
	}
	if !acct.MaxTradeSize.Decimal.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected max trade size %s", acct.MaxTradeSize.Decimal)
	}
}

func TestOutcomeFields(t *testing.T) {
	rec := NewPendingRecord("u1", TradeEvent{SourceWallet: "0xW", SourceTradeHash: "h", Side: SideSell}, decimal.NewFromInt(3))
	if rec.SourceWallet != "0xw" || rec.Status != StatusPending {
		t.Fatalf("unexpected pending record %+v", rec)
	}

	Executed{OrderID: "o1"}.Fields().Apply(rec)
	if rec.Status != StatusExecuted || rec.TxHash != nil || rec.Confirmed() {
		t.Error("executed without tx hash must not be confirmed")
	}

	Executed{OrderID: "o1", TxHash: "0xtx"}.Fields().Apply(rec)
	if !rec.Confirmed() {
		t.Error("expected confirmed record")
	}

	Failed{}.Fields().Apply(rec)
	if rec.Status != StatusFailed || rec.ReasonCode != ReasonExecutionError || rec.ErrorMessage == nil {
		t.Errorf("unexpected failed record %+v", rec)
	}
	if rec.OrderID != nil {
		t.Error("failed outcome must clear order id")
	}
}

func TestSkippedRecord(t *testing.T) {
	rec := NewSkippedRecord("u1", TradeEvent{SourceTradeHash: "h"}, decimal.NewFromInt(150), ReasonDailyLimit, "limit")
	if !rec.Status.Terminal() || rec.ReasonCode != ReasonDailyLimit {
		t.Errorf("unexpected skipped record %+v", rec)
	}
	if StatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
}
