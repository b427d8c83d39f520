package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// NullableDecimal is a patch field with three states: absent (Set=false,
// untouched), explicit JSON null (Set=true, Value.Valid=false, clears the
// cap) and a value.
type NullableDecimal struct {
	Set   bool
	Value decimal.NullDecimal
}

// SetTo returns a patch field holding v.
func SetTo(v decimal.Decimal) NullableDecimal {
	return NullableDecimal{Set: true, Value: decimal.NewNullDecimal(v)}
}

// Clear returns a patch field that removes the cap.
func Clear() NullableDecimal {
	return NullableDecimal{Set: true}
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = decimal.NullDecimal{}
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	n.Value = decimal.NewNullDecimal(d)
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Set || !n.Value.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value.Decimal)
}

// SettingsPatch is a partial update of a trading account's risk settings.
// Fields left nil / unset keep their stored value.
//
//   - CopyEnabled toggles auto-execution for auto-mode subscriptions.
//   - CopyPercentage is the sizing fraction applied to mirrored orders.
//   - MaxTradeSize is a hard cap per mirrored order (null clears it).
//   - DailyLimit caps cumulative confirmed notional per calendar day
//     (null clears it).
type SettingsPatch struct {
	CopyEnabled    *bool            `json:"copy_enabled,omitempty"`
	CopyPercentage *decimal.Decimal `json:"copy_percentage,omitempty"`
	MaxTradeSize   NullableDecimal  `json:"max_trade_size"`
	DailyLimit     NullableDecimal  `json:"daily_limit"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.CopyEnabled == nil && p.CopyPercentage == nil && !p.MaxTradeSize.Set && !p.DailyLimit.Set
}

// Validate rejects non-positive percentages and caps.
func (p SettingsPatch) Validate() error {
	if p.CopyPercentage != nil && !p.CopyPercentage.IsPositive() {
		return fmt.Errorf("%w: copy_percentage must be positive", ErrInvalidSettings)
	}
	if p.MaxTradeSize.Set && p.MaxTradeSize.Value.Valid && !p.MaxTradeSize.Value.Decimal.IsPositive() {
		return fmt.Errorf("%w: max_trade_size must be positive", ErrInvalidSettings)
	}
	if p.DailyLimit.Set && p.DailyLimit.Value.Valid && !p.DailyLimit.Value.Decimal.IsPositive() {
		return fmt.Errorf("%w: daily_limit must be positive", ErrInvalidSettings)
	}
	return nil
}

// Apply merges the present fields into acct.
func (p SettingsPatch) Apply(acct *TradingAccount) {
	if p.CopyEnabled != nil {
		acct.CopyEnabled = *p.CopyEnabled
	}
	if p.CopyPercentage != nil {
		acct.CopyPercentage = *p.CopyPercentage
	}
	if p.MaxTradeSize.Set {
		acct.MaxTradeSize = p.MaxTradeSize.Value
	}
	if p.DailyLimit.Set {
		acct.DailyLimit = p.DailyLimit.Value
	}
}
