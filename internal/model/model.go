// Package model defines the core domain types shared across the copy-trade
// engine. All sizes, prices and limits use shopspring/decimal, never
// float64 for money.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMode     = errors.New("model: subscription mode must be recommend or auto")
	ErrInvalidSide     = errors.New("model: side must be BUY or SELL")
	ErrInvalidEvent    = errors.New("model: invalid source trade event")
	ErrInvalidSettings = errors.New("model: invalid trading settings")
)

// Mode controls what happens when a followed wallet trades.
type Mode string

const (
	ModeRecommend Mode = "recommend" // notify only
	ModeAuto      Mode = "auto"      // submit a sized mirror order
)

// ParseMode validates a mode string. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRecommend:
		return ModeRecommend, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide validates a side string. Matching is case-insensitive.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// NormalizeWallet is the single normalization rule for wallet addresses:
// surrounding whitespace removed, lower case.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// Subscription links a user to a source wallet they follow.
// (UserID, SourceWallet) is unique.
type Subscription struct {
	UserID       string    `json:"user_id" db:"user_id"`
	SourceWallet string    `json:"source_wallet" db:"source_wallet"`
	Mode         Mode      `json:"mode" db:"mode"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Defaults applied when a trading account is first created.
var (
	DefaultCopyEnabled    = false
	DefaultCopyPercentage = decimal.NewFromInt(10)
)

// TradingAccount is a user's execution wallet plus risk configuration.
// Exactly one account exists per user.
type TradingAccount struct {
	UserID               string              `json:"user_id" db:"user_id"`
	WalletAddress        string              `json:"wallet_address" db:"wallet_address"`
	EncryptedCredentials string              `json:"-" db:"encrypted_credentials"`
	CopyEnabled          bool                `json:"copy_enabled" db:"copy_enabled"`
	CopyPercentage       decimal.Decimal     `json:"copy_percentage" db:"copy_percentage"`
	MaxTradeSize         decimal.NullDecimal `json:"max_trade_size" db:"max_trade_size"`
	DailyLimit           decimal.NullDecimal `json:"daily_limit" db:"daily_limit"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" db:"updated_at"`
}

// NewTradingAccount returns a fully populated account carrying the default
// risk settings. It is only used on the creation path.
func NewTradingAccount(userID, walletAddress, encryptedCredentials string, now time.Time) *TradingAccount {
	return &TradingAccount{
		UserID:               userID,
		WalletAddress:        walletAddress,
		EncryptedCredentials: encryptedCredentials,
		CopyEnabled:          DefaultCopyEnabled,
		CopyPercentage:       DefaultCopyPercentage,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Status is the lifecycle state of a copy-trade record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusSkipped
}

// ReasonCode tells a policy rejection apart from an execution failure
// without parsing the human-readable message.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonDailyLimit     ReasonCode = "daily_limit"
	ReasonZeroSize       ReasonCode = "zero_size"
	ReasonExecutionError ReasonCode = "execution_error"
)

// CopyTradeRecord is one copy attempt for one subscriber. Records are
// append-mostly: only pending records are ever updated, exactly once.
type CopyTradeRecord struct {
	ID                int64           `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	SourceWallet      string          `json:"source_wallet" db:"source_wallet"`
	SourceTradeHash   string          `json:"source_trade_hash" db:"source_trade_hash"`
	MarketConditionID string          `json:"market_condition_id" db:"market_condition_id"`
	MarketTitle       string          `json:"market_title" db:"market_title"`
	Side              Side            `json:"side" db:"side"`
	Size              decimal.Decimal `json:"size" db:"size"`
	Price             decimal.Decimal `json:"price" db:"price"`
	Status            Status          `json:"status" db:"status"`
	OrderID           *string         `json:"order_id" db:"order_id"`
	TxHash            *string         `json:"tx_hash" db:"tx_hash"`
	ErrorMessage      *string         `json:"error_message" db:"error_message"`
	ReasonCode        ReasonCode      `json:"reason_code,omitempty" db:"reason_code"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Confirmed reports whether the record counts toward daily volume:
// executed with a transaction hash.
func (r *CopyTradeRecord) Confirmed() bool {
	return r.Status == StatusExecuted && r.TxHash != nil && *r.TxHash != ""
}

// NewPendingRecord builds the record written right before submission.
func NewPendingRecord(userID string, ev TradeEvent, size decimal.Decimal) *CopyTradeRecord {
	rec := recordFromEvent(userID, ev, size)
	rec.Status = StatusPending
	return rec
}

// NewSkippedRecord builds a terminal policy-rejection record.
func NewSkippedRecord(userID string, ev TradeEvent, size decimal.Decimal, code ReasonCode, message string) *CopyTradeRecord {
	rec := recordFromEvent(userID, ev, size)
	rec.Status = StatusSkipped
	rec.ReasonCode = code
	rec.ErrorMessage = &message
	return rec
}

func recordFromEvent(userID string, ev TradeEvent, size decimal.Decimal) *CopyTradeRecord {
	return &CopyTradeRecord{
		UserID:            userID,
		SourceWallet:      NormalizeWallet(ev.SourceWallet),
		SourceTradeHash:   ev.SourceTradeHash,
		MarketConditionID: ev.MarketConditionID,
		MarketTitle:       ev.MarketTitle,
		Side:              ev.Side,
		Size:              size,
		Price:             ev.Price,
	}
}

// Outcome is the result of a submission, applied to a pending record.
// Only Executed and Failed implement it.
type Outcome interface {
	Status() Status
	Fields() StatusUpdate
}

// Executed is a successful submission. An empty TxHash means the order was
// accepted but not confirmed on chain; such records do not count as volume.
type Executed struct {
	OrderID string
	TxHash  string
}

func (Executed) Status() Status { return StatusExecuted }

func (e Executed) Fields() StatusUpdate {
	return StatusUpdate{
		Status:  StatusExecuted,
		OrderID: optional(e.OrderID),
		TxHash:  optional(e.TxHash),
	}
}

// Failed is a submission the execution collaborator rejected or errored on.
type Failed struct {
	Reason string
}

func (Failed) Status() Status { return StatusFailed }

func (f Failed) Fields() StatusUpdate {
	reason := f.Reason
	if reason == "" {
		reason = "execution failed"
	}
	return StatusUpdate{
		Status:       StatusFailed,
		ErrorMessage: &reason,
		ReasonCode:   ReasonExecutionError,
	}
}

// StatusUpdate is the flattened form of an Outcome as persisted.
type StatusUpdate struct {
	Status       Status
	OrderID      *string
	TxHash       *string
	ErrorMessage *string
	ReasonCode   ReasonCode
}

// Apply copies the update onto a record.
func (u StatusUpdate) Apply(rec *CopyTradeRecord) {
	rec.Status = u.Status
	rec.OrderID = u.OrderID
	rec.TxHash = u.TxHash
	rec.ErrorMessage = u.ErrorMessage
	rec.ReasonCode = u.ReasonCode
}

// DailyTotals aggregates one user's ledger for the current calendar day.
type DailyTotals struct {
	UserID          string          `json:"user_id"`
	Date            string          `json:"date"` // YYYY-MM-DD in the ledger time zone
	Pending         int             `json:"pending"`
	Executed        int             `json:"executed"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	ConfirmedVolume decimal.Decimal `json:"confirmed_volume"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
