// Package ledger is the append-mostly history of copy-trade attempts.
//
// Every attempt is recorded exactly once per (user, source trade). Records
// are created either pending, right before submission, or directly skipped
// for policy rejections. A pending record moves to executed or failed once
// and never changes again.
//
// TodaysVolume is the single definition of "confirmed notional copied
// today". The coordinator's limit check and the reporting endpoints both
// call it, so enforcement and reporting cannot drift apart.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ErrInvalidRecord is returned by LogTrade for records missing required
// fields or carrying an unknown status.
var ErrInvalidRecord = errors.New("ledger: invalid copy trade record")

// Ledger wraps a LedgerStore with the clock and time zone that define the
// calendar day.
type Ledger struct {
	store        store.LedgerStore
	loc          *time.Location
	now          func() time.Time
	defaultLimit int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocation sets the time zone whose midnight starts the daily window.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDefaultLimit sets the history size used when callers pass no limit.
func WithDefaultLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.defaultLimit = min(n, MaxHistoryLimit)
		}
	}
}

// New creates a ledger. The default time zone is UTC.
func New(st store.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:        st,
		loc:          time.UTC,
		now:          time.Now,
		defaultLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the ledger time zone.
func (l *Ledger) Location() *time.Location { return l.loc }

// DayWindow returns the half-open window [from, to) of the calendar day
// containing now, in loc. Records are stamped by the ledger clock, so no
// record can fall between now and the end of the day.
func DayWindow(now time.Time, loc *time.Location) (from, to time.Time) {
	y, m, d := now.In(loc).Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	to = from.AddDate(0, 0, 1)
	return from, to
}

// LogTrade appends rec and returns its id. CreatedAt is always stamped by
// the ledger clock. A second record for the same (user, source trade) fails
// with store.ErrDuplicateTrade.
func (l *Ledger) LogTrade(ctx context.Context, rec *model.CopyTradeRecord) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}
	rec.CreatedAt = l.now().UTC()

	id, err := l.store.InsertCopyTrade(ctx, rec)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTrade) {
			return 0, err
		}
		return 0, fmt.Errorf("log copy trade for %s: %w", rec.UserID, err)
	}
	rec.ID = id
	return id, nil
}

// GetHistory returns the user's records, most recent first. limit <= 0
// means the default; anything above MaxHistoryLimit is capped.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int) ([]model.CopyTradeRecord, error) {
	switch {
	case limit <= 0:
		limit = l.defaultLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	recs, err := l.store.ListCopyTrades(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("copy trade history for %s: %w", userID, err)
	}
	if recs == nil {
		recs = []model.CopyTradeRecord{}
	}
	return recs, nil
}

// UpdateStatus resolves a pending record. Terminal records are rejected
// with store.ErrInvalidTransition.
func (l *Ledger) UpdateStatus(ctx context.Context, id int64, outcome model.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("%w: outcome is required", ErrInvalidRecord)
	}
	return l.store.UpdateCopyTradeStatus(ctx, id, outcome.Fields())
}

// TodaysVolume sums Size over the user's executed records that carry a
// transaction hash and were created in the current calendar day.
func (l *Ledger) TodaysVolume(ctx context.Context, userID string) (decimal.Decimal, error) {
	from, to := DayWindow(l.now(), l.loc)
	vol, err := l.store.SumConfirmedVolume(ctx, userID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("todays volume for %s: %w", userID, err)
	}
	return vol, nil
}

// UnresolvedVolume sums Size over the user's records created today that
// are still pending. Outside an in-flight submission these are attempts
// whose outcome was never recorded, so the order may well have filled.
func (l *Ledger) UnresolvedVolume(ctx context.Context, userID string) (decimal.Decimal, error) {
	from, to := DayWindow(l.now(), l.loc)
	vol, err := l.store.SumPendingVolume(ctx, userID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unresolved volume for %s: %w", userID, err)
	}
	return vol, nil
}

// FindTrade returns the record for the source trade, or
// store.ErrTradeNotFound.
func (l *Ledger) FindTrade(ctx context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error) {
	rec, err := l.store.FindCopyTrade(ctx, userID, sourceTradeHash)
	if errors.Is(err, store.ErrTradeNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("find copy trade %s/%s: %w", userID, sourceTradeHash, err)
	}
	return rec, nil
}

// HasTrade reports whether a record already exists for the source trade.
func (l *Ledger) HasTrade(ctx context.Context, userID, sourceTradeHash string) (bool, error) {
	_, err := l.FindTrade(ctx, userID, sourceTradeHash)
	if errors.Is(err, store.ErrTradeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DailyTotals reports per-status counts and the confirmed volume for the
// current calendar day. The volume is the same figure TodaysVolume returns.
func (l *Ledger) DailyTotals(ctx context.Context, userID string) (*model.DailyTotals, error) {
	from, to := DayWindow(l.now(), l.loc)

	counts, err := l.store.CountCopyTradesByStatus(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily totals for %s: %w", userID, err)
	}
	vol, err := l.store.SumConfirmedVolume(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily totals for %s: %w", userID, err)
	}

	return &model.DailyTotals{
		UserID:          userID,
		Date:            from.Format(time.DateOnly),
		Pending:         counts[model.StatusPending],
		Executed:        counts[model.StatusExecuted],
		Failed:          counts[model.StatusFailed],
		Skipped:         counts[model.StatusSkipped],
		ConfirmedVolume: vol,
	}, nil
}

func validateRecord(rec *model.CopyTradeRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is required", ErrInvalidRecord)
	}
	rec.UserID = strings.TrimSpace(rec.UserID)
	rec.SourceWallet = model.NormalizeWallet(rec.SourceWallet)
	rec.SourceTradeHash = strings.TrimSpace(rec.SourceTradeHash)

	if rec.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRecord)
	}
	if rec.SourceTradeHash == "" {
		return fmt.Errorf("%w: source_trade_hash is required", ErrInvalidRecord)
	}
	side, err := model.ParseSide(string(rec.Side))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	rec.Side = side

	switch rec.Status {
	case model.StatusPending, model.StatusExecuted, model.StatusFailed, model.StatusSkipped:
	case "":
		rec.Status = model.StatusPending
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, rec.Status)
	}
	if rec.Size.IsNegative() || rec.Price.IsNegative() {
		return fmt.Errorf("%w: size and price must not be negative", ErrInvalidRecord)
	}
	return checkStatusFields(rec)
}

// checkStatusFields enforces the fields each status may carry: order id
// and tx hash only once executed, an error message only once failed or
// skipped, and a reason code that matches the status.
func checkStatusFields(rec *model.CopyTradeRecord) error {
	set := func(s *string) bool { return s != nil && *s != "" }

	switch rec.ReasonCode {
	case model.ReasonNone, model.ReasonDailyLimit, model.ReasonZeroSize, model.ReasonExecutionError:
	default:
		return fmt.Errorf("%w: unknown reason code %q", ErrInvalidRecord, rec.ReasonCode)
	}

	switch rec.Status {
	case model.StatusPending:
		if set(rec.OrderID) || set(rec.TxHash) || set(rec.ErrorMessage) || rec.ReasonCode != model.ReasonNone {
			return fmt.Errorf("%w: pending records carry no outcome fields", ErrInvalidRecord)
		}
	case model.StatusExecuted:
		if set(rec.ErrorMessage) || rec.ReasonCode != model.ReasonNone {
			return fmt.Errorf("%w: executed records carry no error", ErrInvalidRecord)
		}
	case model.StatusFailed:
		if set(rec.OrderID) || set(rec.TxHash) {
			return fmt.Errorf("%w: failed records carry no order or tx hash", ErrInvalidRecord)
		}
		if rec.ReasonCode != model.ReasonNone && rec.ReasonCode != model.ReasonExecutionError {
			return fmt.Errorf("%w: reason %q does not match status failed", ErrInvalidRecord, rec.ReasonCode)
		}
	case model.StatusSkipped:
		if set(rec.OrderID) || set(rec.TxHash) {
			return fmt.Errorf("%w: skipped records carry no order or tx hash", ErrInvalidRecord)
		}
		if rec.ReasonCode == model.ReasonExecutionError {
			return fmt.Errorf("%w: reason %q does not match status skipped", ErrInvalidRecord, rec.ReasonCode)
		}
	}
	return nil
}
