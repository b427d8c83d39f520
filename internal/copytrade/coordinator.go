// Package copytrade turns one source-trade event into sized, limit-checked
// mirror orders for every auto-mode subscriber of the source wallet.
//
// Subscribers are processed concurrently and independently. Within a single
// user the de-dup check, the daily-volume read, the ledger insert, the order
// submission and the outcome write all happen under one per-user lock, so
// two events for the same user can never both pass the limit check.
package copytrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ericc59/polybot-sub002/internal/execution"
	"github.com/ericc59/polybot-sub002/internal/link"
	"github.com/ericc59/polybot-sub002/internal/lock"
	"github.com/ericc59/polybot-sub002/internal/metrics"
	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/risk"
	"github.com/ericc59/polybot-sub002/internal/store"
)

// DefaultConcurrency bounds how many subscribers of one event are handled
// at once.
const DefaultConcurrency = 16

// Outcome writes are retried this many times, doubling the wait from
// DefaultOutcomeBackoff.
const (
	DefaultOutcomeAttempts = 5
	DefaultOutcomeBackoff  = 100 * time.Millisecond
)

// ErrUnresolvedTrade is returned when an earlier attempt for the same
// source trade is still pending. Its order may have filled, so the event
// must not be acknowledged as processed.
var ErrUnresolvedTrade = errors.New("copytrade: earlier attempt has no recorded outcome")

// SubscriberSource resolves the followers of a wallet.
type SubscriberSource interface {
	Subscribers(ctx context.Context, wallet string) (auto, recommend []model.Subscription, err error)
}

// AccountSource loads trading accounts.
type AccountSource interface {
	Get(ctx context.Context, userID string) (*model.TradingAccount, error)
}

// Ledger is the subset of the trade ledger the coordinator writes through.
type Ledger interface {
	LogTrade(ctx context.Context, rec *model.CopyTradeRecord) (int64, error)
	UpdateStatus(ctx context.Context, id int64, outcome model.Outcome) error
	TodaysVolume(ctx context.Context, userID string) (decimal.Decimal, error)
	UnresolvedVolume(ctx context.Context, userID string) (decimal.Decimal, error)
	FindTrade(ctx context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error)
}

// Recommendation is handed to the notifier for recommend-mode subscribers.
type Recommendation struct {
	Event   model.TradeEvent `json:"event"`
	Link    string           `json:"link,omitempty"`
	UserIDs []string         `json:"user_ids"`
}

// Notifier delivers recommendations. Delivery itself is out of scope here.
type Notifier interface {
	Notify(ctx context.Context, rec Recommendation) error
}

// Broadcaster receives every ledger row the coordinator writes or resolves.
type Broadcaster interface {
	BroadcastRecord(rec model.CopyTradeRecord)
}

// Result is what happened for one subscriber.
type Result string

const (
	ResultExecuted  Result = "executed"
	ResultFailed    Result = "failed"
	ResultSkipped   Result = "skipped"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// Summary tallies one Process call.
type Summary struct {
	SourceTradeHash string `json:"source_trade_hash"`
	Executed        int    `json:"executed"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	Duplicate       int    `json:"duplicate"`
	Ignored         int    `json:"ignored"`
	Recommended     int    `json:"recommended"`
	Errors          int    `json:"errors"`
}

func (s *Summary) add(r Result) {
	switch r {
	case ResultExecuted:
		s.Executed++
	case ResultFailed:
		s.Failed++
	case ResultSkipped:
		s.Skipped++
	case ResultDuplicate:
		s.Duplicate++
	case ResultIgnored:
		s.Ignored++
	}
}

// Coordinator is the copy execution coordinator.
type Coordinator struct {
	subs        SubscriberSource
	accounts    AccountSource
	ledger      Ledger
	exec        execution.Executor
	locker      lock.Locker
	notifier    Notifier
	broadcaster Broadcaster
	concurrency int

	outcomeAttempts int
	outcomeBackoff  time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocker replaces the in-process per-user lock.
func WithLocker(l lock.Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithNotifier sets where recommend-mode subscribers are sent.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithBroadcaster sets the listener for ledger writes.
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Coordinator) { c.broadcaster = b }
}

// WithConcurrency bounds the per-event fan-out.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithOutcomeRetry sets how often a failed outcome write is retried and
// the initial wait between attempts.
func WithOutcomeRetry(attempts int, backoff time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.outcomeAttempts = attempts
		}
		if backoff > 0 {
			c.outcomeBackoff = backoff
		}
	}
}

// NewCoordinator wires a coordinator. Without WithLocker the per-user lock
// is an in-process KeyedMutex.
func NewCoordinator(subs SubscriberSource, accounts AccountSource, ledger Ledger, exec execution.Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		subs:        subs,
		accounts:    accounts,
		ledger:      ledger,
		exec:        exec,
		locker:      lock.NewKeyedMutex(),
		concurrency: DefaultConcurrency,

		outcomeAttempts: DefaultOutcomeAttempts,
		outcomeBackoff:  DefaultOutcomeBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process handles one source-trade event.
//
// Invalid events are rejected before anything is read or written. Policy
// rejections and redeliveries are normal results, not errors. Storage and
// lock errors for individual subscribers are aggregated into the returned
// error; the summary is returned alongside it and covers every subscriber
// that completed.
func (c *Coordinator) Process(ctx context.Context, ev model.TradeEvent) (*Summary, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	auto, recommend, err := c.subs.Subscribers(ctx, ev.SourceWallet)
	if err != nil {
		return nil, err
	}

	sum := &Summary{SourceTradeHash: ev.SourceTradeHash}
	if len(recommend) > 0 {
		c.recommend(ctx, ev, recommend)
		sum.Recommended = len(recommend)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(c.concurrency)
	for _, sub := range auto {
		g.Go(func() error {
			res, err := c.copyFor(ctx, ev, sub.UserID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("copy trade failed",
					"user", sub.UserID,
					"source_trade", ev.SourceTradeHash,
					"err", err,
				)
				errs = multierr.Append(errs, fmt.Errorf("copy %s for %s: %w", ev.SourceTradeHash, sub.UserID, err))
				sum.Errors++
				return nil
			}
			metrics.CopyOutcomesTotal.WithLabelValues(string(res)).Inc()
			sum.add(res)
			return nil
		})
	}
	g.Wait()

	slog.Info("source trade processed",
		"wallet", ev.SourceWallet,
		"source_trade", ev.SourceTradeHash,
		"auto", len(auto),
		"recommend", len(recommend),
		"executed", sum.Executed,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duplicate", sum.Duplicate,
		"errors", sum.Errors,
	)
	return sum, errs
}

// copyFor runs the per-subscriber pipeline.
func (c *Coordinator) copyFor(ctx context.Context, ev model.TradeEvent, userID string) (Result, error) {
	acct, err := c.accounts.Get(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return ResultIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}
	if !acct.CopyEnabled {
		return ResultIgnored, nil
	}

	size := risk.Size(ev.Size, acct)

	unlock, err := c.locker.Lock(ctx, "user:"+userID)
	if err != nil {
		return "", fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	prev, err := c.ledger.FindTrade(ctx, userID, ev.SourceTradeHash)
	switch {
	case errors.Is(err, store.ErrTradeNotFound):
	case err != nil:
		return "", err
	case prev.Status == model.StatusPending:
		return "", fmt.Errorf("%w: trade %d", ErrUnresolvedTrade, prev.ID)
	default:
		return ResultDuplicate, nil
	}

	// Unresolved attempts may have filled, so they count against the limit.
	confirmed, err := c.ledger.TodaysVolume(ctx, userID)
	if err != nil {
		return "", err
	}
	unresolved, err := c.ledger.UnresolvedVolume(ctx, userID)
	if err != nil {
		return "", err
	}
	today := confirmed.Add(unresolved)

	if err := risk.CheckDailyLimit(today, size, acct.DailyLimit); err != nil {
		return c.skip(ctx, ev, acct, size, today, err)
	}

	rec := model.NewPendingRecord(userID, ev, size)
	id, err := c.ledger.LogTrade(ctx, rec)
	if errors.Is(err, store.ErrDuplicateTrade) {
		return ResultDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	outcome := c.submit(ctx, ev, acct, size)

	if err := c.recordOutcome(ctx, id, outcome); err != nil {
		slog.Error("copy trade outcome not recorded",
			"user", userID,
			"source_trade", ev.SourceTradeHash,
			"trade_id", id,
			"status", outcome.Status(),
			"fields", outcome.Fields(),
		)
		return "", fmt.Errorf("record outcome of trade %d: %w", id, err)
	}
	outcome.Fields().Apply(rec)
	c.broadcast(rec)

	if _, ok := outcome.(model.Executed); ok {
		metrics.MirroredVolume.WithLabelValues(string(ev.Side)).Add(size.InexactFloat64())
		return ResultExecuted, nil
	}
	return ResultFailed, nil
}

// recordOutcome resolves the pending record, retrying transient storage
// errors. It runs detached from ctx so a cancelled event still lands its
// outcome.
func (c *Coordinator) recordOutcome(ctx context.Context, id int64, outcome model.Outcome) error {
	ctx = context.WithoutCancel(ctx)
	wait := c.outcomeBackoff

	var err error
	for attempt := 1; attempt <= c.outcomeAttempts; attempt++ {
		err = c.ledger.UpdateStatus(ctx, id, outcome)
		if err == nil || errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrTradeNotFound) {
			return err
		}
		if attempt == c.outcomeAttempts {
			break
		}
		slog.Warn("retrying copy trade outcome",
			"trade_id", id,
			"attempt", attempt,
			"err", err,
		)
		time.Sleep(wait)
		wait *= 2
	}
	return err
}

func (c *Coordinator) skip(ctx context.Context, ev model.TradeEvent, acct *model.TradingAccount, size, today decimal.Decimal, cause error) (Result, error) {
	code := model.ReasonZeroSize
	msg := fmt.Sprintf("proposed size %s is not positive after applying %s%% copy percentage",
		size.String(), acct.CopyPercentage.String())
	if errors.Is(cause, risk.ErrDailyLimitExceeded) {
		code = model.ReasonDailyLimit
		msg = fmt.Sprintf("daily limit exceeded: %s already copied today + %s proposed > %s limit",
			today.String(), size.String(), acct.DailyLimit.Decimal.String())
		metrics.DailyLimitRejections.Inc()
	}

	rec := model.NewSkippedRecord(acct.UserID, ev, size, code, msg)
	if _, err := c.ledger.LogTrade(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateTrade) {
			return ResultDuplicate, nil
		}
		return "", err
	}

	slog.Info("copy trade skipped",
		"user", acct.UserID,
		"source_trade", ev.SourceTradeHash,
		"reason", code,
		"size", size.String(),
	)
	c.broadcast(rec)
	return ResultSkipped, nil
}

func (c *Coordinator) submit(ctx context.Context, ev model.TradeEvent, acct *model.TradingAccount, size decimal.Decimal) model.Outcome {
	start := time.Now()
	res, err := c.exec.Submit(ctx, execution.OrderRequest{
		UserID:               acct.UserID,
		WalletAddress:        acct.WalletAddress,
		EncryptedCredentials: acct.EncryptedCredentials,
		MarketConditionID:    ev.MarketConditionID,
		Side:                 ev.Side,
		Size:                 size,
		Price:                ev.Price,
		SourceTradeHash:      ev.SourceTradeHash,
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.ExecutionLatency.WithLabelValues("error").Observe(elapsed)
		slog.Warn("order submission failed",
			"user", acct.UserID,
			"source_trade", ev.SourceTradeHash,
			"err", err,
		)
		return model.Failed{Reason: err.Error()}
	}
	metrics.ExecutionLatency.WithLabelValues("ok").Observe(elapsed)
	if res == nil {
		return model.Executed{}
	}

	slog.Info("order submitted",
		"user", acct.UserID,
		"source_trade", ev.SourceTradeHash,
		"order_id", res.OrderID,
		"tx_hash", res.TxHash,
		"size", size.String(),
	)
	return model.Executed{OrderID: res.OrderID, TxHash: res.TxHash}
}

func (c *Coordinator) recommend(ctx context.Context, ev model.TradeEvent, subs []model.Subscription) {
	if c.notifier == nil {
		return
	}
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.UserID)
	}
	err := c.notifier.Notify(ctx, Recommendation{
		Event:   ev,
		Link:    link.ForEvent(ev),
		UserIDs: ids,
	})
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		slog.Warn("recommendation not delivered",
			"source_trade", ev.SourceTradeHash,
			"subscribers", len(ids),
			"err", err,
		)
		return
	}
	metrics.RecommendationsTotal.WithLabelValues("ok").Inc()
}

func (c *Coordinator) broadcast(rec *model.CopyTradeRecord) {
	if c.broadcaster != nil {
		c.broadcaster.BroadcastRecord(*rec)
	}
}
