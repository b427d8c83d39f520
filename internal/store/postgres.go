package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate ensures that all required tables and indexes exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
  user_id TEXT NOT NULL,
  source_wallet TEXT NOT NULL,
  mode TEXT NOT NULL CHECK (mode IN ('recommend','auto')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, source_wallet)
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_wallet ON subscriptions(source_wallet);

CREATE TABLE IF NOT EXISTS trading_accounts (
  user_id TEXT PRIMARY KEY,
  wallet_address TEXT NOT NULL,
  encrypted_credentials TEXT NOT NULL,
  copy_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  copy_percentage NUMERIC NOT NULL DEFAULT 10,
  max_trade_size NUMERIC,
  daily_limit NUMERIC,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS copy_trades (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NOT NULL,
  source_wallet TEXT NOT NULL,
  source_trade_hash TEXT NOT NULL,
  market_condition_id TEXT NOT NULL,
  market_title TEXT NOT NULL DEFAULT '',
  side TEXT NOT NULL CHECK (side IN ('BUY','SELL')),
  size NUMERIC NOT NULL,
  price NUMERIC NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','executed','failed','skipped')),
  order_id TEXT,
  tx_hash TEXT,
  error_message TEXT,
  reason_code TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (user_id, source_trade_hash)
);
CREATE INDEX IF NOT EXISTS idx_copy_trades_user_id ON copy_trades(user_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_copy_trades_confirmed ON copy_trades(user_id, created_at)
  WHERE status = 'executed' AND tx_hash IS NOT NULL;
`

// --- Subscriptions ---

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, source_wallet, mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id, source_wallet) DO UPDATE SET
		   mode = EXCLUDED.mode,
		   updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		sub.UserID, sub.SourceWallet, string(sub.Mode), sub.UpdatedAt,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, userID, wallet string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND source_wallet = $2`, userID, wallet)
	return err
}

func (s *PostgresStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, source_wallet, mode, created_at, updated_at
		 FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (s *PostgresStore) ListSubscriptionsByWallet(ctx context.Context, wallet string) ([]model.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, source_wallet, mode, created_at, updated_at
		 FROM subscriptions WHERE source_wallet = $1`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// --- Accounts ---

const accountColumns = `user_id, wallet_address, encrypted_credentials, copy_enabled,
	copy_percentage::TEXT, max_trade_size::TEXT, daily_limit::TEXT, created_at, updated_at`

func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.TradingAccount) (*model.TradingAccount, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO trading_accounts (user_id, wallet_address, encrypted_credentials, copy_enabled,
		                               copy_percentage, max_trade_size, daily_limit, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)
		 ON CONFLICT (user_id) DO UPDATE SET
		   wallet_address = EXCLUDED.wallet_address,
		   encrypted_credentials = EXCLUDED.encrypted_credentials,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+accountColumns,
		a.UserID, a.WalletAddress, a.EncryptedCredentials, a.CopyEnabled,
		a.CopyPercentage.String(), nullDecimalArg(a.MaxTradeSize), nullDecimalArg(a.DailyLimit),
		a.CreatedAt, a.UpdatedAt,
	)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("save account %s: %w", a.UserID, err)
	}
	return acct, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.TradingAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM trading_accounts WHERE user_id = $1`, userID)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	return acct, nil
}

func (s *PostgresStore) UpdateAccountSettings(ctx context.Context, userID string, p model.SettingsPatch, now time.Time) (*model.TradingAccount, error) {
	var pct *string
	if p.CopyPercentage != nil {
		v := p.CopyPercentage.String()
		pct = &v
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE trading_accounts SET
		   copy_enabled = COALESCE($2, copy_enabled),
		   copy_percentage = COALESCE($3::NUMERIC, copy_percentage),
		   max_trade_size = CASE WHEN $4 THEN $5::NUMERIC ELSE max_trade_size END,
		   daily_limit = CASE WHEN $6 THEN $7::NUMERIC ELSE daily_limit END,
		   updated_at = $8
		 WHERE user_id = $1
		 RETURNING `+accountColumns,
		userID, p.CopyEnabled, pct,
		p.MaxTradeSize.Set, nullDecimalArg(p.MaxTradeSize.Value),
		p.DailyLimit.Set, nullDecimalArg(p.DailyLimit.Value),
		now,
	)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update settings %s: %w", userID, err)
	}
	return acct, nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM trading_accounts WHERE user_id = $1`, userID)
	return err
}

// --- Ledger ---

const tradeColumns = `id, user_id, source_wallet, source_trade_hash, market_condition_id, market_title,
	side, size::TEXT, price::TEXT, status, order_id, tx_hash, error_message, reason_code, created_at`

// InsertCopyTrade relies on the (user_id, source_trade_hash) unique
// constraint: a conflicting insert returns no row.
func (s *PostgresStore) InsertCopyTrade(ctx context.Context, r *model.CopyTradeRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO copy_trades (user_id, source_wallet, source_trade_hash, market_condition_id, market_title,
		                          side, size, price, status, order_id, tx_hash, error_message, reason_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (user_id, source_trade_hash) DO NOTHING
		 RETURNING id`,
		r.UserID, r.SourceWallet, r.SourceTradeHash, r.MarketConditionID, r.MarketTitle,
		string(r.Side), r.Size.String(), r.Price.String(), string(r.Status),
		r.OrderID, r.TxHash, r.ErrorMessage, string(r.ReasonCode), r.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicateTrade
	}
	if err != nil {
		return 0, fmt.Errorf("insert copy trade: %w", err)
	}
	r.ID = id
	return id, nil
}

// UpdateCopyTradeStatus guards the transition in the same statement.
func (s *PostgresStore) UpdateCopyTradeStatus(ctx context.Context, id int64, u model.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE copy_trades SET
		   status = $2, order_id = $3, tx_hash = $4, error_message = $5, reason_code = $6
		 WHERE id = $1 AND status = 'pending'`,
		id, string(u.Status), u.OrderID, u.TxHash, u.ErrorMessage, string(u.ReasonCode),
	)
	if err != nil {
		return fmt.Errorf("update copy trade %d: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM copy_trades WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update copy trade %d: %w", id, err)
	}
	if !exists {
		return ErrTradeNotFound
	}
	return ErrInvalidTransition
}

func (s *PostgresStore) ListCopyTrades(ctx context.Context, userID string, limit int) ([]model.CopyTradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+`
		 FROM copy_trades WHERE user_id = $1
		 ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCopyTrades(rows)
}

func (s *PostgresStore) FindCopyTrade(ctx context.Context, userID, sourceTradeHash string) (*model.CopyTradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+`
		 FROM copy_trades WHERE user_id = $1 AND source_trade_hash = $2`,
		userID, sourceTradeHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanCopyTrades(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrTradeNotFound
	}
	return &recs[0], nil
}

func (s *PostgresStore) SumConfirmedVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(size), 0)::TEXT
		 FROM copy_trades
		 WHERE user_id = $1
		   AND status = 'executed'
		   AND tx_hash IS NOT NULL AND tx_hash <> ''
		   AND created_at >= $2 AND created_at < $3`,
		userID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum confirmed volume %s: %w", userID, err)
	}
	return decimal.NewFromString(total)
}

func (s *PostgresStore) SumPendingVolume(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(size), 0)::TEXT
		 FROM copy_trades
		 WHERE user_id = $1 AND status = 'pending'
		   AND created_at >= $2 AND created_at < $3`,
		userID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending volume %s: %w", userID, err)
	}
	return decimal.NewFromString(total)
}

func (s *PostgresStore) CountCopyTradesByStatus(ctx context.Context, userID string, from, to time.Time) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*)::INT
		 FROM copy_trades
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY status`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

// --- Scanning helpers ---

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSubscriptions(rows pgxRows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var mode string
		if err := rows.Scan(&sub.UserID, &sub.SourceWallet, &mode, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		sub.Mode = model.Mode(mode)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanAccount(row pgx.Row) (*model.TradingAccount, error) {
	var a model.TradingAccount
	var pctS string
	var maxS, limitS *string

	if err := row.Scan(&a.UserID, &a.WalletAddress, &a.EncryptedCredentials, &a.CopyEnabled,
		&pctS, &maxS, &limitS, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	a.CopyPercentage, _ = decimal.NewFromString(pctS)
	a.MaxTradeSize = parseNullDecimal(maxS)
	a.DailyLimit = parseNullDecimal(limitS)
	return &a, nil
}

func scanCopyTrades(rows pgxRows) ([]model.CopyTradeRecord, error) {
	var records []model.CopyTradeRecord
	for rows.Next() {
		var r model.CopyTradeRecord
		var side, status, reason, sizeS, priceS string

		if err := rows.Scan(&r.ID, &r.UserID, &r.SourceWallet, &r.SourceTradeHash, &r.MarketConditionID,
			&r.MarketTitle, &side, &sizeS, &priceS, &status,
			&r.OrderID, &r.TxHash, &r.ErrorMessage, &reason, &r.CreatedAt); err != nil {
			return nil, err
		}

		r.Side = model.Side(side)
		r.Status = model.Status(status)
		r.ReasonCode = model.ReasonCode(reason)
		r.Size, _ = decimal.NewFromString(sizeS)
		r.Price, _ = decimal.NewFromString(priceS)

		records = append(records, r)
	}
	return records, rows.Err()
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
