// Package execution submits mirrored orders to the trading venue through
// an external execution service.
package execution

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

// ErrRejected is returned when the execution service answers but refuses
// the order.
var ErrRejected = errors.New("execution: order rejected")

// OrderRequest is everything the execution service needs to place one
// mirrored order on the subscriber's wallet.
type OrderRequest struct {
	UserID               string          `json:"user_id"`
	WalletAddress        string          `json:"wallet_address"`
	EncryptedCredentials string          `json:"encrypted_credentials"`
	MarketConditionID    string          `json:"market_condition_id"`
	Side                 model.Side      `json:"side"`
	Size                 decimal.Decimal `json:"size"`
	Price                decimal.Decimal `json:"price"`
	SourceTradeHash      string          `json:"source_trade_hash"`
}

// OrderResult identifies a submitted order. TxHash is empty when the venue
// accepted the order without an on-chain confirmation.
type OrderResult struct {
	OrderID string `json:"order_id"`
	TxHash  string `json:"tx_hash"`
}

// Executor submits one order. Implementations own their timeouts; a
// timeout surfaces as an error.
type Executor interface {
	Submit(ctx context.Context, req OrderRequest) (*OrderResult, error)
}
