package execution

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// PaperExecutor fills every order without touching a venue. It is used
// when no execution service is configured.
type PaperExecutor struct{}

// NewPaperExecutor returns a dry-run executor.
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

// Submit returns a paper order id and a synthetic transaction hash.
func (PaperExecutor) Submit(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.New()
	res := &OrderResult{
		OrderID: "paper-" + id.String(),
		TxHash:  "0x" + strings.ReplaceAll(id.String(), "-", ""),
	}
	slog.Info("paper order filled",
		"user", req.UserID,
		"market", req.MarketConditionID,
		"side", req.Side,
		"size", req.Size.String(),
		"price", req.Price.String(),
		"order_id", res.OrderID,
	)
	return res, nil
}
