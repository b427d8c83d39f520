// Package api provides the HTTP handlers for subscriptions, trading
// accounts, the copy-trade ledger and source-trade event intake.
//
// All monetary values use shopspring/decimal, never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/account"
	"github.com/ericc59/polybot-sub002/internal/copytrade"
	"github.com/ericc59/polybot-sub002/internal/ledger"
	"github.com/ericc59/polybot-sub002/internal/link"
	"github.com/ericc59/polybot-sub002/internal/metrics"
	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/store"
	"github.com/ericc59/polybot-sub002/internal/subscription"
)

// Handler serves the public operation surface.
type Handler struct {
	registry *subscription.Registry
	accounts *account.Service
	ledger   *ledger.Ledger
	coord    *copytrade.Coordinator
}

// NewHandler creates the API handler.
func NewHandler(registry *subscription.Registry, accounts *account.Service, l *ledger.Ledger, coord *copytrade.Coordinator) *Handler {
	return &Handler{
		registry: registry,
		accounts: accounts,
		ledger:   l,
		coord:    coord,
	}
}

// Mount registers the request/response routes under r, which is expected
// to be the /api/v1 sub-router. The WebSocket stream is mounted separately
// through WSHub.HandleWS.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/subscriptions", h.Subscribe)
	r.Get("/subscriptions/{userID}", h.ListSubscriptions)
	r.Delete("/subscriptions/{userID}/{wallet}", h.Unsubscribe)

	r.Put("/accounts/{userID}", h.SaveAccount)
	r.Get("/accounts/{userID}", h.GetAccount)
	r.Patch("/accounts/{userID}/settings", h.UpdateSettings)
	r.Delete("/accounts/{userID}", h.DeleteAccount)

	r.Post("/trades", h.LogTrade)
	r.Patch("/trades/id/{tradeID}/status", h.UpdateStatus)
	r.Get("/trades/{userID}", h.GetHistory)
	r.Get("/trades/{userID}/volume/today", h.GetTodaysVolume)
	r.Get("/trades/{userID}/totals/today", h.GetDailyTotals)

	r.Post("/events", h.SubmitEvent)
	r.Get("/links", h.GenerateLink)
}

// --- Request/Response types ---

// SubscribeRequest is the JSON body for POST /subscriptions.
type SubscribeRequest struct {
	UserID string     `json:"user_id"`
	Wallet string     `json:"wallet"`
	Mode   model.Mode `json:"mode"`
}

// SaveAccountRequest is the JSON body for PUT /accounts/{userID}.
type SaveAccountRequest struct {
	WalletAddress        string `json:"wallet_address"`
	EncryptedCredentials string `json:"encrypted_credentials"`
}

// LogTradeRequest is the JSON body for POST /trades.
type LogTradeRequest struct {
	UserID            string           `json:"user_id"`
	SourceWallet      string           `json:"source_wallet"`
	SourceTradeHash   string           `json:"source_trade_hash"`
	MarketConditionID string           `json:"market_condition_id"`
	MarketTitle       string           `json:"market_title"`
	Side              model.Side       `json:"side"`
	Size              decimal.Decimal  `json:"size"`
	Price             decimal.Decimal  `json:"price"`
	Status            model.Status     `json:"status"` // empty → pending
	OrderID           *string          `json:"order_id,omitempty"`
	TxHash            *string          `json:"tx_hash,omitempty"`
	ErrorMessage      *string          `json:"error_message,omitempty"`
	ReasonCode        model.ReasonCode `json:"reason_code,omitempty"`
}

// UpdateStatusRequest is the JSON body for PATCH /trades/id/{tradeID}/status.
type UpdateStatusRequest struct {
	Status       model.Status `json:"status"` // executed or failed
	OrderID      string       `json:"order_id,omitempty"`
	TxHash       string       `json:"tx_hash,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// VolumeResponse is returned from GET /trades/{userID}/volume/today.
type VolumeResponse struct {
	UserID string          `json:"user_id"`
	Volume decimal.Decimal `json:"volume"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// --- Subscriptions ---

// Subscribe handles POST /api/v1/subscriptions
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.registry.Subscribe(r.Context(), req.UserID, req.Wallet, req.Mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("subscribed", "user", sub.UserID, "wallet", sub.SourceWallet, "mode", sub.Mode)
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{userID}/{wallet}
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Unsubscribe(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "wallet")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ListSubscriptions handles GET /api/v1/subscriptions/{userID}
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.registry.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// --- Accounts ---

// SaveAccount handles PUT /api/v1/accounts/{userID}
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	var req SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := h.accounts.Save(r.Context(), chi.URLParam(r, "userID"), req.WalletAddress, req.EncryptedCredentials)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("trading account saved", "user", acct.UserID, "wallet", acct.WalletAddress)
	writeJSON(w, http.StatusOK, acct)
}

// GetAccount handles GET /api/v1/accounts/{userID}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// UpdateSettings handles PATCH /api/v1/accounts/{userID}/settings
// Only fields present in the body change; an explicit null clears a cap.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := h.accounts.UpdateSettings(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("trading settings updated",
		"user", acct.UserID,
		"copy_enabled", acct.CopyEnabled,
		"copy_percentage", acct.CopyPercentage.String(),
	)
	writeJSON(w, http.StatusOK, acct)
}

// DeleteAccount handles DELETE /api/v1/accounts/{userID}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// --- Ledger ---

// LogTrade handles POST /api/v1/trades
func (h *Handler) LogTrade(w http.ResponseWriter, r *http.Request) {
	var req LogTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := &model.CopyTradeRecord{
		UserID:            req.UserID,
		SourceWallet:      req.SourceWallet,
		SourceTradeHash:   req.SourceTradeHash,
		MarketConditionID: req.MarketConditionID,
		MarketTitle:       req.MarketTitle,
		Side:              req.Side,
		Size:              req.Size,
		Price:             req.Price,
		Status:            req.Status,
		OrderID:           req.OrderID,
		TxHash:            req.TxHash,
		ErrorMessage:      req.ErrorMessage,
		ReasonCode:        req.ReasonCode,
	}
	if _, err := h.ledger.LogTrade(r.Context(), rec); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetHistory handles GET /api/v1/trades/{userID}?limit=N
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.ledger.GetHistory(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// UpdateStatus handles PATCH /api/v1/trades/id/{tradeID}/status
// Only pending records can be resolved, and only to executed or failed.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "trade id must be a positive integer", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var outcome model.Outcome
	switch model.Status(strings.ToLower(string(req.Status))) {
	case model.StatusExecuted:
		outcome = model.Executed{OrderID: req.OrderID, TxHash: req.TxHash}
	case model.StatusFailed:
		outcome = model.Failed{Reason: req.ErrorMessage}
	default:
		writeError(w, "status must be executed or failed", http.StatusBadRequest)
		return
	}

	if err := h.ledger.UpdateStatus(r.Context(), id, outcome); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetTodaysVolume handles GET /api/v1/trades/{userID}/volume/today
func (h *Handler) GetTodaysVolume(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	vol, err := h.ledger.TodaysVolume(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VolumeResponse{UserID: userID, Volume: vol})
}

// GetDailyTotals handles GET /api/v1/trades/{userID}/totals/today
func (h *Handler) GetDailyTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.DailyTotals(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// --- Events and links ---

// EventErrorResponse is returned when some subscribers of an event could
// not be processed. The summary still covers every subscriber that was.
type EventErrorResponse struct {
	Error string `json:"error"`
	*copytrade.Summary
}

// SubmitEvent handles POST /api/v1/events
// Runs the coordinator synchronously and returns its summary.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.TradeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	metrics.EventsTotal.WithLabelValues("http").Inc()
	sum, err := h.coord.Process(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case sum == nil:
		writeServiceError(w, err)
	case errors.Is(err, copytrade.ErrUnresolvedTrade):
		slog.Warn("event has unresolved copy trades", "source_trade", ev.SourceTradeHash, "err", err)
		writeJSON(w, http.StatusConflict, EventErrorResponse{Error: copytrade.ErrUnresolvedTrade.Error(), Summary: sum})
	default:
		slog.Error("event partially processed", "source_trade", ev.SourceTradeHash, "err", err)
		writeJSON(w, http.StatusInternalServerError, EventErrorResponse{Error: "internal error", Summary: sum})
	}
}

// GenerateLink handles GET /api/v1/links?slug=
func (h *Handler) GenerateLink(w http.ResponseWriter, r *http.Request) {
	url := link.Generate(r.URL.Query().Get("slug"))
	var resp struct {
		URL *string `json:"url"`
	}
	if url != "" {
		resp.URL = &url
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain errors to HTTP status codes. Anything
// unrecognized is a storage failure and is not echoed to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidMode),
		errors.Is(err, model.ErrInvalidSide),
		errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, model.ErrInvalidSettings),
		errors.Is(err, subscription.ErrMissingUser),
		errors.Is(err, subscription.ErrMissingWallet),
		errors.Is(err, account.ErrMissingUser),
		errors.Is(err, account.ErrMissingWallet),
		errors.Is(err, account.ErrMissingCredentials),
		errors.Is(err, ledger.ErrInvalidRecord):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTradeNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicateTrade):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
