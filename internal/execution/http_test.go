package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericc59/polybot-sub002/internal/model"
)

func testOrder() OrderRequest {
	return OrderRequest{
		UserID:               "u1",
		WalletAddress:        "0xabc",
		EncryptedCredentials: "enc",
		MarketConditionID:    "cond-1",
		Side:                 model.SideBuy,
		Size:                 decimal.NewFromInt(15),
		Price:                decimal.NewFromFloat(0.42),
		SourceTradeHash:      "0xhash",
	}
}

func TestHTTPExecutor_Success(t *testing.T) {
	var got OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"order_id":"order-1","tx_hash":"tx-1"}`))
	}))
	defer srv.Close()

	ex := NewHTTPExecutor(HTTPConfig{Endpoint: srv.URL + "/"})
	res, err := ex.Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.OrderID != "order-1" || res.TxHash != "tx-1" {
		t.Errorf("unexpected result %+v", res)
	}
	if got.WalletAddress != "0xabc" || !got.Size.Equal(decimal.NewFromInt(15)) {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestHTTPExecutor_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"insufficient balance"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(HTTPConfig{Endpoint: srv.URL}).Submit(context.Background(), testOrder())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Errorf("expected reason in error, got %v", err)
	}
}

func TestHTTPExecutor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "venue unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(HTTPConfig{Endpoint: srv.URL}).Submit(context.Background(), testOrder())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "venue unavailable") {
		t.Errorf("unexpected error text %v", err)
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ex := NewHTTPExecutor(HTTPConfig{Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	if _, err := ex.Submit(context.Background(), testOrder()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPaperExecutor(t *testing.T) {
	res, err := NewPaperExecutor().Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.OrderID, "paper-") {
		t.Errorf("unexpected order id %q", res.OrderID)
	}
	if !strings.HasPrefix(res.TxHash, "0x") || len(res.TxHash) != 34 {
		t.Errorf("unexpected tx hash %q", res.TxHash)
	}
}
