package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig describes the execution service endpoint.
type HTTPConfig struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPExecutor posts orders as JSON to <endpoint>/execute.
type HTTPExecutor struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewHTTPExecutor constructs an executor for cfg.
func NewHTTPExecutor(cfg HTTPConfig) *HTTPExecutor {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPExecutor{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		timeout:  timeout,
		http:     httpClient,
	}
}

type executeResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	TxHash  string `json:"tx_hash"`
	Error   string `json:"error"`
}

// Submit sends one order and waits for the service's verdict.
func (e *HTTPExecutor) Submit(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execution request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read execution response: %w", err)
	}

	var out executeResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode execution response: %w", decodeErr)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &OrderResult{OrderID: out.OrderID, TxHash: out.TxHash}, nil
}
