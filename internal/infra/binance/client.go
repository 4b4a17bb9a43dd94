package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
)

// Client submits signed orders to the exchange. Public market data goes
// through the SDK; the order path is built here so the signature, nonce and
// error classification stay explicit and testable.
type Client struct {
	baseURL string
	apiKey  string
	signer  *Signer
	http    *http.Client
	breaker *infra.CircuitBreaker
}

// NewClient creates an order client.
func NewClient(cfg *infra.Config) *Client {
	baseURL := MainnetURL
	if cfg.API.Binance.Testnet {
		baseURL = TestnetURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.API.Binance.APIKey,
		signer:  NewSigner(cfg.API.Binance.SecretKey),
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: infra.NewOrderBreaker(),
	}
}

// Close wipes key material.
func (c *Client) Close() {
	c.signer.Wipe()
}

// PlaceMarketOrder submits a MARKET order and returns the exchange ACK.
// Errors are kind-tagged: auth rejections trip the circuit breaker so a
// misconfigured signature stops the submission stream instead of hammering
// the endpoint.
func (c *Client) PlaceMarketOrder(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	if !c.breaker.Allow() {
		return nil, domain.NewTradeError(domain.ErrTransient, "binance.order",
			fmt.Errorf("order endpoint suspended (breaker %s)", c.breaker.State()))
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", order.Qty.WireString())
	query := c.signer.Sign(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v3/order?"+query, nil)
	if err != nil {
		return nil, domain.NewTradeError(domain.ErrTransient, "binance.order", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, domain.NewTradeError(domain.ErrTransient, "binance.order", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, domain.NewTradeError(domain.ErrTransient, "binance.order", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind, werr := classifyOrderError(resp.StatusCode, body)
		c.breaker.RecordFailure()
		return nil, domain.NewTradeError(kind, "binance.order", werr)
	}

	var ack orderResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		c.breaker.RecordFailure()
		return nil, domain.NewTradeError(domain.ErrTransient, "binance.order",
			fmt.Errorf("unparseable ACK: %w", err))
	}

	c.breaker.RecordSuccess()
	slog.Info("order accepted",
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("qty", order.Qty.WireString()),
		slog.Int64("order_id", ack.OrderID))

	return &domain.OrderResult{
		OrderID:  ack.OrderID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Qty:      order.Qty,
		Price:    order.Price,
		UnixMill: ack.TransactTime,
	}, nil
}

// classifyOrderError maps an exchange error payload onto the retry taxonomy.
func classifyOrderError(status int, body []byte) (domain.ErrKind, error) {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	err := fmt.Errorf("http %d: code=%d msg=%q", status, apiErr.Code, apiErr.Msg)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuth, err
	case isAuthCode(apiErr.Code):
		return domain.ErrAuth, err
	case isFilterCode(apiErr.Code):
		return domain.ErrConstraint, err
	default:
		return domain.ErrTransient, err
	}
}

// isAuthCode covers signature/key rejections: retrying cannot help.
func isAuthCode(code int) bool {
	switch code {
	case -1022, -2014, -2015: // bad signature, bad API key format, rejected key/IP
		return true
	}
	return false
}

// isFilterCode covers exchange-rule rejections (LOT_SIZE, NOTIONAL, balance).
func isFilterCode(code int) bool {
	switch code {
	case -1013, -2010: // filter failure, insufficient balance / rejected new order
		return true
	}
	return false
}
