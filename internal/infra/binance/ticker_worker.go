package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"epicenter/internal/infra"
	"epicenter/pkg/quant"
)

// PriceSink receives last-trade prices as they arrive off the wire.
// Implementations must be safe for calls from the stream goroutine.
type PriceSink interface {
	SetPrice(symbol string, price quant.PriceMicros)
}

// TickerHandler subscribes to the combined 24h ticker stream for a fixed
// symbol set and forwards close prices to the sink. Stale or malformed
// frames are dropped; the feed is last-write-wins by design, so a missed
// tick costs nothing.
type TickerHandler struct {
	wsBase  string
	symbols []string
	sink    PriceSink
}

// NewTickerHandler builds the handler for the configured universe.
func NewTickerHandler(cfg *infra.Config, symbols []string, sink PriceSink) *TickerHandler {
	wsBase := MainnetWSBase
	if cfg.API.Binance.Testnet {
		wsBase = TestnetWSBase
	}
	return &TickerHandler{wsBase: wsBase, symbols: symbols, sink: sink}
}

// NewTickerWorker is the usual way to get a running feed: handler plus the
// reconnecting worker that owns its connection.
func NewTickerWorker(cfg *infra.Config, symbols []string, sink PriceSink) *infra.WSWorker {
	return infra.NewWSWorker(NewTickerHandler(cfg, symbols, sink))
}

// URL builds the multiplexed stream endpoint, e.g.
// wss://.../stream?streams=btcusdt@ticker/ethusdt@ticker
func (h *TickerHandler) URL() string {
	streams := make([]string, len(h.symbols))
	for i, s := range h.symbols {
		streams[i] = strings.ToLower(s) + "@ticker"
	}
	return h.wsBase + "?streams=" + strings.Join(streams, "/")
}

// OnConnect is a no-op: subscription happens via the URL query.
func (h *TickerHandler) OnConnect(_ context.Context, _ *websocket.Conn) error {
	return nil
}

// OnMessage parses one combined-stream frame and publishes the price.
func (h *TickerHandler) OnMessage(_ context.Context, msg []byte) {
	var frame combinedStreamMsg
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Debug("ticker frame unparseable", slog.Any("error", err))
		return
	}
	if frame.Data.Symbol == "" {
		return
	}

	raw := frame.Data.LastPrice
	if raw == "" {
		raw = frame.Data.AltPrice
	}
	px, err := quant.ParsePriceMicros(raw)
	if err != nil || px <= 0 {
		return
	}

	h.sink.SetPrice(frame.Data.Symbol, px)
}

func (h *TickerHandler) ID() string {
	return "binance-ticker"
}
