package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
	"epicenter/pkg/quant"
)

// PriceSource answers last-price lookups for portfolio valuation.
type PriceSource interface {
	Price(symbol string) (quant.PriceMicros, bool)
}

// PaperRouter simulates fills against an in-memory ledger. Every order is
// assumed to fill completely at the observed price; a buy that the quote
// balance cannot cover is rejected before any booking happens.
type PaperRouter struct {
	mu       sync.Mutex
	ledger   *domain.Ledger
	refAsset string
	prices   PriceSource
	orderSeq int64
}

// NewPaperRouter seeds the simulated ledger from configuration.
func NewPaperRouter(cfg *infra.Config, prices PriceSource) *PaperRouter {
	seed := make(map[string]quant.QtySats, len(cfg.Ledger.Seed))
	for asset, amt := range cfg.Ledger.Seed {
		seed[asset] = quant.ToQtySats(amt)
	}
	return &PaperRouter{
		ledger:   domain.NewLedger(seed),
		refAsset: cfg.Ledger.RefAsset,
		prices:   prices,
	}
}

// Balance returns the simulated balance for an asset.
func (r *PaperRouter) Balance(asset string) quant.QtySats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Balance(asset)
}

// Snapshot copies the current simulated balances.
func (r *PaperRouter) Snapshot() map[string]quant.QtySats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Snapshot()
}

// Valuation prices the whole simulated portfolio in the reference asset.
func (r *PaperRouter) Valuation() quant.PriceMicros {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.ValueIn(r.refAsset, r.priceMap())
}

// Route books the order against the ledger. Returns a constraint error when
// the spending balance cannot cover it; the ledger is untouched in that case.
func (r *PaperRouter) Route(_ context.Context, order domain.Order) (*domain.OrderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	quoteAmt := notionalSats(order.Qty, order.Price)
	before := r.ledger.ValueIn(r.refAsset, r.priceMap())

	switch order.Side {
	case domain.SideBuy:
		if err := r.ledger.Debit(order.QuoteAsset, quoteAmt); err != nil {
			return nil, err
		}
		r.ledger.Credit(order.BaseAsset, order.Qty)
	case domain.SideSell:
		if err := r.ledger.Debit(order.BaseAsset, order.Qty); err != nil {
			return nil, err
		}
		r.ledger.Credit(order.QuoteAsset, quoteAmt)
	default:
		return nil, domain.NewTradeError(domain.ErrConstraint, "paper.route",
			fmt.Errorf("unknown side %q", order.Side))
	}

	after := r.ledger.ValueIn(r.refAsset, r.priceMap())
	r.orderSeq++

	slog.Info("paper fill",
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("qty", order.Qty.WireString()),
		slog.String("price", order.Price.String()),
		slog.String("portfolio", after.String()))

	return &domain.OrderResult{
		OrderID: r.orderSeq,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     order.Qty,
		Price:   order.Price,
		DryRun:  true,
		PnLEst:  after - before,
	}, nil
}

// Close is a no-op; the paper router holds no external resources.
func (r *PaperRouter) Close() {}

// priceMap snapshots conversion prices for valuation, keyed "{asset}{ref}".
// Caller holds the lock.
func (r *PaperRouter) priceMap() map[string]quant.PriceMicros {
	out := make(map[string]quant.PriceMicros)
	if r.prices == nil {
		return out
	}
	for _, asset := range r.ledger.Assets() {
		if asset == r.refAsset {
			continue
		}
		if px, ok := r.prices.Price(asset + r.refAsset); ok && px > 0 {
			out[asset+r.refAsset] = px
		}
	}
	return out
}

// notionalSats converts an order's quote-side value into qty scale so it can
// be booked against a ledger balance.
func notionalSats(qty quant.QtySats, price quant.PriceMicros) quant.QtySats {
	return quant.QtySats(quant.Notional(qty, price)) * (quant.QtyScale / quant.PriceScale)
}
