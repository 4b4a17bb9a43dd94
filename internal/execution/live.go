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

// OrderPlacer is the signed exchange surface the live router needs.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, order domain.Order) (*domain.OrderResult, error)
	Close()
}

// LiveRouter submits real orders and mirrors fills into a shadow ledger.
// The shadow ledger is an operator-declared budget seeded from config, not
// the exchange account: it caps position sizing on our side regardless of
// what the account actually holds.
type LiveRouter struct {
	mu     sync.Mutex
	client OrderPlacer
	ledger *domain.Ledger
}

// NewLiveRouter wires a live router over a signed client.
func NewLiveRouter(cfg *infra.Config, client OrderPlacer) *LiveRouter {
	seed := make(map[string]quant.QtySats, len(cfg.Ledger.Seed))
	for asset, amt := range cfg.Ledger.Seed {
		seed[asset] = quant.ToQtySats(amt)
	}
	return &LiveRouter{client: client, ledger: domain.NewLedger(seed)}
}

// Balance returns the remaining budget for an asset.
func (r *LiveRouter) Balance(asset string) quant.QtySats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Balance(asset)
}

// Snapshot copies the current budget balances.
func (r *LiveRouter) Snapshot() map[string]quant.QtySats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Snapshot()
}

// Route checks the budget, submits the order and books the assumed fill.
// A buy exceeding the remaining quote budget is rejected locally before any
// request is signed.
func (r *LiveRouter) Route(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	quoteAmt := notionalSats(order.Qty, order.Price)

	r.mu.Lock()
	spendAsset, spendAmt := order.QuoteAsset, quoteAmt
	if order.Side == domain.SideSell {
		spendAsset, spendAmt = order.BaseAsset, order.Qty
	}
	if have := r.ledger.Balance(spendAsset); have < spendAmt {
		r.mu.Unlock()
		return nil, domain.NewTradeError(domain.ErrConstraint, "live.route",
			fmt.Errorf("budget exhausted for %s: need %s, have %s", spendAsset, spendAmt, have))
	}
	r.mu.Unlock()

	res, err := r.client.PlaceMarketOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	// MARKET ACK means the order was accepted; assume a full fill at the
	// observed price for budget tracking.
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.Side == domain.SideBuy {
		if derr := r.ledger.Debit(order.QuoteAsset, quoteAmt); derr != nil {
			slog.Warn("budget drifted below fill cost", slog.Any("error", derr))
		} else {
			r.ledger.Credit(order.BaseAsset, order.Qty)
		}
	} else {
		if derr := r.ledger.Debit(order.BaseAsset, order.Qty); derr != nil {
			slog.Warn("budget drifted below fill size", slog.Any("error", derr))
		} else {
			r.ledger.Credit(order.QuoteAsset, quoteAmt)
		}
	}

	return res, nil
}

// Close releases the signed client.
func (r *LiveRouter) Close() {
	r.client.Close()
}
