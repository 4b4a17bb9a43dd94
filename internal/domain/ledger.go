package domain

import (
	"fmt"
	"sort"

	"epicenter/pkg/quant"
)

// Ledger tracks per-asset balances. Quantities are QtySats for every asset,
// including quote assets; the scale is uniform so accounting stays exact.
//
// Not safe for concurrent use; the owning router serializes access.
type Ledger struct {
	balances map[string]quant.QtySats
}

// NewLedger creates a ledger seeded with the given balances.
func NewLedger(seed map[string]quant.QtySats) *Ledger {
	l := &Ledger{balances: make(map[string]quant.QtySats, len(seed))}
	for asset, amt := range seed {
		l.balances[asset] = amt
	}
	return l
}

// Balance returns the current balance for an asset (zero if unknown).
func (l *Ledger) Balance(asset string) quant.QtySats {
	return l.balances[asset]
}

// Credit adds amount to an asset balance.
func (l *Ledger) Credit(asset string, amount quant.QtySats) {
	if amount < 0 {
		panic(fmt.Sprintf("ledger: negative credit %d %s", amount, asset))
	}
	l.balances[asset] += amount
}

// Debit removes amount from an asset balance. Returns a constraint error if
// the balance is insufficient: the caller must reject the trade before
// routing, a ledger balance never goes negative.
func (l *Ledger) Debit(asset string, amount quant.QtySats) error {
	if amount < 0 {
		panic(fmt.Sprintf("ledger: negative debit %d %s", amount, asset))
	}
	if l.balances[asset] < amount {
		return NewTradeError(ErrConstraint, "ledger.debit",
			fmt.Errorf("insufficient %s: need %s, have %s", asset, amount, l.balances[asset]))
	}
	l.balances[asset] -= amount
	return nil
}

// Snapshot returns a copy of all balances.
func (l *Ledger) Snapshot() map[string]quant.QtySats {
	out := make(map[string]quant.QtySats, len(l.balances))
	for asset, amt := range l.balances {
		out[asset] = amt
	}
	return out
}

// Assets returns the asset names in sorted order, for stable logging.
func (l *Ledger) Assets() []string {
	out := make([]string, 0, len(l.balances))
	for asset := range l.balances {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// ValueIn values the whole ledger in the reference asset using the given
// price map, keyed "{asset}{ref}" (e.g. "BTCUSDT"). Assets with no known
// conversion contribute nothing.
func (l *Ledger) ValueIn(ref string, prices map[string]quant.PriceMicros) quant.PriceMicros {
	var total quant.PriceMicros
	for asset, amt := range l.balances {
		if amt == 0 {
			continue
		}
		if asset == ref {
			total += quant.Notional(amt, quant.PriceScale)
			continue
		}
		if px, ok := prices[asset+ref]; ok && px > 0 {
			total += quant.Notional(amt, px)
		}
	}
	return total
}
