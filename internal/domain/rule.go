package domain

import (
	"epicenter/pkg/quant"
)

// TradingRule holds the exchange constraints for one symbol.
// Fetched once per symbol and never mutated afterwards.
type TradingRule struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	MinQty      quant.QtySats
	StepSize    quant.QtySats
	MinNotional quant.PriceMicros
	Active      bool
}

// PermissiveRule returns a rule with zero minimums for the given symbol.
// Used when the metadata fetch fails and the cache is configured to fail
// open: trading proceeds unconstrained, which can let an undersized order
// through to the exchange. The base/quote split falls back to a suffix
// guess so the ledger still has assets to book against.
func PermissiveRule(symbol string) TradingRule {
	base, quote := splitSymbol(symbol)
	return TradingRule{
		Symbol:     symbol,
		BaseAsset:  base,
		QuoteAsset: quote,
		Active:     true,
	}
}

// splitSymbol guesses base/quote from a concatenated pair name.
// Known quote suffixes only; anything else splits before the last 3 runes.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"} {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3], symbol[len(symbol)-3:]
	}
	return symbol, ""
}

// Enforce adjusts a desired order quantity to satisfy the rule at the given
// price. Returns the adjusted quantity and true, or 0 and false when no
// viable quantity exists. Pure function: no I/O, deterministic.
//
// Steps: floor to a StepSize multiple (integer-domain, no float drift),
// raise to the smallest step multiple at or above MinQty if that dropped
// below it, then if the notional is still below MinNotional raise to the
// smallest step-aligned quantity that meets it. The result is always both
// step-aligned and at least MinQty, even when MinQty is not itself a step
// multiple.
func Enforce(desired quant.QtySats, price quant.PriceMicros, r TradingRule) (quant.QtySats, bool) {
	if price <= 0 {
		return 0, false
	}

	q := quant.FloorToStep(desired, r.StepSize)
	if q < r.MinQty {
		q = quant.CeilToStep(r.MinQty, r.StepSize)
	}
	if q <= 0 {
		return 0, false
	}

	if r.MinNotional > 0 && quant.Notional(q, price) < r.MinNotional {
		need := quant.QuoteToQtyCeil(r.MinNotional, price)
		if need < r.MinQty {
			need = r.MinQty
		}
		q = quant.CeilToStep(need, r.StepSize)
		if q <= 0 || quant.Notional(q, price) < r.MinNotional {
			return 0, false
		}
	}

	return q, true
}
