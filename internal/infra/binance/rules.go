package binance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gobinance "github.com/adshao/go-binance/v2"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
	"epicenter/pkg/quant"
)

// RuleCache memoizes per-symbol trading constraints for the process
// lifetime. Rules never change mid-run on the exchange side often enough
// to matter for this horizon, so first successful fetch wins.
//
// Fetch failure policy: by default the cache fails open and hands back a
// maximally permissive rule WITHOUT memoizing it, so a transient metadata
// outage does not block the run but heals on the next cache miss. An
// unconstrained order can still be rejected by the exchange itself.
// Set trading.rules_fail_closed to surface the fetch error instead.
type RuleCache struct {
	fetch      func(ctx context.Context, symbol string) (domain.TradingRule, error)
	failClosed bool

	mu    sync.Mutex
	rules map[string]domain.TradingRule
}

// NewRuleCache builds a cache backed by the exchange-info endpoint,
// throttled by the shared metadata limiter.
func NewRuleCache(api *gobinance.Client, cfg *infra.Config, limiter *infra.RateLimiter) *RuleCache {
	return &RuleCache{
		fetch: func(ctx context.Context, symbol string) (domain.TradingRule, error) {
			limiter.Wait()
			return fetchRule(ctx, api, symbol)
		},
		failClosed: cfg.Trading.RulesFailClosed,
		rules:      make(map[string]domain.TradingRule),
	}
}

// newRuleCacheWithFetcher is the test seam.
func newRuleCacheWithFetcher(fetch func(context.Context, string) (domain.TradingRule, error), failClosed bool) *RuleCache {
	return &RuleCache{fetch: fetch, failClosed: failClosed, rules: make(map[string]domain.TradingRule)}
}

// RulesFor returns the constraints for a symbol, fetching on first access.
func (rc *RuleCache) RulesFor(ctx context.Context, symbol string) (domain.TradingRule, error) {
	rc.mu.Lock()
	if r, ok := rc.rules[symbol]; ok {
		rc.mu.Unlock()
		return r, nil
	}
	rc.mu.Unlock()

	r, err := rc.fetch(ctx, symbol)
	if err != nil {
		if rc.failClosed {
			return domain.TradingRule{}, domain.NewTradeError(domain.ErrTransient, "binance.rules", err)
		}
		slog.Warn("metadata fetch failed, trading unconstrained",
			slog.String("symbol", symbol), slog.Any("error", err))
		return domain.PermissiveRule(symbol), nil
	}

	rc.mu.Lock()
	rc.rules[symbol] = r
	rc.mu.Unlock()
	return r, nil
}

// Warm prefetches rules for the whole universe at startup so the hot loop
// rarely sees a cache miss. Individual failures are not fatal here; the
// per-symbol policy applies again on first use.
func (rc *RuleCache) Warm(ctx context.Context, symbols []string) {
	for _, s := range symbols {
		if _, err := rc.RulesFor(ctx, s); err != nil {
			slog.Warn("rule prefetch failed", slog.String("symbol", s), slog.Any("error", err))
		}
	}
}

func fetchRule(ctx context.Context, api *gobinance.Client, symbol string) (domain.TradingRule, error) {
	info, err := api.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.TradingRule{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		return ruleFromSymbolInfo(s)
	}
	return domain.TradingRule{}, fmt.Errorf("symbol %s not in exchange info", symbol)
}

// ruleFromSymbolInfo extracts the LOT_SIZE and NOTIONAL constraints.
// Newer listings carry "NOTIONAL", older ones "MIN_NOTIONAL"; both shapes
// appear in live exchange info and are treated identically.
func ruleFromSymbolInfo(s gobinance.Symbol) (domain.TradingRule, error) {
	r := domain.TradingRule{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
		Active:     s.Status == "TRADING",
	}

	for _, f := range s.Filters {
		switch filterField(f, "filterType") {
		case "LOT_SIZE":
			minQty, err := quant.ParseQtySats(filterField(f, "minQty"))
			if err != nil {
				return domain.TradingRule{}, err
			}
			step, err := quant.ParseQtySats(filterField(f, "stepSize"))
			if err != nil {
				return domain.TradingRule{}, err
			}
			r.MinQty, r.StepSize = minQty, step
		case "MIN_NOTIONAL", "NOTIONAL":
			minNotional, err := quant.ParsePriceMicros(filterField(f, "minNotional"))
			if err != nil {
				return domain.TradingRule{}, err
			}
			r.MinNotional = minNotional
		}
	}
	return r, nil
}

func filterField(f map[string]interface{}, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}
