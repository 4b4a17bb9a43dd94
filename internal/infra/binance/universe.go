package binance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"epicenter/internal/infra"
)

// UniverseEntry is one tradable candidate with its 24h turnover.
type UniverseEntry struct {
	Symbol      string
	QuoteAsset  string
	QuoteVolume decimal.Decimal
	Tradable    bool
}

// DiscoverUniverse ranks spot symbols by 24h quote volume and returns the
// top names that pass the whitelist and liquidity floor. Two calls total:
// one exchange-info snapshot, one bulk 24h-stats snapshot.
func DiscoverUniverse(ctx context.Context, api *gobinance.Client, cfg *infra.Config) ([]string, error) {
	info, err := api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	stats, err := api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("24h stats: %w", err)
	}

	entries := make([]UniverseEntry, 0, len(stats))
	meta := make(map[string]gobinance.Symbol, len(info.Symbols))
	for _, s := range info.Symbols {
		meta[s.Symbol] = s
	}
	for _, st := range stats {
		m, ok := meta[st.Symbol]
		if !ok {
			continue
		}
		vol, err := decimal.NewFromString(st.QuoteVolume)
		if err != nil {
			continue
		}
		entries = append(entries, UniverseEntry{
			Symbol:      st.Symbol,
			QuoteAsset:  m.QuoteAsset,
			QuoteVolume: vol,
			Tradable:    m.Status == "TRADING" && m.IsSpotTradingAllowed,
		})
	}

	ranked := RankUniverse(entries, cfg.Discovery.QuoteWhitelist, cfg.Discovery.MinQuoteVolume, cfg.Discovery.Limit)
	slog.Info("universe discovered",
		slog.Int("candidates", len(entries)),
		slog.Int("selected", len(ranked)),
		slog.Any("symbols", ranked))
	return ranked, nil
}

// RankUniverse filters to tradable whitelisted-quote symbols above the
// volume floor, sorts by 24h quote volume descending and caps the result.
func RankUniverse(entries []UniverseEntry, quoteWhitelist []string, minQuoteVolume float64, limit int) []string {
	allowed := make(map[string]bool, len(quoteWhitelist))
	for _, q := range quoteWhitelist {
		allowed[q] = true
	}
	floor := decimal.NewFromFloat(minQuoteVolume)

	kept := make([]UniverseEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Tradable {
			continue
		}
		if len(allowed) > 0 && !allowed[e.QuoteAsset] {
			continue
		}
		if e.QuoteVolume.LessThan(floor) {
			continue
		}
		kept = append(kept, e)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].QuoteVolume.GreaterThan(kept[j].QuoteVolume)
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	out := make([]string, len(kept))
	for i, e := range kept {
		out[i] = e.Symbol
	}
	return out
}
