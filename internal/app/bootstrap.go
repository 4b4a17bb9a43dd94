package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"

	"epicenter/internal/domain"
	"epicenter/internal/engine"
	"epicenter/internal/execution"
	"epicenter/internal/infra"
	"epicenter/internal/infra/binance"
	"epicenter/internal/storage"
	"epicenter/internal/strategy"
	"epicenter/pkg/quant"
)

// App owns the wired components for one run.
type App struct {
	cfg     *infra.Config
	symbols []string

	board   *engine.PriceBoard
	worker  *infra.WSWorker
	eng     *engine.Engine
	rules   *binance.RuleCache
	router  execution.Router
	journal *storage.Journal

	startedAt time.Time
}

// New loads configuration and wires every component. Universe discovery
// runs here when no explicit symbol list is configured, so a misconfigured
// or empty universe fails before anything connects.
func New(ctx context.Context, configPath string) (*App, error) {
	// A missing .env file is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(infra.NewLogger(cfg))

	gobinance.UseTestnet = cfg.API.Binance.Testnet
	api := gobinance.NewClient(cfg.API.Binance.APIKey, "")

	symbols := cfg.Trading.Symbols
	if len(symbols) == 0 {
		discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		symbols, err = binance.DiscoverUniverse(discoverCtx, api, cfg)
		if err != nil {
			return nil, domain.NewTradeError(domain.ErrTransient, "app.discovery", err)
		}
	}
	if len(symbols) == 0 {
		return nil, domain.NewTradeError(domain.ErrConfig, "app.discovery",
			fmt.Errorf("universe is empty: no symbols configured and discovery found none"))
	}

	board := engine.NewPriceBoard(symbols)

	router, err := execution.NewRouter(cfg, board)
	if err != nil {
		return nil, err
	}

	journal, err := storage.NewJournal(cfg.Journal.Dir)
	if err != nil {
		router.Close()
		return nil, err
	}

	rules := binance.NewRuleCache(api, cfg, infra.NewMetadataLimiter())
	gate := infra.NewQualityGate(cfg)

	eng := engine.NewEngine(cfg, symbols, board, gate, rules, router, journal, defaultStrategies)

	slog.Info("🚀 starting",
		slog.String("app", cfg.App.Name),
		slog.String("mode", cfg.Trading.Mode),
		slog.Any("symbols", symbols))

	return &App{
		cfg:     cfg,
		symbols: symbols,
		board:   board,
		worker:  binance.NewTickerWorker(cfg, symbols, board),
		eng:     eng,
		rules:   rules,
		router:  router,
		journal: journal,
	}, nil
}

// defaultStrategies builds one independent strategy set per symbol.
func defaultStrategies() []strategy.Strategy {
	return []strategy.Strategy{
		strategy.NewMomentum(12, 26),
		strategy.NewMeanReversion(20, 2.0),
	}
}

// Run starts the price feed, drives the engine to completion and writes the
// run summary. Blocks until done or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.startedAt = time.Now()

	a.worker.Start(ctx)
	defer a.worker.Stop()

	a.rules.Warm(ctx, a.symbols)

	runErr := a.eng.Run(ctx)
	a.writeSummary()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Close releases routers and the journal.
func (a *App) Close() {
	a.router.Close()
	if err := a.journal.Close(); err != nil {
		slog.Warn("journal close failed", slog.Any("error", err))
	}
}

func (a *App) writeSummary() {
	tallies := make(map[string]storage.SymbolTally)
	var trades, wins, losses int
	for sym, s := range a.eng.Summary() {
		tallies[sym] = storage.SymbolTally{
			Trades: s.Trades, Wins: s.Wins, Losses: s.Losses, Retired: s.Retired,
		}
		trades += s.Trades
		wins += s.Wins
		losses += s.Losses
	}

	valuation := "0"
	if v, ok := a.router.(interface{ Valuation() quant.PriceMicros }); ok {
		valuation = v.Valuation().String()
	}

	if err := a.journal.WriteSummary(a.startedAt, time.Now(), valuation, tallies); err != nil {
		slog.Warn("summary write failed", slog.Any("error", err))
	}

	slog.Info("🏁 run complete",
		slog.Int("trades", trades),
		slog.Int("wins", wins),
		slog.Int("losses", losses),
		slog.String("valuation", valuation))
	balances := a.router.Snapshot()
	for _, asset := range sortedAssets(balances) {
		slog.Info("final balance",
			slog.String("asset", asset),
			slog.String("amount", balances[asset].String()))
	}
}

func sortedAssets(balances map[string]quant.QtySats) []string {
	out := make([]string, 0, len(balances))
	for asset := range balances {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}
