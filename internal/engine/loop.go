package engine

import (
	"context"
	"log/slog"
	"time"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
	"epicenter/internal/strategy"
	"epicenter/pkg/quant"
)

// Gate decides whether any order submission is currently allowed.
type Gate interface {
	Permits() bool
}

// RuleSource supplies per-symbol trading constraints.
type RuleSource interface {
	RulesFor(ctx context.Context, symbol string) (domain.TradingRule, error)
}

// Router executes sized orders and answers balance queries.
type Router interface {
	Route(ctx context.Context, order domain.Order) (*domain.OrderResult, error)
	Balance(asset string) quant.QtySats
}

// Recorder persists completed trades. Journal failures never stop trading.
type Recorder interface {
	RecordTrade(res *domain.OrderResult) error
}

// symbolPhase tracks where a symbol is in its trade cycle.
type symbolPhase int

const (
	phaseWaiting symbolPhase = iota // cooldown or deadline pending
	phaseDone                       // quota reached or symbol retired
)

type symbolState struct {
	strategies []strategy.Strategy
	phase      symbolPhase
	nextAt     time.Time // earliest next evaluation
	lastSeq    uint64    // last consumed tick sequence
	trades     int
	wins       int
	losses     int
	retired    string // non-empty reason if stopped before quota
}

// SymbolSummary is the end-of-run tally for one symbol.
type SymbolSummary struct {
	Trades  int
	Wins    int
	Losses  int
	Retired string
}

// Engine runs the decision loop: consume prices, collect strategy votes,
// enforce rules and route orders under cooldown and quota control. All
// strategy and state access happens on the Run goroutine; the transport
// side touches only the price board.
type Engine struct {
	board   *PriceBoard
	gate    Gate
	rules   RuleSource
	router  Router
	journal Recorder

	symbols []string
	states  map[string]*symbolState

	cooldown    time.Duration
	repoll      time.Duration
	retry       time.Duration
	positionPct float64
	quota       int

	// poll bounds how long the loop sleeps when no tick arrives, so timer
	// deadlines fire even on a quiet feed.
	poll time.Duration
	now  func() time.Time

	authStrikes int
}

// maxAuthStrikes mirrors the order breaker's failure threshold: one auth
// rejection fails only that attempt, repeated ones stop the run.
const maxAuthStrikes = 3

// NewEngine wires the loop. newStrategies is invoked once per symbol so
// every symbol gets independent history.
func NewEngine(cfg *infra.Config, symbols []string, board *PriceBoard, gate Gate,
	rules RuleSource, router Router, journal Recorder,
	newStrategies func() []strategy.Strategy) *Engine {

	states := make(map[string]*symbolState, len(symbols))
	for _, s := range symbols {
		states[s] = &symbolState{strategies: newStrategies()}
	}

	return &Engine{
		board:       board,
		gate:        gate,
		rules:       rules,
		router:      router,
		journal:     journal,
		symbols:     symbols,
		states:      states,
		cooldown:    time.Duration(cfg.Trading.CooldownSec) * time.Second,
		repoll:      time.Duration(cfg.Trading.RepollSec) * time.Second,
		retry:       time.Duration(cfg.Trading.RetrySec) * time.Second,
		positionPct: cfg.Trading.PositionPct,
		quota:       cfg.Trading.TradesPerSymbol,
		poll:        500 * time.Millisecond,
		now:         time.Now,
	}
}

// Run drives the loop until every symbol reaches its quota, the context is
// cancelled, or a non-recoverable error (auth, config) escalates.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine started",
		slog.Int("symbols", len(e.symbols)),
		slog.Int("quota", e.quota),
		slog.Duration("cooldown", e.cooldown))

	timer := time.NewTimer(e.poll)
	defer timer.Stop()

	for {
		if e.allDone() {
			slog.Info("engine finished: all symbols at quota")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.board.Wake():
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.poll)

		if err := e.cycle(ctx); err != nil {
			return err
		}
	}
}

// cycle evaluates every live symbol once. The gate is consulted once per
// cycle, not once per symbol: one file read covers the whole pass.
func (e *Engine) cycle(ctx context.Context) error {
	now := e.now()
	gateOpen := e.gate.Permits()

	for _, sym := range e.symbols {
		st := e.states[sym]
		if st.phase == phaseDone {
			continue
		}

		px, seq, _ := e.board.Tick(sym)
		if px > 0 && seq != st.lastSeq {
			st.lastSeq = seq
			for _, s := range st.strategies {
				s.OnPrice(px)
			}
		}

		// Gate denial leaves the symbol waiting with its deadline
		// untouched: it is reconsidered the moment the gate reopens.
		if !gateOpen {
			continue
		}

		if now.Before(st.nextAt) {
			continue
		}
		if px <= 0 {
			// No tick yet.
			st.nextAt = now.Add(e.repoll)
			continue
		}

		if err := e.evaluate(ctx, sym, st, px, now); err != nil {
			return err
		}
	}
	return nil
}

// evaluate runs one decision for an eligible symbol. Returns an error only
// when the whole run must stop.
func (e *Engine) evaluate(ctx context.Context, sym string, st *symbolState,
	px quant.PriceMicros, now time.Time) error {

	votes := make([]strategy.Vote, len(st.strategies))
	for i, s := range st.strategies {
		votes[i] = s.Signal()
	}
	side, decided := strategy.Aggregate(votes)
	if !decided {
		st.nextAt = now.Add(e.repoll)
		return nil
	}

	rule, err := e.rules.RulesFor(ctx, sym)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.ErrConfig:
			return err
		case domain.ErrAuth:
			if e.strikeAuth() {
				return err
			}
		}
		slog.Warn("rule lookup failed", slog.String("symbol", sym), slog.Any("error", err))
		st.nextAt = now.Add(e.retry)
		return nil
	}
	if !rule.Active {
		st.phase = phaseDone
		st.retired = "symbol not trading"
		slog.Warn("symbol retired", slog.String("symbol", sym), slog.String("reason", st.retired))
		return nil
	}

	desired := e.desiredQty(side, rule, px)
	qty, viable := domain.Enforce(desired, px, rule)
	if !viable {
		slog.Debug("order not viable under rules",
			slog.String("symbol", sym),
			slog.String("side", string(side)),
			slog.String("desired", desired.String()))
		st.nextAt = now.Add(e.repoll)
		return nil
	}

	res, err := e.router.Route(ctx, domain.Order{
		Symbol:     sym,
		BaseAsset:  rule.BaseAsset,
		QuoteAsset: rule.QuoteAsset,
		Side:       side,
		Qty:        qty,
		Price:      px,
	})
	if err != nil {
		switch domain.KindOf(err) {
		case domain.ErrConfig:
			return err
		case domain.ErrAuth:
			if e.strikeAuth() {
				return err
			}
			slog.Warn("order auth rejected", slog.String("symbol", sym), slog.Any("error", err))
			st.nextAt = now.Add(e.retry)
		case domain.ErrConstraint:
			slog.Info("order rejected", slog.String("symbol", sym), slog.Any("error", err))
			st.nextAt = now.Add(e.repoll)
		default:
			slog.Warn("route failed, will retry", slog.String("symbol", sym), slog.Any("error", err))
			st.nextAt = now.Add(e.retry)
		}
		return nil
	}

	e.authStrikes = 0
	st.trades++
	switch {
	case res.PnLEst > 0:
		st.wins++
	case res.PnLEst < 0:
		st.losses++
	}

	if e.journal != nil {
		if jerr := e.journal.RecordTrade(res); jerr != nil {
			slog.Warn("journal write failed", slog.String("symbol", sym), slog.Any("error", jerr))
		}
	}

	slog.Info("trade executed",
		slog.String("symbol", sym),
		slog.String("side", string(side)),
		slog.String("qty", qty.WireString()),
		slog.String("price", px.String()),
		slog.Int("count", st.trades),
		slog.Bool("dry_run", res.DryRun))

	st.nextAt = now.Add(e.cooldown)
	if st.trades >= e.quota {
		st.phase = phaseDone
	}
	return nil
}

// desiredQty sizes the order before rule enforcement: a fixed fraction of
// the spendable balance. Buys spend the quote asset, sells spend the base.
func (e *Engine) desiredQty(side domain.Side, rule domain.TradingRule, px quant.PriceMicros) quant.QtySats {
	if side == domain.SideBuy {
		quoteBal := e.router.Balance(rule.QuoteAsset)
		budget := quant.QtySats(float64(quoteBal) * e.positionPct)
		// Quote balances carry qty scale; notional math runs in price scale.
		return quant.QuoteToQty(quant.PriceMicros(budget/(quant.QtyScale/quant.PriceScale)), px)
	}
	baseBal := e.router.Balance(rule.BaseAsset)
	return quant.QtySats(float64(baseBal) * e.positionPct)
}

// strikeAuth counts an auth rejection and reports whether the run-level
// limit is reached. A lone bad nonce fails one attempt; a persistently bad
// signature stops the run.
func (e *Engine) strikeAuth() bool {
	e.authStrikes++
	if e.authStrikes >= maxAuthStrikes {
		slog.Error("repeated auth rejections, stopping", slog.Int("strikes", e.authStrikes))
		return true
	}
	return false
}

func (e *Engine) allDone() bool {
	for _, st := range e.states {
		if st.phase != phaseDone {
			return false
		}
	}
	return true
}

// Summary reports the per-symbol tallies. Call after Run returns.
func (e *Engine) Summary() map[string]SymbolSummary {
	out := make(map[string]SymbolSummary, len(e.states))
	for sym, st := range e.states {
		out[sym] = SymbolSummary{
			Trades:  st.trades,
			Wins:    st.wins,
			Losses:  st.losses,
			Retired: st.retired,
		}
	}
	return out
}
