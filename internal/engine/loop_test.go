package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
	"epicenter/internal/strategy"
	"epicenter/pkg/quant"
)

type voteStrategy struct{ v strategy.Vote }

func (s *voteStrategy) OnPrice(quant.PriceMicros) {}
func (s *voteStrategy) Signal() strategy.Vote     { return s.v }

type fakeGate struct{ open bool }

func (g *fakeGate) Permits() bool { return g.open }

type fakeRules struct {
	rule domain.TradingRule
	err  error
}

func (r *fakeRules) RulesFor(context.Context, string) (domain.TradingRule, error) {
	return r.rule, r.err
}

type routedOrder struct {
	order domain.Order
	at    time.Time
}

type fakeRouter struct {
	balances map[string]quant.QtySats
	orders   []routedOrder
	err      error
	pnl      quant.PriceMicros
	clock    *fakeClock
}

func (r *fakeRouter) Route(_ context.Context, o domain.Order) (*domain.OrderResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.orders = append(r.orders, routedOrder{order: o, at: r.clock.t})
	return &domain.OrderResult{
		Symbol: o.Symbol, Side: o.Side, Qty: o.Qty, Price: o.Price,
		DryRun: true, PnLEst: r.pnl,
	}, nil
}

func (r *fakeRouter) Balance(asset string) quant.QtySats { return r.balances[asset] }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func btcRule() domain.TradingRule {
	return domain.TradingRule{
		Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
		MinQty: 1000, StepSize: 1000, MinNotional: 5_000_000, Active: true,
	}
}

func testEngine(t *testing.T, vote strategy.Vote, gate *fakeGate, rules *fakeRules, router *fakeRouter) (*Engine, *fakeClock) {
	t.Helper()

	cfg := &infra.Config{}
	cfg.Trading.CooldownSec = 20
	cfg.Trading.RepollSec = 2
	cfg.Trading.RetrySec = 5
	cfg.Trading.PositionPct = 0.2
	cfg.Trading.TradesPerSymbol = 3

	board := NewPriceBoard([]string{"BTCUSDT"})
	e := NewEngine(cfg, []string{"BTCUSDT"}, board, gate, rules, router, nil,
		func() []strategy.Strategy {
			return []strategy.Strategy{&voteStrategy{v: vote}, &voteStrategy{v: vote}, &voteStrategy{v: strategy.VoteHold}}
		})

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e.now = clock.now
	router.clock = clock
	board.SetPrice("BTCUSDT", quant.PriceMicros(20_000*quant.PriceScale))
	return e, clock
}

func TestEngine_CooldownSeparatesOrders(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	// Tick the loop every second of simulated time for two minutes.
	for i := 0; i < 120; i++ {
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	if len(router.orders) != 3 {
		t.Fatalf("expected quota of 3 orders, got %d", len(router.orders))
	}
	for i := 1; i < len(router.orders); i++ {
		gap := router.orders[i].at.Sub(router.orders[i-1].at)
		if gap < 20*time.Second {
			t.Errorf("orders %d and %d only %v apart", i-1, i, gap)
		}
	}
	if !e.allDone() {
		t.Error("quota reached but engine not done")
	}
}

func TestEngine_GateClosedBlocksAllOrders(t *testing.T) {
	gate := &fakeGate{open: false}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	for i := 0; i < 60; i++ {
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	if len(router.orders) != 0 {
		t.Fatalf("gate closed but %d orders routed", len(router.orders))
	}
}

func TestEngine_GateDenialKeepsDeadline(t *testing.T) {
	gate := &fakeGate{open: false}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	st := e.states["BTCUSDT"]
	before := st.nextAt

	for i := 0; i < 5; i++ {
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	// The symbol stays waiting with its deadline untouched while the gate
	// is closed.
	if !st.nextAt.Equal(before) {
		t.Errorf("gate denial moved nextAt from %v to %v", before, st.nextAt)
	}

	// The moment the gate reopens, the very next cycle trades.
	gate.open = true
	if err := e.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(router.orders) != 1 {
		t.Fatalf("expected an immediate order after reopen, got %d", len(router.orders))
	}
}

type countingStrategy struct{ n int }

func (s *countingStrategy) OnPrice(quant.PriceMicros) { s.n++ }
func (s *countingStrategy) Signal() strategy.Vote     { return strategy.VoteHold }

func TestEngine_RepeatedIdenticalTicksReachStrategies(t *testing.T) {
	cfg := &infra.Config{}
	cfg.Trading.CooldownSec = 20
	cfg.Trading.RepollSec = 2
	cfg.Trading.RetrySec = 5
	cfg.Trading.PositionPct = 0.2
	cfg.Trading.TradesPerSymbol = 3

	board := NewPriceBoard([]string{"BTCUSDT"})
	cs := &countingStrategy{}
	router := &fakeRouter{balances: map[string]quant.QtySats{}}
	e := NewEngine(cfg, []string{"BTCUSDT"}, board, &fakeGate{open: true},
		&fakeRules{rule: btcRule()}, router, nil,
		func() []strategy.Strategy { return []strategy.Strategy{cs} })

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e.now = clock.now
	router.clock = clock

	// A flat market: every tick carries the same price. Each one must still
	// reach the strategies or warmup would stall.
	px := quant.PriceMicros(20_000 * quant.PriceScale)
	for i := 0; i < 5; i++ {
		board.SetPrice("BTCUSDT", px)
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	if cs.n != 5 {
		t.Errorf("strategies saw %d ticks, want 5", cs.n)
	}
}

func TestEngine_HoldMajorityRoutesNothing(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, clock := testEngine(t, strategy.VoteHold, gate, rules, router)

	for i := 0; i < 30; i++ {
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	if len(router.orders) != 0 {
		t.Fatalf("hold votes but %d orders routed", len(router.orders))
	}
}

func TestEngine_AuthErrorStrikesThenEscalates(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{
		balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)},
		err:      domain.NewTradeError(domain.ErrAuth, "test", errors.New("bad signature")),
	}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	// A single auth rejection fails only that attempt.
	if err := e.cycle(context.Background()); err != nil {
		t.Fatalf("first auth rejection must not stop the run: %v", err)
	}
	st := e.states["BTCUSDT"]
	if want := clock.t.Add(5 * time.Second); !st.nextAt.Equal(want) {
		t.Errorf("nextAt = %v, want retry deadline %v", st.nextAt, want)
	}

	// Repeated rejections stop the run.
	var err error
	attempts := 1
	for err == nil && attempts < 10 {
		clock.advance(6 * time.Second)
		err = e.cycle(context.Background())
		attempts++
	}
	if err == nil {
		t.Fatal("persistent auth rejections must stop the run")
	}
	if domain.KindOf(err) != domain.ErrAuth {
		t.Errorf("kind = %s, want auth", domain.KindOf(err))
	}
	if attempts != 3 {
		t.Errorf("run stopped after %d attempts, want 3", attempts)
	}
}

func TestEngine_TradeResetsAuthStrikes(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, _ := testEngine(t, strategy.VoteBuy, gate, rules, router)

	e.authStrikes = maxAuthStrikes - 1
	if err := e.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(router.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(router.orders))
	}
	if e.authStrikes != 0 {
		t.Errorf("authStrikes = %d after a successful route, want 0", e.authStrikes)
	}
}

func TestEngine_TransientRouteErrorRetriesLater(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{
		balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)},
		err:      domain.NewTradeError(domain.ErrTransient, "test", errors.New("timeout")),
	}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	if err := e.cycle(context.Background()); err != nil {
		t.Fatalf("transient error must not stop the run: %v", err)
	}

	st := e.states["BTCUSDT"]
	if want := clock.t.Add(5 * time.Second); !st.nextAt.Equal(want) {
		t.Errorf("nextAt = %v, want retry deadline %v", st.nextAt, want)
	}
}

func TestEngine_InactiveSymbolRetired(t *testing.T) {
	rule := btcRule()
	rule.Active = false
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: rule}
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)}}
	e, _ := testEngine(t, strategy.VoteBuy, gate, rules, router)

	if err := e.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !e.allDone() {
		t.Error("inactive symbol should retire and finish the run")
	}
	if len(router.orders) != 0 {
		t.Error("inactive symbol must not trade")
	}
	if e.Summary()["BTCUSDT"].Retired == "" {
		t.Error("summary should carry the retire reason")
	}
}

func TestEngine_NonViableOrderSkipped(t *testing.T) {
	rule := btcRule()
	rule.MinQty = 0
	rule.MinNotional = 0
	rule.StepSize = quant.ToQtySats(1) // whole-coin lots only
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: rule}
	// 10 USDT balance, 20% position: 2 USDT buys far less than one lot,
	// so flooring to the step leaves nothing to order.
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(10)}}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	if err := e.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(router.orders) != 0 {
		t.Fatalf("non-viable order routed: %+v", router.orders)
	}
	st := e.states["BTCUSDT"]
	if want := clock.t.Add(2 * time.Second); !st.nextAt.Equal(want) {
		t.Errorf("nextAt = %v, want repoll deadline %v", st.nextAt, want)
	}
}

func TestEngine_DesiredQtySizing(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	// 100 USDT, 20% position at 20000: 20 USDT budget -> 0.001 BTC.
	router := &fakeRouter{balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100)}}
	e, _ := testEngine(t, strategy.VoteBuy, gate, rules, router)

	got := e.desiredQty(domain.SideBuy, btcRule(), quant.PriceMicros(20_000*quant.PriceScale))
	if want := quant.QtySats(100_000); got != want {
		t.Errorf("desired buy qty = %d, want %d", got, want)
	}

	router.balances["BTC"] = quant.ToQtySats(0.5)
	got = e.desiredQty(domain.SideSell, btcRule(), quant.PriceMicros(20_000*quant.PriceScale))
	if want := quant.ToQtySats(0.1); got != want {
		t.Errorf("desired sell qty = %d, want %d", got, want)
	}
}

func TestEngine_WinLossTally(t *testing.T) {
	gate := &fakeGate{open: true}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{
		balances: map[string]quant.QtySats{"USDT": quant.ToQtySats(100_000)},
		pnl:      quant.PriceMicros(1_500_000),
	}
	e, clock := testEngine(t, strategy.VoteBuy, gate, rules, router)

	for i := 0; i < 120; i++ {
		if err := e.cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	s := e.Summary()["BTCUSDT"]
	if s.Trades != 3 || s.Wins != 3 || s.Losses != 0 {
		t.Errorf("summary = %+v, want 3 trades 3 wins", s)
	}
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	gate := &fakeGate{open: false}
	rules := &fakeRules{rule: btcRule()}
	router := &fakeRouter{balances: map[string]quant.QtySats{}}
	e, _ := testEngine(t, strategy.VoteHold, gate, rules, router)
	e.now = time.Now
	e.poll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
