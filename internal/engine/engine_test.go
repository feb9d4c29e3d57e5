package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"autotrader/internal/broker"
	"autotrader/internal/journal"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/ops"
	"autotrader/internal/state"
	"autotrader/pkg/exception"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var kst = time.FixedZone("KST", 9*60*60)

type clock struct {
	now atomic.Int64
}

func newClock(at time.Time) *clock {
	c := &clock{}
	c.set(at)
	return c
}

func (c *clock) set(at time.Time) { c.now.Store(at.UnixNano()) }
func (c *clock) Now() time.Time   { return time.Unix(0, c.now.Load()).In(kst) }

func wednesday(hour, minute int) time.Time {
	return time.Date(2026, 10, 14, hour, minute, 0, 0, kst)
}

// scripted buys and closes on demand.
type scripted struct {
	mu      sync.Mutex
	enabled bool
	buy     map[string]bool
	exit    map[string]bool
}

func newScripted() *scripted {
	return &scripted{enabled: true, buy: map[string]bool{}, exit: map[string]bool{}}
}

func (s *scripted) Name() string { return "Scripted" }

func (s *scripted) Analyze(symbol string, _ []model.Candle, quote model.Quote) model.SignalInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.buy[symbol] {
		return model.NoSignal(symbol)
	}
	price := quote.CurrentPrice
	return model.SignalInfo{
		Signal: enum.SignalBuy, Symbol: symbol, Price: price,
		StopLoss: price * 0.99, TakeProfit1: price * 1.02, Confidence: 0.9, Reason: "scripted",
	}
}

func (s *scripted) ShouldClose(pos model.Position, _ model.Quote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit[pos.Symbol]
}

func (s *scripted) Parameter(string) (float64, bool) { return 0, false }
func (s *scripted) SetParameter(string, float64) error {
	return exception.ErrStrategyUnknownParameter
}
func (s *scripted) Parameters() map[string]float64 { return map[string]float64{} }

func (s *scripted) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *scripted) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *scripted) set(m map[string]bool, symbol string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m[symbol] = v
}

type fixture struct {
	engine *Engine
	sim    *broker.Simulator
	clock  *clock
	script *scripted
	cfg    ops.Loaded
}

func newFixture(t *testing.T, at time.Time, deps Deps) *fixture {
	t.Helper()
	cfg := ops.Default()
	cfg.Watchlist = []string{"005930"}
	cfg.Snapshot = filepath.Join(t.TempDir(), "ledger.json")
	cfg.Engine.EvalInterval = time.Hour
	cfg.Order.DispatchTimeout = 10 * time.Millisecond
	cfg.Monitor.PollInterval = 10 * time.Millisecond
	cfg.Broker.UserID = "tester"

	sim := broker.NewSimulator(broker.SimulatorConfig{Seed: 3})
	c := newClock(at)
	deps.Port = sim
	deps.Clock = c.Now
	e, err := New(cfg, deps)
	require.NoError(t, err)

	for _, s := range e.Strategies().Strategies() {
		s.SetEnabled(false)
	}
	script := newScripted()
	require.NoError(t, e.Strategies().Register(script))
	return &fixture{engine: e, sim: sim, clock: c, script: script, cfg: cfg}
}

func (f *fixture) quote(price float64) {
	f.sim.Emit(model.Quote{
		Symbol: "005930", CurrentPrice: price, OpenPrice: price, PrevClose: price,
		Volume: 1_000, Timestamp: f.clock.Now().UnixMilli(),
	})
}

func TestNewRequiresPort(t *testing.T) {
	_, err := New(ops.Default(), Deps{})
	require.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestEvaluateIdleOutsideSession(t *testing.T) {
	f := newFixture(t, wednesday(8, 0), Deps{})
	assert.Equal(t, Cycle{Phase: PhaseIdle}, f.engine.Evaluate())

	f.clock.set(time.Date(2026, 10, 17, 10, 0, 0, 0, kst))
	assert.Equal(t, PhaseIdle, f.engine.Evaluate().Phase)
}

func TestEvaluateHaltsOnDailyLoss(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	ledger := f.engine.Ledger()
	ledger.AddPosition(model.Position{Symbol: "005930", Quantity: 1_000, AvgPrice: 10_000})
	ledger.UpdatePosition("005930", 9_000)

	c := f.engine.Evaluate()
	assert.Equal(t, PhaseHalted, c.Phase)
	assert.Equal(t, 1, c.Exits)
	assert.True(t, f.engine.Dashboard().Halted)

	// The exit is still queued, so nothing new is submitted.
	assert.Equal(t, Cycle{Phase: PhaseHalted}, f.engine.Evaluate())
	assert.Len(t, f.engine.Orders().PendingOrders(), 1)
}

func TestEvaluateForceCloseWindow(t *testing.T) {
	f := newFixture(t, wednesday(14, 45), Deps{})
	ledger := f.engine.Ledger()
	ledger.AddPosition(model.Position{Symbol: "A", Quantity: 10, AvgPrice: 1_000})
	ledger.AddPosition(model.Position{Symbol: "B", Quantity: 20, AvgPrice: 1_000})

	c := f.engine.Evaluate()
	assert.Equal(t, PhaseForceClose, c.Phase)
	assert.Equal(t, 2, c.Exits)
	for _, d := range f.engine.Orders().PendingOrders() {
		assert.Equal(t, enum.OrderTypeMarketSell, d.Request.Type)
	}
}

func TestEngineEntryExitRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	repo := journal.NewRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	writer := journal.NewWriter(repo, 64)

	f := newFixture(t, wednesday(10, 0), Deps{Journal: writer})
	e := f.engine
	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.IsRunning())
	assert.True(t, f.sim.IsConnected())
	assert.NotZero(t, e.Market().CacheSize())

	f.quote(10_000)
	f.script.set(f.script.buy, "005930", true)
	c := e.Evaluate()
	assert.Equal(t, PhaseTrading, c.Phase)
	assert.Equal(t, 1, c.Entries)
	require.Eventually(t, func() bool { return e.Ledger().HasPosition("005930") }, waitFor, tick)

	pos, _ := e.Ledger().Position("005930")
	assert.Equal(t, int64(200), pos.Quantity)
	assert.Equal(t, "Scripted", pos.Strategy)
	assert.InDelta(t, 9_900, pos.StopLossPrice, 1e-6)
	assert.Zero(t, e.Evaluate().Entries)

	f.script.set(f.script.buy, "005930", false)
	f.script.set(f.script.exit, "005930", true)
	assert.Equal(t, 1, e.Evaluate().Exits)
	require.Eventually(t, func() bool { return !e.Ledger().HasPosition("005930") }, waitFor, tick)
	require.Eventually(t, func() bool { return len(e.Orders().PendingOrders()) == 0 }, waitFor, tick)

	data := e.Dashboard()
	require.Len(t, data.Orders, 2)
	assert.Equal(t, enum.OrderTypeMarketSell, data.Orders[0].Request.Type)
	assert.Equal(t, 1, data.Stats.TotalTrades)
	assert.NotEmpty(t, data.Logs)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.False(t, e.IsRunning())
	assert.False(t, f.sim.IsConnected())
	assert.False(t, writer.IsRunning())

	snap, err := state.ReadSnapshot(f.cfg.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", snap.Ledger.Day)
	assert.Len(t, snap.Ledger.Trades, 2)
	assert.Empty(t, snap.Ledger.Positions)

	orders, err := repo.Orders(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, d := range orders {
		assert.Equal(t, enum.OrderStatusFilled, d.Status)
	}
	trades, err := repo.TradesBetween(context.Background(), 0, f.clock.Now().UnixMilli()+1)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestStartRestoresSameDaySnapshot(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	src := f.engine.Ledger()
	src.AddPosition(model.Position{Symbol: "005930", Quantity: 10, AvgPrice: 10_000})
	src.RecordTrade(model.TradeRecord{Symbol: "005930", IsBuy: true, Quantity: 10, Price: 10_000})
	require.NoError(t, f.engine.SaveSnapshot())

	g := newFixture(t, wednesday(10, 5), Deps{})
	g.engine.cfg.Snapshot = f.cfg.Snapshot
	require.NoError(t, g.engine.Start(context.Background()))
	defer func() { _ = g.engine.Shutdown(context.Background()) }()

	assert.True(t, g.engine.Ledger().HasPosition("005930"))
}

func TestShutdownLiquidates(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	require.NoError(t, f.engine.Start(context.Background()))
	f.quote(10_000)
	f.engine.Ledger().AddPosition(model.Position{Symbol: "005930", Quantity: 10, AvgPrice: 10_000})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(ctx))
	assert.False(t, f.engine.Ledger().HasPosition("005930"))
	_, err := os.Stat(f.cfg.Snapshot)
	require.NoError(t, err)
	require.NoError(t, f.engine.Shutdown(ctx))
}

func TestDailyRollover(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	f.engine.Evaluate()
	f.engine.Ledger().RecordTrade(model.TradeRecord{Symbol: "A", Quantity: 1, Price: 1})

	f.clock.set(time.Date(2026, 10, 15, 10, 0, 0, 0, kst))
	f.engine.Evaluate()
	assert.Empty(t, f.engine.Ledger().TodayTrades())
	assert.Equal(t, "2026-10-15", f.engine.Dashboard().Day)

	found := false
	for _, l := range f.engine.Logs() {
		found = found || strings.Contains(l.Message, "new trading day 2026-10-15")
	}
	assert.True(t, found)
}

func TestApplyConfig(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	e := f.engine
	e.Ledger().AddPosition(model.Position{Symbol: "005930", Quantity: 10, AvgPrice: 10_000})

	cfg := e.Config()
	cfg.Watchlist = []string{"000660"}
	cfg.Risk.Budget.DailyBudget = 20_000_000
	cfg.Order.MaxSlippage = 1.5
	require.NoError(t, e.ApplyConfig(cfg))

	assert.Equal(t, []string{"005930", "000660"}, e.Market().Watchlist())
	assert.Equal(t, 20_000_000.0, e.Ledger().Config().Budget.DailyBudget)
	assert.Equal(t, 1.5, e.Orders().MaxSlippage())
	assert.Equal(t, []string{"000660"}, e.Config().Watchlist)

	e.Ledger().DiscardPosition("005930")
	require.NoError(t, e.ApplyConfig(cfg))
	assert.Equal(t, []string{"000660"}, e.Market().Watchlist())

	bad := cfg
	bad.Risk.Budget.DailyBudget = 0
	assert.Error(t, e.ApplyConfig(bad))
}

func TestSetStrategyEnabled(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	require.NoError(t, f.engine.SetStrategyEnabled("Scripted", false))
	assert.False(t, f.script.Enabled())
	require.ErrorIs(t, f.engine.SetStrategyEnabled("Nope", true), exception.ErrStrategyUnknown)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	f := newFixture(t, wednesday(10, 0), Deps{})
	require.NotEmpty(t, f.engine.Orders().SubmitSell("A", 1, 1))
	require.NotEmpty(t, f.engine.Orders().SubmitSell("B", 1, 1))
	got := f.engine.RecentOrders(1)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Request.Symbol)
}

func TestLogRing(t *testing.T) {
	r := NewLogRing(3)
	assert.Empty(t, r.Entries())
	for i := 1; i <= 5; i++ {
		r.Add(LogEntry{Timestamp: int64(i)})
	}
	got := r.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].Timestamp, got[1].Timestamp, got[2].Timestamp})
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "FORCE_CLOSE", PhaseForceClose.String())
	assert.True(t, PhaseTrading.IsAvailable())
	assert.False(t, Phase(0).IsAvailable())
}
