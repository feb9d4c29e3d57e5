package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/broker"
	"autotrader/internal/bus"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/obs"
	"autotrader/internal/risk"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

var kst = time.FixedZone("KST", 9*60*60)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	p       *Pipeline
	sim     *broker.Simulator
	ledger  *risk.Ledger
	metrics *obs.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureOn(t, func(sim *broker.Simulator) broker.Port { return sim })
}

// silentCancelPort accepts cancels without ever reporting them back.
type silentCancelPort struct {
	*broker.Simulator
}

func (silentCancelPort) CancelOrder(context.Context, string) error { return nil }

func newFixtureOn(t *testing.T, port func(*broker.Simulator) broker.Port) fixture {
	t.Helper()
	at := time.Date(2026, 10, 14, 10, 0, 0, 0, kst)
	sess := session.New(session.DefaultConfig(), func() time.Time { return at })
	sim := broker.NewSimulator(broker.SimulatorConfig{AutoLogin: true})
	require.NoError(t, sim.Connect(context.Background(), "sim", 0))
	ledger := risk.NewLedger(risk.DefaultConfig(), sess)
	metrics := obs.NewMetrics()

	cfg := DefaultConfig()
	cfg.DispatchInterval = 10 * time.Millisecond
	p := NewPipeline(cfg, port(sim), ledger, sess, metrics)
	sim.SetOrderHandler(p.OnBrokerOrder)
	t.Cleanup(p.Stop)
	return fixture{p: p, sim: sim, ledger: ledger, metrics: metrics}
}

func (f fixture) waitStatus(t *testing.T, id string, want enum.OrderStatus) model.OrderDetail {
	t.Helper()
	require.Eventually(t, func() bool {
		d, ok := f.p.Order(id)
		return ok && d.Status == want
	}, waitFor, tick)
	d, _ := f.p.Order(id)
	return d
}

func orderCalls(sim *broker.Simulator) []broker.Call {
	var out []broker.Call
	for _, c := range sim.Calls() {
		if c.Method != "CancelOrder" && c.Method != "ModifyOrder" {
			out = append(out, c)
		}
	}
	return out
}

func TestPipelineDispatchesByPriority(t *testing.T) {
	f := newFixture(t)
	require.NotEmpty(t, f.p.SubmitSell("005930", 1, 1))
	require.NotEmpty(t, f.p.SubmitSell("005930", 5, 5))
	require.NotEmpty(t, f.p.SubmitSell("005930", 3, 3))
	assert.Equal(t, 3, f.p.QueueLen())

	f.p.Start()
	require.Eventually(t, func() bool { return len(orderCalls(f.sim)) == 3 }, waitFor, tick)

	calls := orderCalls(f.sim)
	assert.Equal(t, []int64{5, 3, 1}, []int64{calls[0].Quantity, calls[1].Quantity, calls[2].Quantity})
	assert.Equal(t, 0, f.p.QueueLen())
}

func TestPipelineKeepsArrivalOrderWithinPriority(t *testing.T) {
	f := newFixture(t)
	for _, qty := range []int64{1, 2, 3} {
		require.NotEmpty(t, f.p.SubmitSell("005930", qty, PriorityExit))
	}
	f.p.Start()
	require.Eventually(t, func() bool { return len(orderCalls(f.sim)) == 3 }, waitFor, tick)

	calls := orderCalls(f.sim)
	assert.Equal(t, []int64{1, 2, 3}, []int64{calls[0].Quantity, calls[1].Quantity, calls[2].Quantity})
}

func TestPipelineRefusesInvalidRequests(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.p.SubmitBuy("", 10, 1))
	assert.Empty(t, f.p.SubmitBuy("005930", 0, 1))
	assert.Empty(t, f.p.SubmitLimitSell("005930", 10, 0, 1))
	assert.Empty(t, f.p.Submit(model.OrderRequest{Type: enum.OrderTypeCancel, Symbol: "005930", Quantity: 1}))

	require.ErrorIs(t, f.p.validate(model.OrderRequest{Type: enum.OrderTypeModify, Symbol: "005930", Quantity: 1}), exception.ErrOrderUnsupportedType)
	require.ErrorIs(t, f.p.validate(model.OrderRequest{Type: enum.OrderTypeMarketSell, Symbol: "005930"}), exception.ErrOrderInvalidRequest)

	assert.Empty(t, f.p.TodayOrders())
	assert.Equal(t, 0, f.p.QueueLen())
	assert.Equal(t, uint64(4), f.metrics.Snapshot().RejectedOrders)
}

func TestPipelineRiskRejection(t *testing.T) {
	f := newFixture(t)
	for _, s := range []string{"A", "B", "C"} {
		f.ledger.AddPosition(model.Position{Symbol: s, Quantity: 10, AvgPrice: 10_000})
	}
	err := f.p.validate(model.OrderRequest{Type: enum.OrderTypeMarketBuy, Symbol: "D", Quantity: 10, Price: 10_000})
	require.ErrorIs(t, err, exception.ErrOrderRiskRejected)
	assert.Empty(t, f.p.SubmitLimitBuy("D", 10, 10_000, 1))
	assert.Equal(t, uint64(2), f.metrics.Snapshot().RiskReasonCounts["max_concurrent_positions"])

	// Market buys without a reference price are checked at the estimate.
	f.ledger.ResetDaily()
	assert.Empty(t, f.p.SubmitBuy("D", 100, 1))
	assert.NotEmpty(t, f.p.SubmitBuy("D", 40, 1))
}

func TestPipelineBuySignalOpensPosition(t *testing.T) {
	f := newFixture(t)
	statuses := make(chan model.OrderDetail, 8)
	f.p.SetStatusHandler(func(d model.OrderDetail) { statuses <- d })
	q := bus.NewQueue[model.OrderDetail](8)
	f.p.SetPublisher(q)
	f.p.Start()

	id := f.p.ExecuteSignal(model.SignalInfo{
		Signal: enum.SignalBuy, Symbol: "005930", Price: 10_000,
		StopLoss: 9_900, TakeProfit1: 10_150, TakeProfit2: 10_300, Strategy: "MABreakout",
	})
	require.NotEmpty(t, id)
	d := f.waitStatus(t, id, enum.OrderStatusFilled)
	assert.Equal(t, int64(200), d.FilledQuantity)
	assert.Equal(t, 10_000.0, d.FilledPrice)
	assert.InDelta(t, 300, d.Commission, 1e-6)
	assert.NotEmpty(t, d.BrokerOrderID)

	require.Eventually(t, func() bool { return f.ledger.HasPosition("005930") }, waitFor, tick)
	pos, _ := f.ledger.Position("005930")
	assert.Equal(t, int64(200), pos.Quantity)
	assert.Equal(t, int64(200), pos.EntryQty)
	assert.Equal(t, 9_900.0, pos.StopLossPrice)
	assert.Equal(t, "MABreakout", pos.Strategy)
	require.Len(t, f.ledger.TodayTrades(), 1)
	assert.True(t, f.ledger.TodayTrades()[0].IsBuy)

	select {
	case got := <-statuses:
		assert.Equal(t, id, got.OrderID)
		assert.Equal(t, enum.OrderStatusFilled, got.Status)
	case <-time.After(waitFor):
		t.Fatalf("no status callback")
	}
	require.Eventually(t, func() bool { return q.Len() == 1 }, waitFor, tick)
}

func TestPipelineSellClosesPosition(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddPosition(model.Position{Symbol: "005930", Quantity: 10, AvgPrice: 9_000})
	trades := bus.NewQueue[model.TradeRecord](4)
	f.p.SetTradePublisher(trades)
	f.p.Start()

	id := f.p.ExecuteSignal(model.SignalInfo{Signal: enum.SignalCloseLong, Symbol: "005930", Price: 10_000})
	require.NotEmpty(t, id)
	f.waitStatus(t, id, enum.OrderStatusFilled)
	require.Eventually(t, func() bool { return !f.ledger.HasPosition("005930") }, waitFor, tick)
	assert.Greater(t, f.ledger.RealizedPnL(), 0.0)
	assert.Equal(t, 1, trades.Len())
}

func TestPipelineBrokerFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.FailOrders(exception.ErrBrokerRejected)
	f.p.Start()

	id := f.p.SubmitSell("005930", 10, PriorityExit)
	d := f.waitStatus(t, id, enum.OrderStatusFailed)
	assert.NotEmpty(t, d.ErrorMessage)
	require.Eventually(t, func() bool {
		return f.metrics.Snapshot().OrderStatusCounts["FAILED"] == 1
	}, waitFor, tick)
}

func TestPipelineCancelPending(t *testing.T) {
	f := newFixture(t)
	id := f.p.SubmitSell("005930", 10, PriorityExit)
	require.NoError(t, f.p.Cancel(context.Background(), id))
	d, _ := f.p.Order(id)
	assert.Equal(t, enum.OrderStatusCancelled, d.Status)
	require.ErrorIs(t, f.p.Cancel(context.Background(), id), exception.ErrOrderNotCancellable)
	require.ErrorIs(t, f.p.Cancel(context.Background(), "missing"), exception.ErrOrderNotFound)

	f.p.Start()
	require.Eventually(t, func() bool { return f.p.QueueLen() == 0 }, waitFor, tick)
	assert.Empty(t, orderCalls(f.sim))
	assert.Empty(t, f.p.PendingOrders())
}

func TestPipelineCancelSubmittedBuy(t *testing.T) {
	f := newFixture(t)
	f.sim.HoldFills(true)
	f.p.Start()

	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	f.waitStatus(t, id, enum.OrderStatusSubmitted)
	require.Eventually(t, func() bool { return f.ledger.HasPosition("005930") }, waitFor, tick)
	assert.Len(t, f.p.PendingOrders(), 1)

	require.NoError(t, f.p.Cancel(context.Background(), id))
	d, _ := f.p.Order(id)
	assert.Equal(t, enum.OrderStatusCancelled, d.Status)
	assert.False(t, f.ledger.HasPosition("005930"))
}

func TestPipelineCancelSubmittedBuyWithoutBrokerEvent(t *testing.T) {
	f := newFixtureOn(t, func(sim *broker.Simulator) broker.Port { return silentCancelPort{sim} })
	f.sim.HoldFills(true)
	f.p.Start()

	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	f.waitStatus(t, id, enum.OrderStatusSubmitted)
	require.Eventually(t, func() bool { return f.ledger.HasPosition("005930") }, waitFor, tick)

	require.NoError(t, f.p.Cancel(context.Background(), id))
	d, _ := f.p.Order(id)
	assert.Equal(t, enum.OrderStatusCancelled, d.Status)
	assert.False(t, f.ledger.HasPosition("005930"))
	assert.Zero(t, f.ledger.ReservedCount())
	assert.NotEmpty(t, f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry))
}

func TestPipelineReservesQueuedBuys(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, s := range []string{"A", "B", "C", "D", "E", "F"} {
		if id := f.p.SubmitLimitBuy(s, 100, 19_000, PriorityEntry); id != "" {
			ids = append(ids, id)
		}
	}
	require.Len(t, ids, 3)
	assert.Equal(t, 3, f.ledger.ReservedCount())
	assert.Equal(t, uint64(3), f.metrics.Snapshot().RiskReasonCounts["max_concurrent_positions"])
	assert.Empty(t, f.p.SubmitLimitBuy("A", 10, 19_000, PriorityEntry))

	// A cancelled entry hands its slot back.
	require.NoError(t, f.p.Cancel(context.Background(), ids[0]))
	assert.Equal(t, 2, f.ledger.ReservedCount())
	last := f.p.SubmitLimitBuy("G", 100, 19_000, PriorityEntry)
	require.NotEmpty(t, last)

	f.p.Start()
	f.waitStatus(t, last, enum.OrderStatusFilled)
	require.Eventually(t, func() bool { return f.ledger.OpenPositionCount() == 3 }, waitFor, tick)
	assert.Zero(t, f.ledger.ReservedCount())
	assert.InDelta(t, 5_700_000, f.ledger.Stats().Invested, 1e-6)
}

func TestPipelineReleasesFailedBuy(t *testing.T) {
	f := newFixture(t)
	f.sim.FailOrders(exception.ErrBrokerRejected)
	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, f.ledger.ReservedCount())

	f.p.Start()
	f.waitStatus(t, id, enum.OrderStatusFailed)
	assert.Zero(t, f.ledger.ReservedCount())
	assert.False(t, f.ledger.HasPosition("005930"))
}

func TestPipelineModifyPendingBuyRechecksRisk(t *testing.T) {
	f := newFixture(t)
	id := f.p.SubmitLimitBuy("005930", 10, 10_000, PriorityEntry)
	require.NotEmpty(t, id)

	err := f.p.Modify(context.Background(), id, 0, 5_000)
	require.ErrorIs(t, err, exception.ErrOrderRiskRejected)
	d, _ := f.p.Order(id)
	assert.Equal(t, int64(10), d.Request.Quantity)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().RiskReasonCounts["max_position_size"])

	require.NoError(t, f.p.Modify(context.Background(), id, 0, 150))
	f.p.Start()
	d = f.waitStatus(t, id, enum.OrderStatusFilled)
	assert.Equal(t, int64(150), d.FilledQuantity)
	pos, ok := f.ledger.Position("005930")
	require.True(t, ok)
	assert.Equal(t, int64(150), pos.Quantity)
	assert.InDelta(t, 1_500_000, f.ledger.Stats().Invested, 1e-6)
}

func TestPipelineModifySubmittedBuyResizesPosition(t *testing.T) {
	f := newFixture(t)
	f.sim.HoldFills(true)
	f.p.Start()

	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	f.waitStatus(t, id, enum.OrderStatusSubmitted)
	require.Eventually(t, func() bool { return f.ledger.HasPosition("005930") }, waitFor, tick)

	require.ErrorIs(t, f.p.Modify(context.Background(), id, 0, 5_000), exception.ErrOrderRiskRejected)
	for _, c := range f.sim.Calls() {
		assert.NotEqual(t, "ModifyOrder", c.Method)
	}
	pos, _ := f.ledger.Position("005930")
	assert.Equal(t, int64(10), pos.Quantity)

	require.NoError(t, f.p.Modify(context.Background(), id, 9_950, 150))
	pos, _ = f.ledger.Position("005930")
	assert.Equal(t, int64(150), pos.Quantity)
	assert.Equal(t, int64(150), pos.EntryQty)
	assert.Equal(t, 9_950.0, pos.AvgPrice)
	d, _ := f.p.Order(id)
	assert.Equal(t, int64(150), d.Request.Quantity)
}

func TestPipelineModifyPending(t *testing.T) {
	f := newFixture(t)
	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	require.NoError(t, f.p.Modify(context.Background(), id, 9_800, 0))
	d, _ := f.p.Order(id)
	assert.Equal(t, 9_800.0, d.Request.Price)
	assert.Equal(t, int64(10), d.Request.Quantity)

	f.p.Start()
	d = f.waitStatus(t, id, enum.OrderStatusFilled)
	assert.Equal(t, 9_800.0, d.FilledPrice)
	assert.Equal(t, 9_800.0, orderCalls(f.sim)[0].Price)

	require.ErrorIs(t, f.p.Modify(context.Background(), id, 9_700, 0), exception.ErrOrderInvalidTransition)
}

func TestPipelineAppliesBrokerFill(t *testing.T) {
	f := newFixture(t)
	f.sim.HoldFills(true)
	f.p.Start()

	id := f.p.SubmitLimitBuy("005930", 10, 9_900, PriorityEntry)
	d := f.waitStatus(t, id, enum.OrderStatusSubmitted)
	require.NoError(t, f.p.Modify(context.Background(), id, 9_950, 0))
	require.NoError(t, f.sim.FillPending(d.BrokerOrderID))

	d = f.waitStatus(t, id, enum.OrderStatusFilled)
	assert.Equal(t, int64(10), d.FilledQuantity)
	assert.Equal(t, 9_950.0, d.FilledPrice)
}

func TestPipelineCloseAllPositions(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddPosition(model.Position{Symbol: "A", Quantity: 10, AvgPrice: 10_000})
	f.ledger.AddPosition(model.Position{Symbol: "B", Quantity: 20, AvgPrice: 10_000})

	ids := f.p.CloseAllPositions()
	require.Len(t, ids, 2)
	for _, id := range ids {
		d, _ := f.p.Order(id)
		assert.Equal(t, PriorityForced, d.Request.Priority)
		assert.Equal(t, enum.OrderTypeMarketSell, d.Request.Type)
	}
	assert.Empty(t, f.p.ClosePosition("missing"))

	f.p.Start()
	require.Eventually(t, func() bool { return f.ledger.OpenPositionCount() == 0 }, waitFor, tick)
}

func TestExecuteSignalSizing(t *testing.T) {
	f := newFixture(t)
	f.ledger.AddPosition(model.Position{Symbol: "005930", Quantity: 100, AvgPrice: 10_000})

	id := f.p.ExecuteSignal(model.SignalInfo{Signal: enum.SignalPartialClose, Symbol: "005930"})
	d, ok := f.p.Order(id)
	require.True(t, ok)
	assert.Equal(t, int64(50), d.Request.Quantity)
	assert.Equal(t, PriorityExit, d.Request.Priority)

	assert.Empty(t, f.p.ExecuteSignal(model.NoSignal("005930")))
	assert.Empty(t, f.p.ExecuteSignal(model.SignalInfo{Signal: enum.SignalSell, Symbol: "000660"}))
}

func TestPipelineStartStop(t *testing.T) {
	f := newFixture(t)
	f.p.Start()
	f.p.Start()
	assert.True(t, f.p.IsRunning())
	f.p.Stop()
	f.p.Stop()
	assert.False(t, f.p.IsRunning())

	f.p.SetMaxSlippage(1.5)
	assert.Equal(t, 1.5, f.p.MaxSlippage())
}

func TestPipelineConcurrentSubmit(t *testing.T) {
	f := newFixture(t)
	f.p.Start()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.p.SubmitSell("005930", 1, PriorityExit)
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return len(orderCalls(f.sim)) == 20 }, waitFor, tick)

	ids := map[string]bool{}
	for _, d := range f.p.TodayOrders() {
		ids[d.OrderID] = true
	}
	assert.Len(t, ids, 20)
}
