package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/broker"
	"autotrader/internal/history"
	"autotrader/internal/journal"
	"autotrader/internal/marketdata"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/monitor"
	"autotrader/internal/obs"
	"autotrader/internal/ops"
	"autotrader/internal/order"
	"autotrader/internal/risk"
	"autotrader/internal/session"
	"autotrader/internal/state"
	"autotrader/internal/strategy"
	"autotrader/pkg/exception"
)

const (
	historyDays  = 20
	flatPollStep = 50 * time.Millisecond
)

// Deps are the external collaborators. Only Port is required.
type Deps struct {
	Port    broker.Port
	History history.Source
	Journal *journal.Writer
	Clock   session.Clock
}

// Engine owns every trading component and drives the evaluation loop.
type Engine struct {
	session    *session.Session
	port       broker.Port
	history    history.Source
	journal    *journal.Writer
	metrics    *obs.Metrics
	ledger     *risk.Ledger
	market     *marketdata.Aggregator
	strategies *strategy.Pipeline
	orders     *order.Pipeline
	monitor    *monitor.Monitor
	logs       *LogRing

	cfgMu sync.RWMutex
	cfg   ops.Loaded

	evalMu sync.Mutex
	day    string
	halted atomic.Bool

	trigger chan struct{}
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg ops.Loaded, deps Deps) (*Engine, error) {
	if deps.Port == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "broker port")
	}
	sess := session.New(cfg.Session, deps.Clock)
	metrics := obs.NewMetrics()
	ledger := risk.NewLedger(cfg.Risk, sess)

	strategies := strategy.NewDefaultPipeline(sess)
	if err := strategies.Apply(cfg.Strategies); err != nil {
		return nil, errors.Wrap(err, "apply strategy config")
	}

	orders := order.NewPipeline(order.Config{
		MarketPriceEstimate: cfg.Order.MarketPriceEstimate,
		DispatchInterval:    cfg.Order.DispatchTimeout,
		MaxSlippage:         cfg.Order.MaxSlippage,
	}, deps.Port, ledger, sess, metrics)

	src := deps.History
	if src == nil {
		src = history.NewBrokerSource(deps.Port)
	}

	e := &Engine{
		session:    sess,
		port:       deps.Port,
		history:    src,
		journal:    deps.Journal,
		metrics:    metrics,
		ledger:     ledger,
		market:     marketdata.New(marketdata.Config{}, sess),
		strategies: strategies,
		orders:     orders,
		monitor:    monitor.New(monitor.Config{PollInterval: cfg.Monitor.PollInterval}, ledger, orders, sess),
		logs:       NewLogRing(cfg.Engine.LogCapacity),
		cfg:        cfg,
		trigger:    make(chan struct{}, 1),
	}

	e.market.SetPort(deps.Port)
	e.market.SetQuoteHandler(e.onQuote)
	e.market.SetCandleHandler(e.onCandle)
	deps.Port.SetOrderHandler(orders.OnBrokerOrder)
	orders.SetStatusHandler(e.onOrderStatus)
	if e.journal != nil {
		orders.SetPublisher(e.journal.Orders())
		orders.SetTradePublisher(e.journal.Trades())
	}
	for _, symbol := range cfg.Watchlist {
		e.market.AddWatchlist(symbol)
	}
	return e, nil
}

// Start connects the broker, restores today's ledger, seeds history and
// starts every worker.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return nil
	}
	cfg := e.Config()

	if !e.port.IsConnected() {
		if err := e.port.Connect(ctx, cfg.Broker.Server, cfg.Broker.Port); err != nil {
			return errors.Wrap(err, "connect broker")
		}
		cred := broker.Credentials{UserID: cfg.Broker.UserID, Password: cfg.Broker.Password, CertPassword: cfg.Broker.CertPassword}
		if err := e.port.Login(ctx, cred); err != nil {
			e.port.Disconnect()
			return errors.Wrap(err, "login broker")
		}
	}

	e.evalMu.Lock()
	e.day = e.session.DayKey(e.session.Now())
	e.evalMu.Unlock()
	if res, err := state.Recover(cfg.Snapshot, e.day, e.ledger); err != nil {
		e.warnf("recover ledger from %s, err: %+v", cfg.Snapshot, err)
	} else if res.Restored {
		e.infof("ledger restored, positions: %d, trades: %d", res.Positions, res.Trades)
	}

	for _, symbol := range e.market.Watchlist() {
		if err := e.market.LoadHistoricalData(ctx, e.history, symbol, historyDays); err != nil {
			e.warnf("load history %s, err: %+v", symbol, err)
		}
	}

	if e.journal != nil {
		e.journal.Start()
	}
	e.orders.Start()
	e.monitor.Start()
	e.market.StartRealtime()

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running.Store(true)
	go e.run(loopCtx, cfg.Engine.EvalInterval)

	e.infof("engine started, watchlist: %v, budget: %.0f", e.market.Watchlist(), cfg.Risk.Budget.DailyBudget)
	return nil
}

func (e *Engine) run(ctx context.Context, interval time.Duration) {
	defer close(e.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.trigger:
		}
		e.Evaluate()
	}
}

// Evaluate runs one decision cycle.
func (e *Engine) Evaluate() Cycle {
	start := time.Now()
	defer func() { e.metrics.ObserveEvaluation(time.Since(start)) }()

	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	e.rolloverLocked()

	if !e.session.IsMarketOpen() {
		return Cycle{Phase: PhaseIdle}
	}
	if e.ledger.IsDailyLossLimitReached() {
		if !e.halted.Swap(true) {
			e.warnf("daily loss limit reached, pnl: %.0f, entries halted", e.ledger.TotalPnL())
		}
		return Cycle{Phase: PhaseHalted, Exits: e.monitor.CloseAll("daily loss limit")}
	}
	if e.session.IsForceCloseWindow() {
		return Cycle{Phase: PhaseForceClose, Exits: e.monitor.CloseAll("force close")}
	}

	cycle := Cycle{Phase: PhaseTrading}
	busy := e.busySymbols()
	for _, symbol := range e.market.Watchlist() {
		if busy[symbol] || e.ledger.HasPosition(symbol) {
			continue
		}
		if e.enter(symbol) {
			cycle.Entries++
		}
	}

	for _, sig := range e.strategies.CheckCloseConditions(e.ledger.Positions(), e.market.Quotes()) {
		if e.monitor.RequestExit(sig.Symbol, sig.Quantity, sig.Strategy+" exit") {
			cycle.Exits++
		}
	}
	return cycle
}

// enter executes the most confident buy signal for symbol.
func (e *Engine) enter(symbol string) bool {
	quote := e.market.Quote(symbol)
	if quote.CurrentPrice <= 0 {
		return false
	}
	signals := e.strategies.AnalyzeAll(symbol, e.candles(symbol), quote)
	for range signals {
		e.metrics.IncSignal()
	}
	for _, sig := range signals {
		if sig.Signal != enum.SignalBuy {
			continue
		}
		id := e.orders.ExecuteSignal(sig)
		if id == "" {
			logs.Debugf("%s buy signal from %s not admitted", symbol, sig.Strategy)
			return false
		}
		e.infof("entry %s by %s, price: %.0f, confidence: %.2f, reason: %s, order: %s",
			symbol, sig.Strategy, sig.Price, sig.Confidence, sig.Reason, id)
		return true
	}
	return false
}

// candles returns finalized 1-minute candles plus the one in progress.
func (e *Engine) candles(symbol string) []model.Candle {
	out := e.market.MinuteCandles(symbol, enum.Resolution1m, e.Config().Engine.CandleCount)
	if cur, ok := e.market.CurrentCandle(symbol, enum.Resolution1m); ok {
		out = append(out, cur)
	}
	return out
}

func (e *Engine) busySymbols() map[string]bool {
	out := make(map[string]bool)
	for _, d := range e.orders.PendingOrders() {
		out[d.Request.Symbol] = true
	}
	return out
}

func (e *Engine) rolloverLocked() {
	day := e.session.DayKey(e.session.Now())
	if e.day == "" || e.day == day {
		e.day = day
		return
	}
	e.infof("new trading day %s, previous %s", day, e.day)
	e.day = day
	e.ledger.ResetDaily()
	e.strategies.ResetDaily()
	e.orders.ResetDaily()
	e.halted.Store(false)
}

func (e *Engine) onQuote(symbol string, q model.Quote) {
	e.metrics.ObserveQuote(q.Timestamp, e.session.NowMillis())
	e.monitor.OnQuoteUpdate(symbol, q)
}

func (e *Engine) onCandle(_ string, resolution enum.Resolution, _ model.Candle) {
	if resolution != enum.Resolution1m {
		return
	}
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) onOrderStatus(d model.OrderDetail) {
	switch d.Status {
	case enum.OrderStatusFilled, enum.OrderStatusPartial:
		e.infof("order %s %s %s filled %d @ %.0f", d.OrderID, d.Request.Type, d.Request.Symbol, d.FilledQuantity, d.FilledPrice)
	case enum.OrderStatusFailed, enum.OrderStatusRejected:
		e.warnf("order %s %s %s %s: %s", d.OrderID, d.Request.Type, d.Request.Symbol, d.Status, d.ErrorMessage)
	case enum.OrderStatusCancelled:
		e.infof("order %s %s cancelled", d.OrderID, d.Request.Symbol)
	}
}

// ApplyConfig hot-applies budget, fees, strategy, order and watchlist changes.
func (e *Engine) ApplyConfig(cfg ops.Loaded) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.strategies.Apply(cfg.Strategies); err != nil {
		return err
	}
	e.ledger.SetConfig(cfg.Risk)
	e.orders.SetMaxSlippage(cfg.Order.MaxSlippage)
	e.orders.SetMarketPriceEstimate(cfg.Order.MarketPriceEstimate)

	wanted := make(map[string]bool, len(cfg.Watchlist))
	for _, symbol := range cfg.Watchlist {
		wanted[symbol] = true
		if !e.market.IsWatching(symbol) {
			e.market.AddWatchlist(symbol)
			e.infof("watchlist add %s", symbol)
		}
	}
	for _, symbol := range e.market.Watchlist() {
		if wanted[symbol] {
			continue
		}
		if e.ledger.HasPosition(symbol) {
			e.warnf("keep %s on watchlist while a position is open", symbol)
			continue
		}
		e.market.RemoveWatchlist(symbol)
		e.infof("watchlist remove %s", symbol)
	}

	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	return nil
}

func (e *Engine) Config() ops.Loaded {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

func (e *Engine) SetStrategyEnabled(name string, enabled bool) error {
	if err := e.strategies.SetEnabled(name, enabled); err != nil {
		return err
	}
	e.infof("strategy %s enabled: %t", name, enabled)
	return nil
}

// SaveSnapshot writes the ledger to the configured snapshot path.
func (e *Engine) SaveSnapshot() error {
	path := e.Config().Snapshot
	if path == "" {
		return nil
	}
	return state.WriteSnapshot(path, state.Capture(e.ledger, e.session.NowMillis()))
}

// Shutdown liquidates, stops every worker, disconnects the broker and
// persists the ledger. Liquidation waits until ctx is done at most.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	e.cancel()
	<-e.done

	if n := e.monitor.CloseAll("shutdown"); n > 0 {
		e.infof("shutdown liquidation, orders: %d", n)
	}
	e.waitFlat(ctx)

	e.market.StopRealtime()
	e.monitor.Stop()
	e.orders.Stop()
	e.port.Disconnect()
	if e.journal != nil {
		e.journal.Stop()
	}

	err := e.SaveSnapshot()
	if err != nil {
		logs.Errorf("save snapshot, err: %+v", err)
	}
	s := e.ledger.Stats()
	e.infof("engine stopped, trades: %d, win rate: %.1f%%, realized: %.0f, max drawdown: %.0f",
		s.TotalTrades, s.WinRate, s.RealizedPnL, s.MaxDrawdown)
	return err
}

func (e *Engine) waitFlat(ctx context.Context) {
	ticker := time.NewTicker(flatPollStep)
	defer ticker.Stop()
	for len(e.orders.PendingOrders()) > 0 {
		select {
		case <-ctx.Done():
			e.warnf("shutdown with %d open positions", e.ledger.OpenPositionCount())
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) Session() *session.Session      { return e.session }
func (e *Engine) Ledger() *risk.Ledger           { return e.ledger }
func (e *Engine) Market() *marketdata.Aggregator { return e.market }
func (e *Engine) Orders() *order.Pipeline        { return e.orders }
func (e *Engine) Strategies() *strategy.Pipeline { return e.strategies }
func (e *Engine) Monitor() *monitor.Monitor      { return e.monitor }
func (e *Engine) Metrics() *obs.Metrics          { return e.metrics }
func (e *Engine) Logs() []LogEntry               { return e.logs.Entries() }
