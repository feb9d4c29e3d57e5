package order

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/broker"
	"autotrader/internal/bus"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/obs"
	"autotrader/internal/risk"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

// Dispatch priorities. Higher runs first.
const (
	PriorityEntry  = 1
	PriorityExit   = 5
	PriorityForced = 9
)

type Config struct {
	// MarketPriceEstimate prices a market buy for admission when the request
	// carries no reference price.
	MarketPriceEstimate float64       `json:"marketPriceEstimate"`
	DispatchInterval    time.Duration `json:"-"`
	// MaxSlippage is a percentage of the reference price.
	MaxSlippage float64 `json:"maxSlippage"`
}

func DefaultConfig() Config {
	return Config{
		MarketPriceEstimate: 50_000,
		DispatchInterval:    100 * time.Millisecond,
		MaxSlippage:         0.5,
	}
}

// StatusHandler receives the order snapshot after every dispatch outcome.
type StatusHandler func(model.OrderDetail)

// Pipeline validates, queues and dispatches orders to the broker one at a
// time, highest priority first.
type Pipeline struct {
	port    broker.Port
	ledger  *risk.Ledger
	session *session.Session
	metrics *obs.Metrics
	ids     *obs.IDGenerator

	mu          sync.Mutex
	cfg         Config
	machine     *StateMachine
	queue       queue
	seq         uint64
	inflight    string
	onStatus    StatusHandler
	publisher   *bus.Queue[model.OrderDetail]
	trades      *bus.Queue[model.TradeRecord]
	maxSlippage float64

	wake    chan struct{}
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPipeline(cfg Config, port broker.Port, ledger *risk.Ledger, sess *session.Session, metrics *obs.Metrics) *Pipeline {
	def := DefaultConfig()
	if cfg.MarketPriceEstimate <= 0 {
		cfg.MarketPriceEstimate = def.MarketPriceEstimate
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = def.DispatchInterval
	}
	if sess == nil {
		sess = session.New(session.DefaultConfig(), nil)
	}
	return &Pipeline{
		port:        port,
		ledger:      ledger,
		session:     sess,
		metrics:     metrics,
		ids:         obs.NewIDGenerator("ORD", sess.Now),
		cfg:         cfg,
		machine:     NewStateMachine(),
		maxSlippage: cfg.MaxSlippage,
		wake:        make(chan struct{}, 1),
	}
}

func (p *Pipeline) SetStatusHandler(h StatusHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = h
}

// SetPublisher mirrors every status snapshot onto q.
func (p *Pipeline) SetPublisher(q *bus.Queue[model.OrderDetail]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisher = q
}

// SetTradePublisher mirrors every ledger trade onto q.
func (p *Pipeline) SetTradePublisher(q *bus.Queue[model.TradeRecord]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = q
}

func (p *Pipeline) SetMaxSlippage(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxSlippage = percent
}

func (p *Pipeline) MaxSlippage() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSlippage
}

func (p *Pipeline) SetMarketPriceEstimate(price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.MarketPriceEstimate = price
}

func (p *Pipeline) validate(req model.OrderRequest) error {
	if err := checkRequest(req); err != nil {
		return err
	}
	return p.admit("", req)
}

func checkRequest(req model.OrderRequest) error {
	switch {
	case req.Symbol == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty symbol")
	case req.Quantity <= 0:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "quantity: %d", req.Quantity)
	case !req.Type.IsBuy() && !req.Type.IsSell():
		return errors.Wrap(exception.ErrOrderUnsupportedType, req.Type.String())
	case req.Type.IsLimit() && req.Price <= 0:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "limit price: %.2f", req.Price)
	}
	return nil
}

// admit runs the risk checks for a buy. With an id the buy also reserves its
// slot and notional until it settles.
func (p *Pipeline) admit(id string, req model.OrderRequest) error {
	if !req.Type.IsBuy() || p.ledger == nil {
		return nil
	}
	price := p.referencePrice(req.Price)
	var d risk.Decision
	if id == "" {
		d = p.ledger.Evaluate(req.Symbol, price, req.Quantity)
	} else {
		d = p.ledger.Reserve(id, req.Symbol, price, req.Quantity)
	}
	return p.riskError(d)
}

func (p *Pipeline) riskError(d risk.Decision) error {
	if d.Allowed {
		return nil
	}
	p.metrics.IncRiskReason(d.Reason)
	return errors.Wrapf(exception.ErrOrderRiskRejected, "%s: %s", d.Symbol, d.Reason)
}

// referencePrice falls back to the market estimate for unpriced orders.
func (p *Pipeline) referencePrice(price float64) float64 {
	if price > 0 {
		return price
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.MarketPriceEstimate
}

func (p *Pipeline) release(id string) {
	if p.ledger != nil {
		p.ledger.Release(id)
	}
}

// Submit validates and queues req. It returns the order id, or "" when the
// request was refused.
func (p *Pipeline) Submit(req model.OrderRequest) string {
	var id string
	err := checkRequest(req)
	if err == nil {
		id = p.ids.Next()
		err = p.admit(id, req)
	}
	if err != nil {
		p.metrics.IncRejectedOrder()
		logs.Warnf("order refused, type: %s, symbol: %s, qty: %d, err: %+v", req.Type, req.Symbol, req.Quantity, err)
		return ""
	}
	now := p.session.NowMillis()
	if req.Timestamp == 0 {
		req.Timestamp = now
	}

	p.mu.Lock()
	if err := p.machine.Add(model.OrderDetail{OrderID: id, Request: req, SubmitTime: now}); err != nil {
		p.mu.Unlock()
		p.release(id)
		logs.Errorf("register order %s, err: %+v", id, err)
		return ""
	}
	p.seq++
	p.queue.push(entry{id: id, priority: req.Priority, seq: p.seq})
	p.mu.Unlock()

	p.signal()
	logs.Infof("order queued, id: %s, type: %s, symbol: %s, qty: %d, priority: %d", id, req.Type, req.Symbol, req.Quantity, req.Priority)
	return id
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) SubmitBuy(symbol string, qty int64, priority int) string {
	return p.Submit(model.OrderRequest{Type: enum.OrderTypeMarketBuy, Symbol: symbol, Quantity: qty, Priority: priority})
}

func (p *Pipeline) SubmitSell(symbol string, qty int64, priority int) string {
	return p.Submit(model.OrderRequest{Type: enum.OrderTypeMarketSell, Symbol: symbol, Quantity: qty, Priority: priority})
}

func (p *Pipeline) SubmitLimitBuy(symbol string, qty int64, price float64, priority int) string {
	return p.Submit(model.OrderRequest{Type: enum.OrderTypeLimitBuy, Symbol: symbol, Quantity: qty, Price: price, Priority: priority})
}

func (p *Pipeline) SubmitLimitSell(symbol string, qty int64, price float64, priority int) string {
	return p.Submit(model.OrderRequest{Type: enum.OrderTypeLimitSell, Symbol: symbol, Quantity: qty, Price: price, Priority: priority})
}

// ExecuteSignal turns a strategy signal into a market order. A zero signal
// quantity is sized by the ledger for entries and by the held position for
// exits.
func (p *Pipeline) ExecuteSignal(sig model.SignalInfo) string {
	req := model.OrderRequest{
		Symbol:       sig.Symbol,
		Quantity:     sig.Quantity,
		Price:        sig.Price,
		StrategyName: sig.Strategy,
	}
	switch sig.Signal {
	case enum.SignalBuy:
		req.Type = enum.OrderTypeMarketBuy
		req.Priority = PriorityEntry
		req.StopLoss, req.TakeProfit1, req.TakeProfit2 = sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2
		if req.Quantity <= 0 && p.ledger != nil {
			req.Quantity = p.ledger.CalculatePositionSize(sig.Price)
		}
	case enum.SignalSell, enum.SignalCloseLong:
		req.Type = enum.OrderTypeMarketSell
		req.Priority = PriorityExit
		if req.Quantity <= 0 {
			req.Quantity = p.heldQuantity(sig.Symbol)
		}
	case enum.SignalPartialClose:
		req.Type = enum.OrderTypeMarketSell
		req.Priority = PriorityExit
		if req.Quantity <= 0 {
			req.Quantity = p.heldQuantity(sig.Symbol)
		}
		req.Quantity = max(req.Quantity/2, 1)
	default:
		return ""
	}
	return p.Submit(req)
}

func (p *Pipeline) heldQuantity(symbol string) int64 {
	if p.ledger == nil {
		return 0
	}
	pos, ok := p.ledger.Position(symbol)
	if !ok {
		return 0
	}
	return pos.Quantity
}

// ClosePosition queues a forced market sell for the whole position.
func (p *Pipeline) ClosePosition(symbol string) string {
	if p.ledger == nil {
		return ""
	}
	pos, ok := p.ledger.Position(symbol)
	if !ok || pos.Quantity <= 0 {
		return ""
	}
	return p.Submit(model.OrderRequest{
		Type:         enum.OrderTypeMarketSell,
		Symbol:       symbol,
		Quantity:     pos.Quantity,
		Price:        pos.CurrentPrice,
		Priority:     PriorityForced,
		StrategyName: pos.Strategy,
	})
}

func (p *Pipeline) CloseAllPositions() []string {
	if p.ledger == nil {
		return nil
	}
	var ids []string
	for _, pos := range p.ledger.Positions() {
		if id := p.ClosePosition(pos.Symbol); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Cancel stops a Pending order locally or asks the broker to cancel a
// Submitted one.
func (p *Pipeline) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	status, ok := p.machine.status(id)
	if !ok {
		p.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotFound, id)
	}
	switch {
	case status == enum.OrderStatusPending && p.inflight != id:
		d, err := p.machine.Transition(id, enum.OrderStatusCancelled, nil)
		p.mu.Unlock()
		if err != nil {
			return err
		}
		p.release(id)
		p.notify(d)
		return nil
	case status == enum.OrderStatusSubmitted:
		d, _ := p.machine.Order(id)
		p.mu.Unlock()
		if err := p.port.CancelOrder(ctx, d.BrokerOrderID); err != nil {
			return errors.Wrapf(err, "cancel order %s", id)
		}
		p.mu.Lock()
		if cur, _ := p.machine.status(id); cur != enum.OrderStatusSubmitted {
			p.mu.Unlock()
			return nil
		}
		d, err := p.machine.Transition(id, enum.OrderStatusCancelled, nil)
		p.mu.Unlock()
		if err != nil {
			return err
		}
		p.dropUnfilledBuy(d)
		p.notify(d)
		return nil
	default:
		p.mu.Unlock()
		return errors.Wrapf(exception.ErrOrderNotCancellable, "%s is %s", id, status)
	}
}

// Modify reprices or resizes a live order. Zero values keep the current
// price or quantity. Buys are re-checked against the risk limits before the
// edit is applied.
func (p *Pipeline) Modify(ctx context.Context, id string, price float64, qty int64) error {
	edit := func(d *model.OrderDetail) {
		if price > 0 {
			d.Request.Price = price
		}
		if qty > 0 {
			d.Request.Quantity = qty
		}
	}

	p.mu.Lock()
	status, ok := p.machine.status(id)
	if !ok {
		p.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotFound, id)
	}
	d, _ := p.machine.Order(id)
	buy := d.Request.Type.IsBuy() && p.ledger != nil
	switch {
	case status == enum.OrderStatusPending && p.inflight != id:
		if buy {
			next := d
			edit(&next)
			ref := next.Request.Price
			if ref <= 0 {
				ref = p.cfg.MarketPriceEstimate
			}
			if err := p.riskError(p.ledger.Rereserve(id, ref, next.Request.Quantity)); err != nil {
				p.mu.Unlock()
				return errors.Wrapf(err, "modify %s", id)
			}
		}
		_, err := p.machine.Update(id, edit)
		p.mu.Unlock()
		return err
	case status == enum.OrderStatusSubmitted:
		p.mu.Unlock()
		if buy {
			if err := p.riskError(p.ledger.ResizePosition(d.Request.Symbol, price, qty, false)); err != nil {
				return errors.Wrapf(err, "modify %s", id)
			}
		}
		if err := p.port.ModifyOrder(ctx, d.BrokerOrderID, price, qty); err != nil {
			return errors.Wrapf(err, "modify order %s", id)
		}
		if buy {
			if res := p.ledger.ResizePosition(d.Request.Symbol, price, qty, true); !res.Allowed {
				logs.Warnf("order %s modified at the broker but ledger resize refused, reason: %s", id, res.Reason)
			}
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		_, err := p.machine.Update(id, edit)
		return err
	default:
		p.mu.Unlock()
		return errors.Wrapf(exception.ErrOrderInvalidTransition, "modify %s in status %s", id, status)
	}
}

func (p *Pipeline) Order(id string) (model.OrderDetail, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.Order(id)
}

// PendingOrders returns orders not yet in a terminal state.
func (p *Pipeline) PendingOrders() []model.OrderDetail {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.OrderDetail
	for _, d := range p.machine.List() {
		if !d.Status.IsTerminal() {
			out = append(out, d)
		}
	}
	return out
}

func (p *Pipeline) TodayOrders() []model.OrderDetail {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.List()
}

// QueueLen counts queued entries, including ones cancelled while pending.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// ResetDaily forgets finished orders.
func (p *Pipeline) ResetDaily() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.machine.Prune()
}

// Start launches the dispatch worker.
func (p *Pipeline) Start() {
	if p.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	logs.Info("order pipeline started")
}

// Stop halts dispatch and waits for an in-flight broker call to finish.
func (p *Pipeline) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()
	<-p.done
	logs.Info("order pipeline stopped")
}

func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) drain(ctx context.Context) {
	for ctx.Err() == nil {
		id, req, ok := p.next()
		if !ok {
			return
		}
		p.dispatch(context.WithoutCancel(ctx), id, req)
	}
}

// next pops the highest priority order still Pending and marks it in flight.
func (p *Pipeline) next() (string, model.OrderRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		e, ok := p.queue.pop()
		if !ok {
			return "", model.OrderRequest{}, false
		}
		d, ok := p.machine.Order(e.id)
		if !ok || d.Status != enum.OrderStatusPending {
			continue
		}
		p.inflight = e.id
		return e.id, d.Request, true
	}
}

func (p *Pipeline) place(ctx context.Context, req model.OrderRequest) (broker.OrderResult, error) {
	switch req.Type {
	case enum.OrderTypeMarketBuy:
		return p.port.BuyMarket(ctx, req.Symbol, req.Quantity)
	case enum.OrderTypeLimitBuy:
		return p.port.BuyLimit(ctx, req.Symbol, req.Quantity, req.Price)
	case enum.OrderTypeMarketSell:
		return p.port.SellMarket(ctx, req.Symbol, req.Quantity)
	case enum.OrderTypeLimitSell:
		return p.port.SellLimit(ctx, req.Symbol, req.Quantity, req.Price)
	default:
		return broker.OrderResult{}, errors.Wrap(exception.ErrOrderUnsupportedType, req.Type.String())
	}
}

func (p *Pipeline) dispatch(ctx context.Context, id string, req model.OrderRequest) {
	start := time.Now()
	res, err := p.place(ctx, req)
	p.metrics.ObserveOrderFlow(time.Since(start))

	if err != nil {
		p.release(id)
		p.mu.Lock()
		p.inflight = ""
		d, terr := p.machine.Transition(id, enum.OrderStatusFailed, func(d *model.OrderDetail) {
			d.ErrorMessage = err.Error()
		})
		p.mu.Unlock()
		if terr != nil {
			logs.Errorf("mark order %s failed, err: %+v", id, terr)
			return
		}
		logs.Errorf("order failed, id: %s, symbol: %s, err: %+v", id, req.Symbol, err)
		p.notify(d)
		return
	}

	price := p.executionPrice(ctx, req, res)
	qty := req.Quantity
	if res.Filled && res.FilledQuantity > 0 {
		qty = res.FilledQuantity
	}
	p.checkSlippage(id, req, res)

	// Ledger first: a terminal order implies its position change is visible.
	p.applyToLedger(id, req, price, qty)

	var fees risk.Fees
	if p.ledger != nil {
		fees = p.ledger.Config().Fees
	}
	p.mu.Lock()
	p.inflight = ""
	d, terr := p.machine.Transition(id, enum.OrderStatusSubmitted, func(d *model.OrderDetail) {
		d.BrokerOrderID = res.OrderID
	})
	if terr == nil && res.Filled {
		to := enum.OrderStatusFilled
		if res.FilledQuantity > 0 && res.FilledQuantity < req.Quantity {
			to = enum.OrderStatusPartial
		}
		d, terr = p.machine.Transition(id, to, func(d *model.OrderDetail) {
			d.FilledQuantity = qty
			d.FilledPrice = price
			d.FillTime = p.session.NowMillis()
			d.Commission = fees.Commission(price * float64(qty))
		})
	}
	p.mu.Unlock()
	if terr != nil {
		logs.Errorf("update order %s, err: %+v", id, terr)
		return
	}

	logs.Infof("order %s, id: %s, broker id: %s, symbol: %s, qty: %d, price: %.2f", d.Status, id, res.OrderID, req.Symbol, qty, price)
	p.notify(d)
}

// executionPrice is the fill price, else the limit or reference price, else
// the broker's live quote.
func (p *Pipeline) executionPrice(ctx context.Context, req model.OrderRequest, res broker.OrderResult) float64 {
	if res.Filled && res.FilledPrice > 0 {
		return res.FilledPrice
	}
	if req.Price > 0 {
		return req.Price
	}
	q, err := p.port.CurrentQuote(ctx, req.Symbol)
	if err != nil {
		logs.Warnf("quote %s for execution price, err: %+v", req.Symbol, err)
		return 0
	}
	return q.CurrentPrice
}

func (p *Pipeline) checkSlippage(id string, req model.OrderRequest, res broker.OrderResult) {
	limit := p.MaxSlippage()
	if limit <= 0 || req.Type.IsLimit() || req.Price <= 0 || !res.Filled || res.FilledPrice <= 0 {
		return
	}
	slip := math.Abs(res.FilledPrice-req.Price) / req.Price * 100
	if slip > limit {
		logs.Warnf("order %s slipped %.2f%% (limit %.2f%%), ref: %.2f, fill: %.2f", id, slip, limit, req.Price, res.FilledPrice)
	}
}

func (p *Pipeline) applyToLedger(id string, req model.OrderRequest, price float64, qty int64) {
	if p.ledger == nil {
		return
	}
	if req.Type.IsBuy() {
		p.ledger.FillReservation(id, model.Position{
			Symbol:           req.Symbol,
			Quantity:         qty,
			AvgPrice:         price,
			CurrentPrice:     price,
			StopLossPrice:    req.StopLoss,
			TakeProfitPrice1: req.TakeProfit1,
			TakeProfitPrice2: req.TakeProfit2,
			EntryQty:         qty,
			RemainingQty:     qty,
			Strategy:         req.StrategyName,
		})
		rec := model.TradeRecord{
			Symbol:    req.Symbol,
			IsBuy:     true,
			Quantity:  qty,
			Price:     price,
			Timestamp: p.session.NowMillis(),
			Strategy:  req.StrategyName,
		}
		p.ledger.RecordTrade(rec)
		p.publishTrade(rec)
		return
	}
	rec, ok := p.ledger.ClosePosition(req.Symbol, price, qty)
	if !ok {
		logs.Warnf("sell %s accepted without a ledger position", req.Symbol)
		return
	}
	p.publishTrade(rec)
}

func (p *Pipeline) publishTrade(rec model.TradeRecord) {
	p.mu.Lock()
	q := p.trades
	p.mu.Unlock()
	if q == nil {
		return
	}
	switch err := q.TryPublish(rec); err {
	case nil:
	case bus.ErrQueueFull:
		p.metrics.IncQueueDrop()
		logs.Warnf("trade bus full, drop %s trade", rec.Symbol)
	case bus.ErrQueueClosed:
		p.metrics.IncQueueClosed()
	}
}

// OnBrokerOrder applies an asynchronous broker notice to a live order.
func (p *Pipeline) OnBrokerOrder(ev broker.OrderEvent) {
	p.mu.Lock()
	id, ok := p.machine.ByBrokerID(ev.OrderID)
	if !ok {
		p.mu.Unlock()
		logs.Debugf("broker event for unknown order %s", ev.OrderID)
		return
	}
	d, err := p.machine.Transition(id, ev.Status, func(d *model.OrderDetail) {
		if ev.FilledQuantity > 0 {
			d.FilledQuantity = ev.FilledQuantity
			d.FilledPrice = ev.FilledPrice
			d.FillTime = p.session.NowMillis()
		}
		if ev.Message != "" {
			d.ErrorMessage = ev.Message
		}
	})
	p.mu.Unlock()
	if err != nil {
		logs.Debugf("ignore broker event %s for %s, err: %+v", ev.Status, id, err)
		return
	}

	p.dropUnfilledBuy(d)
	p.notify(d)
}

// dropUnfilledBuy undoes the ledger entry of a buy that ended without a fill.
func (p *Pipeline) dropUnfilledBuy(d model.OrderDetail) {
	if p.ledger == nil || !d.Request.Type.IsBuy() || d.FilledQuantity > 0 {
		return
	}
	switch d.Status {
	case enum.OrderStatusRejected, enum.OrderStatusCancelled, enum.OrderStatusFailed:
		p.ledger.Release(d.OrderID)
		p.ledger.DiscardPosition(d.Request.Symbol)
	}
}

func (p *Pipeline) notify(d model.OrderDetail) {
	p.metrics.ObserveOrderStatus(d.Status)
	p.mu.Lock()
	handler, pub := p.onStatus, p.publisher
	p.mu.Unlock()

	if handler != nil {
		handler(d)
	}
	if pub == nil {
		return
	}
	switch err := pub.TryPublish(d); err {
	case nil:
	case bus.ErrQueueFull:
		p.metrics.IncQueueDrop()
		logs.Warnf("status bus full, drop order %s", d.OrderID)
	case bus.ErrQueueClosed:
		p.metrics.IncQueueClosed()
	}
}
