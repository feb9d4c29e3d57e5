package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/order"
	"autotrader/internal/risk"
	"autotrader/internal/session"
)

type Config struct {
	PollInterval time.Duration `json:"-"`
}

func DefaultConfig() Config {
	return Config{PollInterval: 100 * time.Millisecond}
}

// Executor is the order surface exits go through.
type Executor interface {
	Submit(req model.OrderRequest) string
	Order(id string) (model.OrderDetail, bool)
}

// Monitor watches open positions for stop, take-profit and liquidation
// exits. At most one exit order per symbol is live at a time.
type Monitor struct {
	cfg     Config
	ledger  *risk.Ledger
	exec    Executor
	session *session.Session

	mu       sync.Mutex
	inflight map[string]string

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, ledger *risk.Ledger, exec Executor, sess *session.Session) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if sess == nil {
		sess = session.New(session.DefaultConfig(), nil)
	}
	return &Monitor{
		cfg:      cfg,
		ledger:   ledger,
		exec:     exec,
		session:  sess,
		inflight: make(map[string]string),
	}
}

// OnQuoteUpdate marks the position to market and submits the first exit
// that applies: stop-loss, tier-1 half, then tier-2 remainder.
func (m *Monitor) OnQuoteUpdate(symbol string, q model.Quote) {
	price := q.CurrentPrice
	if price <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger.UpdatePosition(symbol, price)
	pos, ok := m.ledger.Position(symbol)
	if !ok || pos.Quantity <= 0 || m.busyLocked(symbol) {
		return
	}

	switch {
	case risk.StopLossHit(pos, price):
		m.exitLocked(pos, pos.Quantity, price, order.PriorityForced, "stop loss")
	case pos.RemainingQty == pos.EntryQty && risk.TakeProfit1Hit(pos, price):
		m.exitLocked(pos, max(pos.EntryQty/2, 1), price, order.PriorityForced, "take profit 1")
	case risk.TakeProfit2Hit(pos, price):
		m.exitLocked(pos, pos.Quantity, price, order.PriorityForced, "take profit 2")
	}
}

// CheckForceClose liquidates every position once the force-close window is
// open. It returns the number of exit orders submitted.
func (m *Monitor) CheckForceClose() int {
	if !m.session.IsMarketOpen() || !m.session.IsForceCloseWindow() {
		return 0
	}
	return m.CloseAll("force close")
}

// CloseAll submits a full exit for every position without a live exit.
func (m *Monitor) CloseAll(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pos := range m.ledger.Positions() {
		if pos.Quantity <= 0 || m.busyLocked(pos.Symbol) {
			continue
		}
		if m.exitLocked(pos, pos.Quantity, pos.CurrentPrice, order.PriorityForced, reason) {
			n++
		}
	}
	return n
}

// RequestExit submits a strategy exit of qty (capped at the held quantity)
// unless another exit for symbol is live.
func (m *Monitor) RequestExit(symbol string, qty int64, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.ledger.Position(symbol)
	if !ok || pos.Quantity <= 0 || m.busyLocked(symbol) {
		return false
	}
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}
	return m.exitLocked(pos, qty, pos.CurrentPrice, order.PriorityExit, reason)
}

// busyLocked reports whether an earlier exit for symbol is still live.
func (m *Monitor) busyLocked(symbol string) bool {
	id, ok := m.inflight[symbol]
	if !ok {
		return false
	}
	if d, ok := m.exec.Order(id); ok && !d.Status.IsTerminal() {
		return true
	}
	delete(m.inflight, symbol)
	return false
}

func (m *Monitor) exitLocked(pos model.Position, qty int64, price float64, priority int, reason string) bool {
	id := m.exec.Submit(model.OrderRequest{
		Type:         enum.OrderTypeMarketSell,
		Symbol:       pos.Symbol,
		Quantity:     qty,
		Price:        price,
		Priority:     priority,
		StrategyName: pos.Strategy,
	})
	if id == "" {
		logs.Warnf("%s exit refused, symbol: %s, qty: %d", reason, pos.Symbol, qty)
		return false
	}
	m.inflight[pos.Symbol] = id
	logs.Infof("%s exit, symbol: %s, qty: %d, price: %.2f, order: %s", reason, pos.Symbol, qty, price, id)
	return true
}

// Inflight returns the live exit order for symbol, if any.
func (m *Monitor) Inflight(symbol string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.busyLocked(symbol) {
		return "", false
	}
	return m.inflight[symbol], true
}

func (m *Monitor) Start() {
	if m.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
	logs.Info("exit monitor started")
}

func (m *Monitor) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.cancel()
	<-m.done
	logs.Info("exit monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckForceClose()
		}
	}
}
