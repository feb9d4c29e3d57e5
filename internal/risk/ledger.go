package risk

import (
	"math"
	"sort"
	"sync"

	"github.com/yanun0323/logs"

	"autotrader/internal/model"
	"autotrader/internal/session"
)

// Config defines the daily envelope and cost model.
type Config struct {
	Budget model.DailyBudgetConfig `json:"budget"`
	Fees   Fees                    `json:"fees"`
}

func DefaultConfig() Config {
	return Config{Budget: model.DefaultDailyBudget(), Fees: DefaultFees()}
}

// Ledger owns positions, the trade log and session P&L. Every public method
// takes the ledger lock; lower-case helpers expect it held.
type Ledger struct {
	session *session.Session

	mu          sync.Mutex
	cfg         Config
	positions   map[string]model.Position
	reserved    map[string]reservation
	trades      []model.TradeRecord
	realized    float64
	peakEquity  float64
	maxDrawdown float64
}

func NewLedger(cfg Config, sess *session.Session) *Ledger {
	if cfg.Fees == (Fees{}) {
		cfg.Fees = DefaultFees()
	}
	if sess == nil {
		sess = session.New(session.DefaultConfig(), nil)
	}
	l := &Ledger{session: sess, cfg: cfg, reserved: make(map[string]reservation)}
	l.resetLocked()
	return l
}

func (l *Ledger) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.Fees == (Fees{}) {
		cfg.Fees = l.cfg.Fees
	}
	l.cfg = cfg
}

func (l *Ledger) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// ResetDaily clears positions, trades and realized P&L for a new session.
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Ledger) resetLocked() {
	l.positions = make(map[string]model.Position)
	l.trades = nil
	l.realized = 0
	l.peakEquity = l.cfg.Budget.DailyBudget
	l.maxDrawdown = 0
}

// Evaluate runs the five admission checks in order and reports the first
// failure. Reserved entries count as open positions.
func (l *Ledger) Evaluate(symbol string, price float64, qty int64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evaluateLocked(symbol, price, qty, exclusion{})
}

func (l *Ledger) evaluateLocked(symbol string, price float64, qty int64, skip exclusion) Decision {
	d := Decision{Symbol: symbol, Price: price, Quantity: qty, Notional: price * float64(qty), Allowed: true}
	budget := l.cfg.Budget
	held, committed := l.exposureLocked(skip)

	switch {
	case symbol == "" || price <= 0 || qty <= 0:
		d.Reason = ReasonInvalidInput
	case l.totalPnLLocked() <= -budget.MaxDailyLoss():
		d.Reason = ReasonDailyLoss
	case len(held) >= budget.MaxConcurrentPositions:
		d.Reason = ReasonMaxPositions
	case held[symbol]:
		d.Reason = ReasonDuplicate
	case d.Notional > budget.MaxPositionSize():
		d.Reason = ReasonPositionSize
	case committed+d.Notional > budget.DailyBudget:
		d.Reason = ReasonBudget
	}
	if d.Reason != ReasonNone {
		d.Allowed = false
		logs.Infof("risk reject, symbol: %s, price: %.2f, qty: %d, reason: %s", symbol, price, qty, d.Reason)
	}
	return d
}

func (l *Ledger) CanOpenPosition(symbol string, price float64, qty int64) bool {
	return l.Evaluate(symbol, price, qty).Allowed
}

// CanAddToPosition reports whether adding qty keeps the holding within the
// per-position cap. It is false for unknown symbols.
func (l *Ledger) CanAddToPosition(symbol string, price float64, qty int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return false
	}
	return pos.AvgPrice*float64(pos.Quantity)+price*float64(qty) <= l.cfg.Budget.MaxPositionSize()
}

// CalculatePositionSize is max(1, floor(maxPositionSize/price)), 0 for a
// non-positive price.
func (l *Ledger) CalculatePositionSize(price float64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if price <= 0 {
		return 0
	}
	qty := int64(math.Floor(l.cfg.Budget.MaxPositionSize() / price))
	if qty < 1 {
		return 1
	}
	return qty
}

// CalculateMaxQuantity sizes against the smaller of the per-position cap and
// the unspent budget.
func (l *Ledger) CalculateMaxQuantity(price float64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if price <= 0 {
		return 0
	}
	_, committed := l.exposureLocked(exclusion{})
	room := math.Min(l.cfg.Budget.DailyBudget-committed, l.cfg.Budget.MaxPositionSize())
	if room <= 0 {
		return 0
	}
	return int64(math.Floor(room / price))
}

func CalculateStopLoss(entry, ratio float64) float64 {
	return entry * (1 - ratio)
}

func CalculateTakeProfit(entry, ratio float64) float64 {
	return entry * (1 + ratio)
}

// AddPosition inserts or replaces the position without re-validating it.
func (l *Ledger) AddPosition(pos model.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addPositionLocked(pos)
}

func (l *Ledger) addPositionLocked(pos model.Position) {
	if pos.EntryQty <= 0 {
		pos.EntryQty = pos.Quantity
	}
	if pos.RemainingQty <= 0 || pos.RemainingQty > pos.Quantity {
		pos.RemainingQty = pos.Quantity
	}
	if pos.CurrentPrice <= 0 {
		pos.CurrentPrice = pos.AvgPrice
	}
	if pos.EntryTime == 0 {
		pos.EntryTime = l.session.NowMillis()
	}
	l.positions[pos.Symbol] = pos
}

// UpdatePosition marks the position to price net of round-trip costs.
func (l *Ledger) UpdatePosition(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return
	}
	qty := float64(pos.Quantity)
	pos.CurrentPrice = price
	pos.UnrealizedPnL = (price-pos.AvgPrice)*qty - l.cfg.Fees.Commission(pos.AvgPrice*qty) - l.cfg.Fees.Tax(price*qty)
	l.positions[symbol] = pos
	l.markEquityLocked()
}

// ClosePosition realizes qty (capped at the held quantity) at price and
// removes the position once flat. ok is false for an unknown symbol.
func (l *Ledger) ClosePosition(symbol string, price float64, qty int64) (model.TradeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok || qty <= 0 {
		return model.TradeRecord{}, false
	}
	closeQty := min(qty, pos.Quantity)
	q := float64(closeQty)
	buyValue := pos.AvgPrice * q
	sellValue := price * q
	pnl := (price-pos.AvgPrice)*q - l.cfg.Fees.Commission(buyValue) - l.cfg.Fees.Commission(sellValue) - l.cfg.Fees.Tax(sellValue)
	l.realized += pnl

	rec := model.TradeRecord{
		Symbol:    symbol,
		IsBuy:     false,
		Quantity:  closeQty,
		Price:     price,
		PnL:       pnl,
		Timestamp: l.session.NowMillis(),
		Strategy:  pos.Strategy,
	}
	l.trades = append(l.trades, rec)

	pos.Quantity -= closeQty
	pos.RemainingQty = min(pos.RemainingQty-closeQty, pos.Quantity)
	if pos.RemainingQty < 0 {
		pos.RemainingQty = 0
	}
	if pos.Quantity <= 0 {
		delete(l.positions, symbol)
	} else {
		remaining := float64(pos.Quantity)
		pos.UnrealizedPnL = (pos.CurrentPrice-pos.AvgPrice)*remaining - l.cfg.Fees.Commission(pos.AvgPrice*remaining) - l.cfg.Fees.Tax(pos.CurrentPrice*remaining)
		l.positions[symbol] = pos
	}
	l.markEquityLocked()
	logs.Infof("position closed, symbol: %s, qty: %d, price: %.2f, pnl: %.2f", symbol, closeQty, price, pnl)
	return rec, true
}

// DiscardPosition drops a position without realizing P&L, for entries the
// broker never executed.
func (l *Ledger) DiscardPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[symbol]; !ok {
		return false
	}
	delete(l.positions, symbol)
	l.markEquityLocked()
	logs.Warnf("position discarded, symbol: %s", symbol)
	return true
}

func (l *Ledger) markEquityLocked() {
	equity := l.cfg.Budget.DailyBudget + l.totalPnLLocked()
	if equity > l.peakEquity {
		l.peakEquity = equity
	}
	if dd := l.peakEquity - equity; dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
}

func (l *Ledger) Position(symbol string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasPositionLocked(symbol)
}

func (l *Ledger) hasPositionLocked(symbol string) bool {
	_, ok := l.positions[symbol]
	return ok
}

// Positions returns copies sorted by symbol.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionsLocked()
}

func (l *Ledger) positionsLocked() []model.Position {
	out := make([]model.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *Ledger) OpenPositionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

func (l *Ledger) UnrealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unrealizedLocked()
}

func (l *Ledger) TotalPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPnLLocked()
}

func (l *Ledger) unrealizedLocked() float64 {
	total := 0.0
	for _, pos := range l.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

func (l *Ledger) totalPnLLocked() float64 {
	return l.realized + l.unrealizedLocked()
}

func (l *Ledger) investedLocked() float64 {
	total := 0.0
	for _, pos := range l.positions {
		total += pos.AvgPrice * float64(pos.Quantity)
	}
	return total
}

func (l *Ledger) IsDailyLossLimitReached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPnLLocked() <= -l.cfg.Budget.MaxDailyLoss()
}

// ShouldStopLoss is true when the marked price is at or below a set stop.
func (l *Ledger) ShouldStopLoss(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return ok && StopLossHit(pos, pos.CurrentPrice)
}

// ShouldTakeProfit checks tier 1 before any partial exit and tier 2 after.
func (l *Ledger) ShouldTakeProfit(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return false
	}
	if pos.PartiallyExited() {
		return TakeProfit2Hit(pos, pos.CurrentPrice)
	}
	return TakeProfit1Hit(pos, pos.CurrentPrice)
}

func (l *Ledger) ShouldForceClose() bool {
	return l.session.IsForceCloseWindow()
}

// RecordTrade appends an externally produced record, such as an entry fill.
func (l *Ledger) RecordTrade(rec model.TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.Timestamp == 0 {
		rec.Timestamp = l.session.NowMillis()
	}
	l.trades = append(l.trades, rec)
}

func (l *Ledger) TodayTrades() []model.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// StopLossHit reports whether price breaches a configured stop.
func StopLossHit(pos model.Position, price float64) bool {
	return pos.StopLossPrice > 0 && price > 0 && price <= pos.StopLossPrice
}

func TakeProfit1Hit(pos model.Position, price float64) bool {
	return !pos.PartiallyExited() && pos.TakeProfitPrice1 > 0 && price >= pos.TakeProfitPrice1
}

func TakeProfit2Hit(pos model.Position, price float64) bool {
	return pos.PartiallyExited() && pos.TakeProfitPrice2 > 0 && price >= pos.TakeProfitPrice2
}
