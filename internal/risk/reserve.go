package risk

import (
	"github.com/yanun0323/logs"

	"autotrader/internal/model"
)

// reservation holds a queued buy's slot and notional until the broker
// accepts or the order ends.
type reservation struct {
	symbol   string
	notional float64
}

// exclusion leaves one reservation or one position out of the exposure, so
// an order can be re-checked against everything but itself.
type exclusion struct {
	reservation string
	position    string
}

// exposureLocked returns the symbols that occupy a position slot and the
// committed notional of positions and reservations.
func (l *Ledger) exposureLocked(skip exclusion) (map[string]bool, float64) {
	held := make(map[string]bool, len(l.positions)+len(l.reserved))
	committed := 0.0
	for symbol, pos := range l.positions {
		if symbol == skip.position {
			continue
		}
		held[symbol] = true
		committed += pos.AvgPrice * float64(pos.Quantity)
	}
	for id, r := range l.reserved {
		if id == skip.reservation {
			continue
		}
		held[r.symbol] = true
		committed += r.notional
	}
	return held, committed
}

// Reserve evaluates a buy and, when allowed, holds its slot and notional
// under id until Release or FillReservation.
func (l *Ledger) Reserve(id, symbol string, price float64, qty int64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.evaluateLocked(symbol, price, qty, exclusion{reservation: id})
	if d.Allowed {
		l.reserved[id] = reservation{symbol: symbol, notional: d.Notional}
	}
	return d
}

// Rereserve re-checks a reserved buy at a new price and quantity, keeping the
// previous reservation when the edit is refused.
func (l *Ledger) Rereserve(id string, price float64, qty int64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserved[id]
	if !ok {
		return Decision{Price: price, Quantity: qty, Reason: ReasonInvalidInput}
	}
	d := l.evaluateLocked(r.symbol, price, qty, exclusion{reservation: id})
	if d.Allowed {
		l.reserved[id] = reservation{symbol: r.symbol, notional: d.Notional}
	}
	return d
}

// Release drops the reservation held under id. It is a no-op for unknown ids.
func (l *Ledger) Release(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reserved[id]; !ok {
		return false
	}
	delete(l.reserved, id)
	return true
}

// FillReservation swaps the reservation held under id for pos.
func (l *Ledger) FillReservation(id string, pos model.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, id)
	l.addPositionLocked(pos)
}

func (l *Ledger) ReservedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reserved)
}

// ResizePosition re-checks an open position at a new price and quantity
// against everything but itself, and applies the change when apply is set
// and the checks pass. Zero keeps the current price or quantity.
func (l *Ledger) ResizePosition(symbol string, price float64, qty int64, apply bool) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return Decision{Symbol: symbol, Price: price, Quantity: qty, Reason: ReasonInvalidInput}
	}
	if price <= 0 {
		price = pos.AvgPrice
	}
	if qty <= 0 {
		qty = pos.Quantity
	}
	d := l.evaluateLocked(symbol, price, qty, exclusion{position: symbol})
	if !d.Allowed || !apply {
		return d
	}
	pos.AvgPrice = price
	pos.CurrentPrice = price
	pos.Quantity = qty
	pos.EntryQty = qty
	pos.RemainingQty = qty
	l.positions[symbol] = pos
	logs.Infof("position resized, symbol: %s, qty: %d, price: %.2f", symbol, qty, price)
	return d
}
