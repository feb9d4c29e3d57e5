package state

import "autotrader/internal/model"

// PositionReducer folds trade records into net quantities per symbol.
type PositionReducer struct {
	positions map[string]int64
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[string]int64)}
}

// ApplyTrade updates the position and returns the new quantity.
func (r *PositionReducer) ApplyTrade(t model.TradeRecord) int64 {
	next := r.positions[t.Symbol]
	if t.IsBuy {
		next += t.Quantity
	} else {
		next -= t.Quantity
	}
	if next == 0 {
		delete(r.positions, t.Symbol)
	} else {
		r.positions[t.Symbol] = next
	}
	return next
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	clear(r.positions)
	for _, entry := range snapshot.Entries() {
		r.positions[entry.Symbol] = entry.Qty
	}
}

// Position returns the current quantity for a symbol.
func (r *PositionReducer) Position(symbol string) int64 {
	return r.positions[symbol]
}

// Count returns the number of tracked symbols.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}

// Quantities returns a copy of every tracked quantity.
func (r *PositionReducer) Quantities() map[string]int64 {
	out := make(map[string]int64, len(r.positions))
	for k, v := range r.positions {
		out[k] = v
	}
	return out
}

// Replay folds trades in order into a fresh reducer.
func Replay(trades []model.TradeRecord) *PositionReducer {
	r := NewPositionReducer()
	for _, t := range trades {
		r.ApplyTrade(t)
	}
	return r
}
