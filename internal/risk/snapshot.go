package risk

import "autotrader/internal/model"

// Snapshot is the restorable ledger state.
type Snapshot struct {
	Day         string              `json:"day"`
	RealizedPnL float64             `json:"realizedPnl"`
	PeakEquity  float64             `json:"peakEquity"`
	MaxDrawdown float64             `json:"maxDrawdown"`
	Positions   []model.Position    `json:"positions"`
	Trades      []model.TradeRecord `json:"trades"`
}

// Snapshot captures positions, trades and P&L under the ledger lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	trades := make([]model.TradeRecord, len(l.trades))
	copy(trades, l.trades)
	return Snapshot{
		Day:         l.session.DayKey(l.session.Now()),
		RealizedPnL: l.realized,
		PeakEquity:  l.peakEquity,
		MaxDrawdown: l.maxDrawdown,
		Positions:   l.positionsLocked(),
		Trades:      trades,
	}
}

// Restore replaces ledger state with the snapshot.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	for _, pos := range s.Positions {
		l.positions[pos.Symbol] = pos
	}
	l.trades = append(l.trades, s.Trades...)
	l.realized = s.RealizedPnL
	if s.PeakEquity > 0 {
		l.peakEquity = s.PeakEquity
	}
	l.maxDrawdown = s.MaxDrawdown
}
