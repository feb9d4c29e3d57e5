package risk

import "autotrader/internal/model"

// noLossProfitFactor is reported when there are wins and no losses.
const noLossProfitFactor = 999

// Stats summarizes the session's closing trades and equity curve.
type Stats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinTrades     int     `json:"winTrades"`
	LossTrades    int     `json:"lossTrades"`
	WinRate       float64 `json:"winRate"`
	AvgWin        float64 `json:"avgWin"`
	AvgLoss       float64 `json:"avgLoss"`
	ProfitFactor  float64 `json:"profitFactor"`
	RealizedPnL   float64 `json:"realizedPnl"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	TotalPnL      float64 `json:"totalPnl"`
	CurrentEquity float64 `json:"currentEquity"`
	PeakEquity    float64 `json:"peakEquity"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	Invested      float64 `json:"invested"`
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := summarize(l.trades)
	s.RealizedPnL = l.realized
	s.UnrealizedPnL = l.unrealizedLocked()
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	s.CurrentEquity = l.cfg.Budget.DailyBudget + s.TotalPnL
	s.PeakEquity = l.peakEquity
	s.MaxDrawdown = l.maxDrawdown
	s.Invested = l.investedLocked()
	return s
}

// summarize counts closing trades only; win rate is in percent.
func summarize(trades []model.TradeRecord) Stats {
	var s Stats
	var winSum, lossSum float64
	for _, t := range trades {
		if t.IsBuy {
			continue
		}
		s.TotalTrades++
		switch {
		case t.PnL > 0:
			s.WinTrades++
			winSum += t.PnL
		case t.PnL < 0:
			s.LossTrades++
			lossSum -= t.PnL
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinTrades) / float64(s.TotalTrades) * 100
	}
	if s.WinTrades > 0 {
		s.AvgWin = winSum / float64(s.WinTrades)
	}
	if s.LossTrades > 0 {
		s.AvgLoss = lossSum / float64(s.LossTrades)
	}
	switch {
	case s.AvgLoss > 0:
		s.ProfitFactor = s.AvgWin / s.AvgLoss
	case s.AvgWin > 0:
		s.ProfitFactor = noLossProfitFactor
	}
	return s
}
