package engine

import (
	"slices"

	"autotrader/internal/model"
	"autotrader/internal/obs"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
)

const recentOrders = 50

// DashboardData is a point-in-time copy of engine state for display.
type DashboardData struct {
	Timestamp  int64                   `json:"timestamp"`
	Day        string                  `json:"day"`
	Running    bool                    `json:"running"`
	MarketOpen bool                    `json:"marketOpen"`
	ForceClose bool                    `json:"forceClose"`
	Halted     bool                    `json:"halted"`
	Budget     model.DailyBudgetConfig `json:"budget"`
	Stats      risk.Stats              `json:"stats"`
	Positions  []model.Position        `json:"positions"`
	Quotes     map[string]model.Quote  `json:"quotes"`
	Strategies []strategy.Status       `json:"strategies"`
	Orders     []model.OrderDetail     `json:"orders"`
	Logs       []LogEntry              `json:"logs"`
	Metrics    obs.Snapshot            `json:"metrics"`
}

func (e *Engine) Dashboard() DashboardData {
	now := e.session.Now()
	return DashboardData{
		Timestamp:  now.UnixMilli(),
		Day:        e.session.DayKey(now),
		Running:    e.running.Load(),
		MarketOpen: e.session.IsMarketOpen(),
		ForceClose: e.session.IsForceCloseWindow(),
		Halted:     e.halted.Load(),
		Budget:     e.ledger.Config().Budget,
		Stats:      e.ledger.Stats(),
		Positions:  e.ledger.Positions(),
		Quotes:     e.market.Quotes(),
		Strategies: e.strategies.Status(),
		Orders:     e.RecentOrders(recentOrders),
		Logs:       e.logs.Entries(),
		Metrics:    e.metrics.Snapshot(),
	}
}

// RecentOrders returns today's orders, newest submission first.
func (e *Engine) RecentOrders(limit int) []model.OrderDetail {
	orders := e.orders.TodayOrders()
	slices.Reverse(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}
