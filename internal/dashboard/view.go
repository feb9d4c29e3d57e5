package dashboard

import (
	"sort"

	"github.com/yanun0323/decimal"

	"autotrader/internal/engine"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/obs"
	"autotrader/internal/strategy"
)

const moneyPlaces = 2

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(moneyPlaces)
}

// View is the JSON shape of the dashboard. Amounts are rounded to two places.
type View struct {
	Timestamp  int64             `json:"timestamp"`
	Day        string            `json:"day"`
	Running    bool              `json:"running"`
	MarketOpen bool              `json:"marketOpen"`
	ForceClose bool              `json:"forceClose"`
	Halted     bool              `json:"halted"`
	Budget     BudgetView        `json:"budget"`
	Stats      StatsView         `json:"stats"`
	Positions  []PositionView    `json:"positions"`
	Quotes     []QuoteView       `json:"quotes"`
	Strategies []strategy.Status `json:"strategies"`
	Orders     []OrderView       `json:"orders"`
	Logs       []engine.LogEntry `json:"logs"`
	Metrics    obs.Snapshot      `json:"metrics"`
}

type BudgetView struct {
	DailyBudget            decimal.Decimal `json:"dailyBudget"`
	MaxPositionSize        decimal.Decimal `json:"maxPositionSize"`
	MaxDailyLoss           decimal.Decimal `json:"maxDailyLoss"`
	PerTradeLoss           decimal.Decimal `json:"perTradeLoss"`
	MaxConcurrentPositions int             `json:"maxConcurrentPositions"`
}

type StatsView struct {
	TotalTrades   int             `json:"totalTrades"`
	WinTrades     int             `json:"winTrades"`
	LossTrades    int             `json:"lossTrades"`
	WinRate       decimal.Decimal `json:"winRate"`
	ProfitFactor  decimal.Decimal `json:"profitFactor"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	TotalPnL      decimal.Decimal `json:"totalPnl"`
	CurrentEquity decimal.Decimal `json:"currentEquity"`
	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`
	Invested      decimal.Decimal `json:"invested"`
}

type PositionView struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	RemainingQty  int64           `json:"remainingQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	StopLoss      decimal.Decimal `json:"stopLoss"`
	TakeProfit1   decimal.Decimal `json:"takeProfit1"`
	TakeProfit2   decimal.Decimal `json:"takeProfit2"`
	EntryTime     int64           `json:"entryTime"`
	Strategy      string          `json:"strategy"`
}

type QuoteView struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ChangeRate decimal.Decimal `json:"changeRate"`
	Volume     int64           `json:"volume"`
	Timestamp  int64           `json:"timestamp"`
}

type OrderView struct {
	OrderID        string           `json:"orderId"`
	BrokerOrderID  string           `json:"brokerOrderId,omitempty"`
	Symbol         string           `json:"symbol"`
	Type           enum.OrderType   `json:"type"`
	Status         enum.OrderStatus `json:"status"`
	Strategy       string           `json:"strategy,omitempty"`
	Priority       int              `json:"priority"`
	Quantity       int64            `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	FilledQuantity int64            `json:"filledQuantity"`
	FilledPrice    decimal.Decimal  `json:"filledPrice"`
	Commission     decimal.Decimal  `json:"commission"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`
	SubmitTime     int64            `json:"submitTime"`
	FillTime       int64            `json:"fillTime"`
}

func toView(d engine.DashboardData) View {
	quotes := make([]QuoteView, 0, len(d.Quotes))
	for _, q := range d.Quotes {
		quotes = append(quotes, toQuoteView(q))
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })

	return View{
		Timestamp:  d.Timestamp,
		Day:        d.Day,
		Running:    d.Running,
		MarketOpen: d.MarketOpen,
		ForceClose: d.ForceClose,
		Halted:     d.Halted,
		Budget: BudgetView{
			DailyBudget:            money(d.Budget.DailyBudget),
			MaxPositionSize:        money(d.Budget.MaxPositionSize()),
			MaxDailyLoss:           money(d.Budget.MaxDailyLoss()),
			PerTradeLoss:           money(d.Budget.PerTradeLoss()),
			MaxConcurrentPositions: d.Budget.MaxConcurrentPositions,
		},
		Stats: StatsView{
			TotalTrades:   d.Stats.TotalTrades,
			WinTrades:     d.Stats.WinTrades,
			LossTrades:    d.Stats.LossTrades,
			WinRate:       money(d.Stats.WinRate),
			ProfitFactor:  money(d.Stats.ProfitFactor),
			RealizedPnL:   money(d.Stats.RealizedPnL),
			UnrealizedPnL: money(d.Stats.UnrealizedPnL),
			TotalPnL:      money(d.Stats.TotalPnL),
			CurrentEquity: money(d.Stats.CurrentEquity),
			MaxDrawdown:   money(d.Stats.MaxDrawdown),
			Invested:      money(d.Stats.Invested),
		},
		Positions:  toPositionViews(d.Positions),
		Quotes:     quotes,
		Strategies: d.Strategies,
		Orders:     toOrderViews(d.Orders),
		Logs:       d.Logs,
		Metrics:    d.Metrics,
	}
}

func toPositionViews(positions []model.Position) []PositionView {
	out := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionView{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			RemainingQty:  p.RemainingQty,
			AvgPrice:      money(p.AvgPrice),
			CurrentPrice:  money(p.CurrentPrice),
			UnrealizedPnL: money(p.UnrealizedPnL),
			StopLoss:      money(p.StopLossPrice),
			TakeProfit1:   money(p.TakeProfitPrice1),
			TakeProfit2:   money(p.TakeProfitPrice2),
			EntryTime:     p.EntryTime,
			Strategy:      p.Strategy,
		})
	}
	return out
}

func toQuoteView(q model.Quote) QuoteView {
	return QuoteView{
		Symbol:     q.Symbol,
		Price:      money(q.CurrentPrice),
		ChangeRate: money(q.ChangeRate),
		Volume:     q.Volume,
		Timestamp:  q.Timestamp,
	}
}

func toOrderViews(orders []model.OrderDetail) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderView{
			OrderID:        o.OrderID,
			BrokerOrderID:  o.BrokerOrderID,
			Symbol:         o.Request.Symbol,
			Type:           o.Request.Type,
			Status:         o.Status,
			Strategy:       o.Request.StrategyName,
			Priority:       o.Request.Priority,
			Quantity:       o.Request.Quantity,
			Price:          money(o.Request.Price),
			FilledQuantity: o.FilledQuantity,
			FilledPrice:    money(o.FilledPrice),
			Commission:     money(o.Commission),
			ErrorMessage:   o.ErrorMessage,
			SubmitTime:     o.SubmitTime,
			FillTime:       o.FillTime,
		})
	}
	return out
}
