package model

// Position is an open long holding keyed by symbol.
//
// EntryQty is the quantity at entry. RemainingQty drops below it once a
// partial take-profit has been taken.
type Position struct {
	Symbol           string  `json:"symbol"`
	Quantity         int64   `json:"quantity"`
	AvgPrice         float64 `json:"avgPrice"`
	CurrentPrice     float64 `json:"currentPrice"`
	UnrealizedPnL    float64 `json:"unrealizedPnl"`
	StopLossPrice    float64 `json:"stopLossPrice"`
	TakeProfitPrice1 float64 `json:"takeProfitPrice1"`
	TakeProfitPrice2 float64 `json:"takeProfitPrice2"`
	RemainingQty     int64   `json:"remainingQty"`
	EntryQty         int64   `json:"entryQty"`
	EntryTime        int64   `json:"entryTime"`
	Strategy         string  `json:"strategy"`
}

// PartiallyExited reports whether a tier-1 exit has already been taken.
func (p Position) PartiallyExited() bool {
	return p.EntryQty > 0 && p.RemainingQty < p.EntryQty
}

// PnLRate returns the unrealized return on cost in percent.
func (p Position) PnLRate() float64 {
	cost := p.AvgPrice * float64(p.Quantity)
	if cost <= 0 {
		return 0
	}
	return p.UnrealizedPnL / cost * 100
}

// TradeRecord is an append-only journal line. PnL is set on closes only.
type TradeRecord struct {
	Symbol    string  `json:"symbol"`
	IsBuy     bool    `json:"isBuy"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	PnL       float64 `json:"pnl"`
	Timestamp int64   `json:"timestamp"`
	Strategy  string  `json:"strategy"`
}

// DailyBudgetConfig is the per-day risk envelope.
type DailyBudgetConfig struct {
	DailyBudget            float64 `json:"dailyBudget"`
	MaxPositionRatio       float64 `json:"maxPositionRatio"`
	MaxDailyLossRatio      float64 `json:"maxDailyLossRatio"`
	PerTradeLossRatio      float64 `json:"perTradeLossRatio"`
	MaxConcurrentPositions int     `json:"maxConcurrentPositions"`
}

// DefaultDailyBudget returns the stock envelope.
func DefaultDailyBudget() DailyBudgetConfig {
	return DailyBudgetConfig{
		DailyBudget:            10_000_000,
		MaxPositionRatio:       0.20,
		MaxDailyLossRatio:      0.03,
		PerTradeLossRatio:      0.015,
		MaxConcurrentPositions: 3,
	}
}

func (c DailyBudgetConfig) MaxPositionSize() float64 {
	return c.DailyBudget * c.MaxPositionRatio
}

func (c DailyBudgetConfig) MaxDailyLoss() float64 {
	return c.DailyBudget * c.MaxDailyLossRatio
}

func (c DailyBudgetConfig) PerTradeLoss() float64 {
	return c.DailyBudget * c.PerTradeLossRatio
}

// Valid reports whether every field is in range.
func (c DailyBudgetConfig) Valid() bool {
	return c.DailyBudget > 0 &&
		c.MaxPositionRatio > 0 && c.MaxPositionRatio <= 1 &&
		c.MaxDailyLossRatio > 0 && c.MaxDailyLossRatio <= 1 &&
		c.PerTradeLossRatio >= 0 && c.PerTradeLossRatio <= 1 &&
		c.MaxConcurrentPositions > 0
}
