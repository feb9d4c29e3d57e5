package journal

import (
	"time"

	"github.com/yanun0323/decimal"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
)

// OrderModel is one row per order id, overwritten on every status change.
type OrderModel struct {
	ID            uint   `gorm:"primaryKey"`
	OrderID       string `gorm:"size:32;not null;uniqueIndex"`
	BrokerOrderID string `gorm:"size:64;index"`
	Symbol        string `gorm:"size:16;not null;index"`
	Strategy      string `gorm:"size:32"`

	Type     enum.OrderType   `gorm:"not null"`
	Status   enum.OrderStatus `gorm:"not null;index"`
	Priority int              `gorm:"not null;default:0"`
	Quantity int64            `gorm:"not null"`
	Price    decimal.Decimal  `gorm:"type:numeric(20,4);not null"`

	FilledQuantity int64           `gorm:"not null;default:0"`
	FilledPrice    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Commission     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	ErrorMessage   string          `gorm:"size:255"`

	SubmitTime int64 `gorm:"not null;index"`
	FillTime   int64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// TradeModel is an append-only ledger trade.
type TradeModel struct {
	ID        uint            `gorm:"primaryKey"`
	Symbol    string          `gorm:"size:16;not null;index"`
	IsBuy     bool            `gorm:"not null"`
	Quantity  int64           `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	PnL       decimal.Decimal `gorm:"column:pnl;type:numeric(20,4);not null"`
	Strategy  string          `gorm:"size:32"`
	Timestamp int64           `gorm:"column:traded_at;not null;index"`
	CreatedAt time.Time
}

func (TradeModel) TableName() string {
	return "trades"
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

func float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toOrderModel(d model.OrderDetail) OrderModel {
	return OrderModel{
		OrderID:        d.OrderID,
		BrokerOrderID:  d.BrokerOrderID,
		Symbol:         d.Request.Symbol,
		Strategy:       d.Request.StrategyName,
		Type:           d.Request.Type,
		Status:         d.Status,
		Priority:       d.Request.Priority,
		Quantity:       d.Request.Quantity,
		Price:          money(d.Request.Price),
		FilledQuantity: d.FilledQuantity,
		FilledPrice:    money(d.FilledPrice),
		Commission:     money(d.Commission),
		ErrorMessage:   d.ErrorMessage,
		SubmitTime:     d.SubmitTime,
		FillTime:       d.FillTime,
	}
}

func (m OrderModel) detail() model.OrderDetail {
	return model.OrderDetail{
		OrderID:       m.OrderID,
		BrokerOrderID: m.BrokerOrderID,
		Request: model.OrderRequest{
			Type:         m.Type,
			Symbol:       m.Symbol,
			Quantity:     m.Quantity,
			Price:        float(m.Price),
			Priority:     m.Priority,
			Timestamp:    m.SubmitTime,
			StrategyName: m.Strategy,
		},
		Status:         m.Status,
		FilledQuantity: m.FilledQuantity,
		FilledPrice:    float(m.FilledPrice),
		Commission:     float(m.Commission),
		ErrorMessage:   m.ErrorMessage,
		SubmitTime:     m.SubmitTime,
		FillTime:       m.FillTime,
	}
}

func toTradeModel(t model.TradeRecord) TradeModel {
	return TradeModel{
		Symbol:    t.Symbol,
		IsBuy:     t.IsBuy,
		Quantity:  t.Quantity,
		Price:     money(t.Price),
		PnL:       money(t.PnL),
		Strategy:  t.Strategy,
		Timestamp: t.Timestamp,
	}
}

func (m TradeModel) record() model.TradeRecord {
	return model.TradeRecord{
		Symbol:    m.Symbol,
		IsBuy:     m.IsBuy,
		Quantity:  m.Quantity,
		Price:     float(m.Price),
		PnL:       float(m.PnL),
		Timestamp: m.Timestamp,
		Strategy:  m.Strategy,
	}
}
