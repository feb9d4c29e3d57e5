package model

import "autotrader/internal/model/enum"

// OrderRequest is an order instruction. It is immutable once queued.
type OrderRequest struct {
	Type            enum.OrderType `json:"type"`
	Symbol          string         `json:"symbol"`
	Quantity        int64          `json:"quantity"`
	Price           float64        `json:"price"`
	StopLoss        float64        `json:"stopLoss"`
	TakeProfit1     float64        `json:"takeProfit1"`
	TakeProfit2     float64        `json:"takeProfit2"`
	OriginalOrderID string         `json:"originalOrderId,omitempty"`
	Priority        int            `json:"priority"`
	Timestamp       int64          `json:"timestamp"`
	StrategyName    string         `json:"strategyName"`
}

// OrderDetail is the pipeline's record of one order.
type OrderDetail struct {
	OrderID        string           `json:"orderId"`
	BrokerOrderID  string           `json:"brokerOrderId,omitempty"`
	Request        OrderRequest     `json:"request"`
	Status         enum.OrderStatus `json:"status"`
	FilledQuantity int64            `json:"filledQuantity"`
	FilledPrice    float64          `json:"filledPrice"`
	Commission     float64          `json:"commission"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`
	SubmitTime     int64            `json:"submitTime"`
	FillTime       int64            `json:"fillTime"`
}
