package model

import "autotrader/internal/model/enum"

// SignalInfo is a strategy's trading recommendation.
type SignalInfo struct {
	Signal      enum.Signal `json:"signal"`
	Symbol      string      `json:"symbol"`
	Price       float64     `json:"price"`
	Quantity    int64       `json:"quantity"`
	StopLoss    float64     `json:"stopLoss"`
	TakeProfit1 float64     `json:"takeProfit1"`
	TakeProfit2 float64     `json:"takeProfit2"`
	Confidence  float64     `json:"confidence"`
	Reason      string      `json:"reason"`
	Strategy    string      `json:"strategy"`
}

// NoSignal returns a None signal for the symbol.
func NoSignal(symbol string) SignalInfo {
	return SignalInfo{Signal: enum.SignalNone, Symbol: symbol}
}
