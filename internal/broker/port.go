package broker

import (
	"context"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
)

// OrderResult is the broker's synchronous answer to an order call.
// Filled is set when the broker executed the order immediately.
type OrderResult struct {
	OrderID        string
	Filled         bool
	FilledQuantity int64
	FilledPrice    float64
}

// OrderEvent is an asynchronous order status notice from the broker.
type OrderEvent struct {
	OrderID        string
	Symbol         string
	Status         enum.OrderStatus
	FilledQuantity int64
	FilledPrice    float64
	Message        string
}

type (
	QuoteHandler     func(model.Quote)
	OrderbookHandler func(model.Orderbook)
	TradeHandler     func(model.Trade)
	OrderHandler     func(OrderEvent)
	LoginHandler     func(ok bool, message string)
)

// Credentials for the brokerage session.
type Credentials struct {
	UserID       string `json:"userId"`
	Password     string `json:"-"`
	CertPassword string `json:"-"`
}

// Port is the brokerage surface the engine consumes.
type Port interface {
	Connect(ctx context.Context, server string, port int) error
	Login(ctx context.Context, cred Credentials) error
	Disconnect()
	IsConnected() bool

	SubscribeQuote(symbol string) error
	UnsubscribeQuote(symbol string) error
	SubscribeOrderbook(symbol string) error
	SubscribeTrade(symbol string) error

	MinuteCandles(ctx context.Context, symbol string, interval int, count int) ([]model.Candle, error)
	DailyCandles(ctx context.Context, symbol string, count int) ([]model.Candle, error)
	CurrentQuote(ctx context.Context, symbol string) (model.Quote, error)

	BuyMarket(ctx context.Context, symbol string, qty int64) (OrderResult, error)
	BuyLimit(ctx context.Context, symbol string, qty int64, price float64) (OrderResult, error)
	SellMarket(ctx context.Context, symbol string, qty int64) (OrderResult, error)
	SellLimit(ctx context.Context, symbol string, qty int64, price float64) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	ModifyOrder(ctx context.Context, orderID string, price float64, qty int64) error

	Balance(ctx context.Context) (float64, error)
	BuyingPower(ctx context.Context) (float64, error)
	Positions(ctx context.Context) (map[string]int64, error)

	SetQuoteHandler(QuoteHandler)
	SetOrderbookHandler(OrderbookHandler)
	SetTradeHandler(TradeHandler)
	SetOrderHandler(OrderHandler)
	SetLoginHandler(LoginHandler)
}
