package enum

// OrderType market buy, market sell, limit buy, limit sell, cancel, modify
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeMarketBuy
	OrderTypeMarketSell
	OrderTypeLimitBuy
	OrderTypeLimitSell
	OrderTypeCancel
	OrderTypeModify
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

// IsBuy reports whether the order opens or adds to a long position.
func (t OrderType) IsBuy() bool {
	return t == OrderTypeMarketBuy || t == OrderTypeLimitBuy
}

// IsSell reports whether the order reduces a long position.
func (t OrderType) IsSell() bool {
	return t == OrderTypeMarketSell || t == OrderTypeLimitSell
}

// IsLimit reports whether the order carries a limit price.
func (t OrderType) IsLimit() bool {
	return t == OrderTypeLimitBuy || t == OrderTypeLimitSell
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarketBuy:
		return "MARKET_BUY"
	case OrderTypeMarketSell:
		return "MARKET_SELL"
	case OrderTypeLimitBuy:
		return "LIMIT_BUY"
	case OrderTypeLimitSell:
		return "LIMIT_SELL"
	case OrderTypeCancel:
		return "CANCEL"
	case OrderTypeModify:
		return "MODIFY"
	default:
		return "UNKNOWN"
	}
}

func (t OrderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// OrderStatus pending, submitted, filled, partial, cancelled, rejected, failed
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusSubmitted
	OrderStatusFilled
	OrderStatusPartial
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusFailed
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusSubmitted:
		return "SUBMITTED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusPartial:
		return "PARTIAL"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
