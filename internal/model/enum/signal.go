package enum

// Signal none, buy, sell, close long, partial close
type Signal uint8

const (
	_signal_beg Signal = iota
	SignalNone
	SignalBuy
	SignalSell
	SignalCloseLong
	SignalPartialClose
	_signal_end
)

func (s Signal) IsAvailable() bool {
	return s > _signal_beg && s < _signal_end
}

// IsActionable reports whether the signal asks for an order.
func (s Signal) IsActionable() bool {
	return s.IsAvailable() && s != SignalNone
}

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "NONE"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalCloseLong:
		return "CLOSE_LONG"
	case SignalPartialClose:
		return "PARTIAL_CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
