package model

// Quote is a point-in-time market snapshot for one symbol.
// Volume is the session-cumulative traded volume reported by the feed.
type Quote struct {
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"currentPrice"`
	OpenPrice    float64 `json:"openPrice"`
	HighPrice    float64 `json:"highPrice"`
	LowPrice     float64 `json:"lowPrice"`
	PrevClose    float64 `json:"prevClose"`
	Volume       int64   `json:"volume"`
	PrevVolume   int64   `json:"prevVolume"`
	ChangeRate   float64 `json:"changeRate"`
	Timestamp    int64   `json:"timestamp"`
}

// GapPercent returns the open gap versus the previous close in percent.
func (q Quote) GapPercent() float64 {
	if q.PrevClose <= 0 {
		return 0
	}
	return (q.OpenPrice - q.PrevClose) / q.PrevClose * 100
}

const OrderbookDepth = 10

type OrderbookLevel struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Orderbook holds the top levels of the book. Asks ascend, bids descend.
type Orderbook struct {
	Symbol    string                         `json:"symbol"`
	Asks      [OrderbookDepth]OrderbookLevel `json:"asks"`
	Bids      [OrderbookDepth]OrderbookLevel `json:"bids"`
	Timestamp int64                          `json:"timestamp"`
}

// Spread returns best ask minus best bid, or 0 when either side is empty.
func (b Orderbook) Spread() float64 {
	if b.Asks[0].Price <= 0 || b.Bids[0].Price <= 0 {
		return 0
	}
	return b.Asks[0].Price - b.Bids[0].Price
}

// Candle is an OHLCV bar. Timestamp is the bucket start in milliseconds.
type Candle struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// TypicalPrice is (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Trade is a single execution print from the feed.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	IsBuy     bool    `json:"isBuy"`
	Timestamp int64   `json:"timestamp"`
}
