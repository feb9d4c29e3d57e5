package indicator

import (
	"sync"

	"autotrader/internal/model"
)

const DefaultStreamingCapacity = 500

// Streaming keeps a bounded rolling window and memoizes EMA and RSI per
// period. Every add invalidates both caches.
type Streaming struct {
	mu       sync.Mutex
	capacity int
	prices   []float64
	volumes  []float64
	candles  []model.Candle
	emaCache map[int]float64
	rsiCache map[int]float64
}

func NewStreaming(capacity int) *Streaming {
	if capacity <= 0 {
		capacity = DefaultStreamingCapacity
	}
	return &Streaming{
		capacity: capacity,
		emaCache: make(map[int]float64),
		rsiCache: make(map[int]float64),
	}
}

func (s *Streaming) AddPrice(price float64, volume int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addPriceLocked(price, volume)
}

func (s *Streaming) AddCandle(c model.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = appendBounded(s.candles, c, s.capacity)
	s.addPriceLocked(c.Close, c.Volume)
}

func (s *Streaming) addPriceLocked(price float64, volume int64) {
	s.prices = appendBounded(s.prices, price, s.capacity)
	if volume > 0 {
		s.volumes = appendBounded(s.volumes, float64(volume), s.capacity)
	}
	clear(s.emaCache)
	clear(s.rsiCache)
}

func appendBounded[T any](buf []T, v T, capacity int) []T {
	buf = append(buf, v)
	if over := len(buf) - capacity; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	return buf
}

// Len returns the number of prices held.
func (s *Streaming) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prices)
}

// SMA returns 0 when fewer than period prices are held.
func (s *Streaming) SMA(period int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := SMA(s.prices, period)
	if err != nil {
		return 0
	}
	return v
}

func (s *Streaming) EMA(period int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.emaCache[period]; ok {
		return v
	}
	v, err := EMA(s.prices, period)
	if err != nil {
		return 0
	}
	s.emaCache[period] = v
	return v
}

// RSI returns the neutral 50 when history is short.
func (s *Streaming) RSI(period int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.rsiCache[period]; ok {
		return v
	}
	v, err := RSI(s.prices, period)
	if err != nil {
		return 50
	}
	s.rsiCache[period] = v
	return v
}

func (s *Streaming) VWAP() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VWAP(s.candles)
}

func (s *Streaming) MACD() MACDResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, _ := DefaultMACD(s.prices)
	return r
}

func (s *Streaming) Bollinger(period int, width float64) BollingerBands {
	s.mu.Lock()
	defer s.mu.Unlock()
	bb, _ := Bollinger(s.prices, period, width)
	return bb
}

func (s *Streaming) ATR(period int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := ATR(s.candles, period)
	return v
}

// Reset drops all history and caches.
func (s *Streaming) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = nil
	s.volumes = nil
	s.candles = nil
	clear(s.emaCache)
	clear(s.rsiCache)
}

// SetCapacity changes the window size. Existing history is trimmed on the next add.
func (s *Streaming) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}
	s.mu.Lock()
	s.capacity = capacity
	s.mu.Unlock()
}
