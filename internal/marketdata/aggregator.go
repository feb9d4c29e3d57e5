package marketdata

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/broker"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

const (
	DefaultHistoryCapacity = 500
	minutesPerSession      = 390
)

// Config controls cache sizes.
type Config struct {
	HistoryCapacity int `json:"historyCapacity"`
	DailyCapacity   int `json:"dailyCapacity"`
}

type (
	CandleHandler func(symbol string, resolution enum.Resolution, candle model.Candle)
	QuoteHandler  func(symbol string, quote model.Quote)
)

// CandleSource serves historical candles. broker.Port satisfies it.
type CandleSource interface {
	MinuteCandles(ctx context.Context, symbol string, interval int, count int) ([]model.Candle, error)
	DailyCandles(ctx context.Context, symbol string, count int) ([]model.Candle, error)
}

type series struct {
	current model.Candle
	started bool
	history []model.Candle
}

type symbolCache struct {
	quote  model.Quote
	book   model.Orderbook
	series map[enum.Resolution]*series
	daily  []model.Candle
}

func newSymbolCache() *symbolCache {
	c := &symbolCache{series: make(map[enum.Resolution]*series, len(enum.Resolutions))}
	for _, res := range enum.Resolutions {
		c.series[res] = &series{}
	}
	return c
}

type candleEvent struct {
	symbol     string
	resolution enum.Resolution
	candle     model.Candle
}

// Aggregator turns quote ticks into 1- and 5-minute candles per watched
// symbol and serves point-in-time reads.
type Aggregator struct {
	cfg     Config
	session *session.Session

	mu        sync.RWMutex
	symbols   map[string]*symbolCache
	watchlist []string
	onCandle  CandleHandler
	onQuote   QuoteHandler

	port     broker.Port
	realtime atomic.Bool
}

func New(cfg Config, sess *session.Session) *Aggregator {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.DailyCapacity <= 0 {
		cfg.DailyCapacity = DefaultHistoryCapacity
	}
	if sess == nil {
		sess = session.New(session.DefaultConfig(), nil)
	}
	return &Aggregator{
		cfg:     cfg,
		session: sess,
		symbols: make(map[string]*symbolCache),
	}
}

// SetPort attaches the broker used for realtime subscriptions.
func (a *Aggregator) SetPort(port broker.Port) {
	a.mu.Lock()
	a.port = port
	a.mu.Unlock()
}

func (a *Aggregator) SetCandleHandler(h CandleHandler) {
	a.mu.Lock()
	a.onCandle = h
	a.mu.Unlock()
}

func (a *Aggregator) SetQuoteHandler(h QuoteHandler) {
	a.mu.Lock()
	a.onQuote = h
	a.mu.Unlock()
}

// AddWatchlist starts tracking symbol. Adding a tracked symbol is a no-op.
func (a *Aggregator) AddWatchlist(symbol string) {
	if symbol == "" {
		return
	}
	a.mu.Lock()
	if _, ok := a.symbols[symbol]; ok {
		a.mu.Unlock()
		return
	}
	a.symbols[symbol] = newSymbolCache()
	a.watchlist = append(a.watchlist, symbol)
	port := a.port
	a.mu.Unlock()

	if a.realtime.Load() && port != nil {
		subscribe(port, symbol)
	}
}

// RemoveWatchlist stops tracking symbol and drops its history.
func (a *Aggregator) RemoveWatchlist(symbol string) {
	a.mu.Lock()
	if _, ok := a.symbols[symbol]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.symbols, symbol)
	for i, s := range a.watchlist {
		if s == symbol {
			a.watchlist = append(a.watchlist[:i], a.watchlist[i+1:]...)
			break
		}
	}
	port := a.port
	a.mu.Unlock()

	if a.realtime.Load() && port != nil {
		if err := port.UnsubscribeQuote(symbol); err != nil {
			logs.Warnf("unsubscribe quote %s, err: %+v", symbol, err)
		}
	}
}

// Watchlist returns tracked symbols in insertion order.
func (a *Aggregator) Watchlist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.watchlist))
	copy(out, a.watchlist)
	return out
}

func (a *Aggregator) IsWatching(symbol string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.symbols[symbol]
	return ok
}

// OnQuote folds a tick into every resolution. Completed candles are reported
// before the quote itself, and both after the cache lock is released.
func (a *Aggregator) OnQuote(q model.Quote) {
	a.mu.Lock()
	cache, ok := a.symbols[q.Symbol]
	if !ok {
		a.mu.Unlock()
		return
	}
	cache.quote = q

	var completed []candleEvent
	for _, res := range enum.Resolutions {
		s := cache.series[res]
		slot := res.Slot(q.Timestamp)
		if !s.started || s.current.Timestamp != slot {
			if s.started && s.current.Volume > 0 {
				s.history = appendCapped(s.history, s.current, a.cfg.HistoryCapacity)
				completed = append(completed, candleEvent{symbol: q.Symbol, resolution: res, candle: s.current})
			}
			s.current = model.Candle{
				Symbol:    q.Symbol,
				Open:      q.CurrentPrice,
				High:      q.CurrentPrice,
				Low:       q.CurrentPrice,
				Close:     q.CurrentPrice,
				Timestamp: slot,
			}
			s.started = true
			continue
		}
		if q.CurrentPrice > s.current.High {
			s.current.High = q.CurrentPrice
		}
		if q.CurrentPrice < s.current.Low {
			s.current.Low = q.CurrentPrice
		}
		s.current.Close = q.CurrentPrice
		s.current.Volume = q.Volume
	}
	onCandle, onQuote := a.onCandle, a.onQuote
	a.mu.Unlock()

	if onCandle != nil {
		for _, ev := range completed {
			onCandle(ev.symbol, ev.resolution, ev.candle)
		}
	}
	if onQuote != nil {
		onQuote(q.Symbol, q)
	}
}

// OnOrderbook stores the latest book for a tracked symbol.
func (a *Aggregator) OnOrderbook(book model.Orderbook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cache, ok := a.symbols[book.Symbol]; ok {
		cache.book = book
	}
}

func appendCapped(buf []model.Candle, c model.Candle, capacity int) []model.Candle {
	buf = append(buf, c)
	if over := len(buf) - capacity; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	return buf
}

func lastN(buf []model.Candle, n int) []model.Candle {
	if n <= 0 || len(buf) == 0 {
		return nil
	}
	if n > len(buf) {
		n = len(buf)
	}
	out := make([]model.Candle, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// Quote returns the latest quote, zero when unknown.
func (a *Aggregator) Quote(symbol string) model.Quote {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cache, ok := a.symbols[symbol]; ok {
		return cache.quote
	}
	return model.Quote{}
}

// Quotes returns the latest quote of every symbol that has ticked.
func (a *Aggregator) Quotes() map[string]model.Quote {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]model.Quote, len(a.symbols))
	for symbol, cache := range a.symbols {
		if cache.quote.Timestamp != 0 || cache.quote.CurrentPrice != 0 {
			out[symbol] = cache.quote
		}
	}
	return out
}

func (a *Aggregator) Orderbook(symbol string) model.Orderbook {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cache, ok := a.symbols[symbol]; ok {
		return cache.book
	}
	return model.Orderbook{}
}

// MinuteCandles returns up to count finalized candles, oldest first.
func (a *Aggregator) MinuteCandles(symbol string, resolution enum.Resolution, count int) []model.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cache, ok := a.symbols[symbol]
	if !ok {
		return nil
	}
	s, ok := cache.series[resolution]
	if !ok {
		return nil
	}
	return lastN(s.history, count)
}

// IntradayCandles returns the whole finalized history for the resolution.
func (a *Aggregator) IntradayCandles(symbol string, resolution enum.Resolution) []model.Candle {
	return a.MinuteCandles(symbol, resolution, a.cfg.HistoryCapacity)
}

// CurrentCandle returns the in-progress candle, ok=false before the first tick.
func (a *Aggregator) CurrentCandle(symbol string, resolution enum.Resolution) (model.Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cache, ok := a.symbols[symbol]
	if !ok {
		return model.Candle{}, false
	}
	s, ok := cache.series[resolution]
	if !ok || !s.started {
		return model.Candle{}, false
	}
	return s.current, true
}

func (a *Aggregator) DailyCandles(symbol string, count int) []model.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cache, ok := a.symbols[symbol]; ok {
		return lastN(cache.daily, count)
	}
	return nil
}

func (a *Aggregator) IsMarketOpen() bool {
	return a.session.IsMarketOpen()
}

func (a *Aggregator) MinutesSinceOpen() int {
	return a.session.MinutesSinceOpen()
}

// LoadHistoricalData seeds daily and minute history for a tracked symbol.
// The 5-minute history is resampled from the loaded 1-minute candles.
func (a *Aggregator) LoadHistoricalData(ctx context.Context, source CandleSource, symbol string, days int) error {
	if source == nil {
		return exception.ErrNilCandleSource
	}
	if !a.IsWatching(symbol) {
		return errors.Wrapf(exception.ErrUnknownSymbol, "symbol: %s", symbol)
	}
	if days <= 0 {
		days = 1
	}
	daily, err := source.DailyCandles(ctx, symbol, days)
	if err != nil {
		return errors.Wrap(err, "load daily candles")
	}
	count := days * minutesPerSession
	if count > a.cfg.HistoryCapacity {
		count = a.cfg.HistoryCapacity
	}
	minutes, err := source.MinuteCandles(ctx, symbol, int(enum.Resolution1m), count)
	if err != nil {
		return errors.Wrap(err, "load minute candles")
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].Timestamp < minutes[j].Timestamp })
	fives := Resample(minutes, enum.Resolution5m)

	a.mu.Lock()
	defer a.mu.Unlock()
	cache, ok := a.symbols[symbol]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownSymbol, "symbol: %s", symbol)
	}
	cache.daily = lastN(daily, a.cfg.DailyCapacity)
	cache.series[enum.Resolution1m].history = lastN(minutes, a.cfg.HistoryCapacity)
	cache.series[enum.Resolution5m].history = lastN(fives, a.cfg.HistoryCapacity)
	logs.Infof("loaded history, symbol: %s, daily: %d, minute: %d", symbol, len(daily), len(minutes))
	return nil
}

// ClearCache drops history for symbol, or for every symbol when empty.
// Tracking and latest quotes are kept.
func (a *Aggregator) ClearCache(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for s, cache := range a.symbols {
		if symbol != "" && s != symbol {
			continue
		}
		cache.daily = nil
		for _, res := range enum.Resolutions {
			cache.series[res] = &series{}
		}
	}
}

// CacheSize counts cached candles across all symbols and resolutions.
func (a *Aggregator) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := 0
	for _, cache := range a.symbols {
		total += len(cache.daily)
		for _, s := range cache.series {
			total += len(s.history)
		}
	}
	return total
}

// StartRealtime subscribes every watched symbol and routes port callbacks
// into the aggregator. It returns false when no port is attached.
func (a *Aggregator) StartRealtime() bool {
	a.mu.RLock()
	port := a.port
	symbols := make([]string, len(a.watchlist))
	copy(symbols, a.watchlist)
	a.mu.RUnlock()

	if port == nil {
		return false
	}
	if a.realtime.Swap(true) {
		return true
	}
	port.SetQuoteHandler(a.OnQuote)
	port.SetOrderbookHandler(a.OnOrderbook)
	for _, symbol := range symbols {
		subscribe(port, symbol)
	}
	logs.Infof("realtime started, symbols: %d", len(symbols))
	return true
}

func (a *Aggregator) StopRealtime() {
	if !a.realtime.Swap(false) {
		return
	}
	a.mu.RLock()
	port := a.port
	symbols := make([]string, len(a.watchlist))
	copy(symbols, a.watchlist)
	a.mu.RUnlock()
	if port == nil {
		return
	}
	for _, symbol := range symbols {
		if err := port.UnsubscribeQuote(symbol); err != nil {
			logs.Warnf("unsubscribe quote %s, err: %+v", symbol, err)
		}
	}
	port.SetQuoteHandler(nil)
	port.SetOrderbookHandler(nil)
}

func (a *Aggregator) IsRealtimeRunning() bool {
	return a.realtime.Load()
}

func subscribe(port broker.Port, symbol string) {
	if err := port.SubscribeQuote(symbol); err != nil {
		logs.Warnf("subscribe quote %s, err: %+v", symbol, err)
	}
	if err := port.SubscribeOrderbook(symbol); err != nil {
		logs.Warnf("subscribe orderbook %s, err: %+v", symbol, err)
	}
}
