package broker

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/pkg/exception"
)

// SimulatorConfig controls the in-process broker.
type SimulatorConfig struct {
	Seed        int64              `json:"seed"`
	InitialCash float64            `json:"initialCash"`
	BasePrices  map[string]float64 `json:"basePrices"`
	// Volatility is the per-tick standard deviation as a fraction of price.
	Volatility float64 `json:"volatility"`
	// AutoLogin skips the credential step, for tests and paper runs.
	AutoLogin bool `json:"autoLogin"`
}

const defaultBasePrice = 10_000

// Call records one order-side invocation for inspection.
type Call struct {
	Method   string
	Symbol   string
	OrderID  string
	Quantity int64
	Price    float64
}

type simSymbol struct {
	quote     model.Quote
	subscribe bool
	book      bool
	trade     bool
}

type simOrder struct {
	id     string
	symbol string
	buy    bool
	qty    int64
	price  float64
	status enum.OrderStatus
}

// Simulator is a deterministic in-process Port. Market orders fill at the
// last price; limit orders fill at their limit price.
type Simulator struct {
	cfg SimulatorConfig

	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	loggedIn  bool
	cash      float64
	holdings  map[string]int64
	symbols   map[string]*simSymbol
	orders    map[string]*simOrder
	calls     []Call
	nextID    uint64
	failErr   error
	noFill    bool

	onQuote     QuoteHandler
	onOrderbook OrderbookHandler
	onTrade     TradeHandler
	onOrder     OrderHandler
	onLogin     LoginHandler
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 10_000_000
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.001
	}
	return &Simulator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		cash:     cfg.InitialCash,
		holdings: make(map[string]int64),
		symbols:  make(map[string]*simSymbol),
		orders:   make(map[string]*simOrder),
	}
}

var _ Port = (*Simulator)(nil)

func (s *Simulator) Connect(_ context.Context, server string, port int) error {
	s.mu.Lock()
	s.connected = true
	if s.cfg.AutoLogin {
		s.loggedIn = true
	}
	s.mu.Unlock()
	logs.Infof("simulator connected, server: %s:%d", server, port)
	return nil
}

func (s *Simulator) Login(_ context.Context, cred Credentials) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return exception.ErrBrokerNotConnected
	}
	s.loggedIn = true
	handler := s.onLogin
	s.mu.Unlock()

	logs.Infof("simulator login, user: %s", cred.UserID)
	if handler != nil {
		handler(true, "simulated login")
	}
	return nil
}

func (s *Simulator) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.loggedIn = false
	s.mu.Unlock()
}

func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) symbolLocked(symbol string) *simSymbol {
	sym, ok := s.symbols[symbol]
	if ok {
		return sym
	}
	base := s.cfg.BasePrices[symbol]
	if base <= 0 {
		base = defaultBasePrice
	}
	sym = &simSymbol{quote: model.Quote{
		Symbol:       symbol,
		CurrentPrice: base,
		OpenPrice:    base,
		HighPrice:    base,
		LowPrice:     base,
		PrevClose:    base,
	}}
	s.symbols[symbol] = sym
	return sym
}

func (s *Simulator) SubscribeQuote(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return exception.ErrBrokerNotConnected
	}
	s.symbolLocked(symbol).subscribe = true
	return nil
}

func (s *Simulator) UnsubscribeQuote(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sym, ok := s.symbols[symbol]; ok {
		sym.subscribe = false
		sym.book = false
		sym.trade = false
	}
	return nil
}

func (s *Simulator) SubscribeOrderbook(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return exception.ErrBrokerNotConnected
	}
	s.symbolLocked(symbol).book = true
	return nil
}

func (s *Simulator) SubscribeTrade(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return exception.ErrBrokerNotConnected
	}
	s.symbolLocked(symbol).trade = true
	return nil
}

// Subscribed returns the symbols with an active quote subscription.
func (s *Simulator) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for symbol, sym := range s.symbols {
		if sym.subscribe {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// MinuteCandles synthesizes count candles ending at the current minute.
func (s *Simulator) MinuteCandles(_ context.Context, symbol string, interval int, count int) ([]model.Candle, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(exception.ErrUnsupportedInterval, "interval: %d", interval)
	}
	width := int64(interval) * 60_000
	end := time.Now().UnixMilli() / width * width
	return s.synthCandles(symbol, count, end, width), nil
}

func (s *Simulator) DailyCandles(_ context.Context, symbol string, count int) ([]model.Candle, error) {
	width := int64(24 * 60 * 60_000)
	end := time.Now().UnixMilli() / width * width
	return s.synthCandles(symbol, count, end, width), nil
}

func (s *Simulator) synthCandles(symbol string, count int, end, width int64) []model.Candle {
	if count <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Walk backwards from the live price so the newest candle closes at it.
	closePrice := s.symbolLocked(symbol).quote.CurrentPrice
	out := make([]model.Candle, count)
	for i := count - 1; i >= 0; i-- {
		openPrice := s.stepLocked(closePrice)
		hi := math.Max(openPrice, closePrice) * (1 + s.rng.Float64()*s.cfg.Volatility)
		lo := math.Min(openPrice, closePrice) * (1 - s.rng.Float64()*s.cfg.Volatility)
		out[i] = model.Candle{
			Symbol:    symbol,
			Open:      roundTick(openPrice),
			High:      math.Ceil(hi),
			Low:       math.Floor(lo),
			Close:     roundTick(closePrice),
			Volume:    1_000 + s.rng.Int63n(9_000),
			Timestamp: end - int64(count-1-i)*width,
		}
		closePrice = openPrice
	}
	return out
}

func (s *Simulator) stepLocked(price float64) float64 {
	next := price * (1 + s.rng.NormFloat64()*s.cfg.Volatility)
	if next < 1 {
		next = 1
	}
	return next
}

func roundTick(p float64) float64 {
	return math.Round(p)
}

func (s *Simulator) CurrentQuote(_ context.Context, symbol string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbolLocked(symbol).quote, nil
}

func (s *Simulator) BuyMarket(ctx context.Context, symbol string, qty int64) (OrderResult, error) {
	return s.place(ctx, "BuyMarket", symbol, qty, 0, true)
}

func (s *Simulator) BuyLimit(ctx context.Context, symbol string, qty int64, price float64) (OrderResult, error) {
	return s.place(ctx, "BuyLimit", symbol, qty, price, true)
}

func (s *Simulator) SellMarket(ctx context.Context, symbol string, qty int64) (OrderResult, error) {
	return s.place(ctx, "SellMarket", symbol, qty, 0, false)
}

func (s *Simulator) SellLimit(ctx context.Context, symbol string, qty int64, price float64) (OrderResult, error) {
	return s.place(ctx, "SellLimit", symbol, qty, price, false)
}

func (s *Simulator) place(ctx context.Context, method, symbol string, qty int64, limit float64, buy bool) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: method, Symbol: symbol, Quantity: qty, Price: limit})
	if !s.connected {
		return OrderResult{}, exception.ErrBrokerNotConnected
	}
	if !s.loggedIn {
		return OrderResult{}, exception.ErrBrokerNotLoggedIn
	}
	if s.failErr != nil {
		return OrderResult{}, s.failErr
	}
	if qty <= 0 {
		return OrderResult{}, errors.Wrapf(exception.ErrBrokerRejected, "quantity: %d", qty)
	}

	s.nextID++
	id := "SIM" + strconv.FormatUint(s.nextID, 10)
	s.calls[len(s.calls)-1].OrderID = id
	price := limit
	if price <= 0 {
		price = s.symbolLocked(symbol).quote.CurrentPrice
	}
	order := &simOrder{id: id, symbol: symbol, buy: buy, qty: qty, price: price, status: enum.OrderStatusSubmitted}
	s.orders[id] = order

	if s.noFill {
		return OrderResult{OrderID: id}, nil
	}
	s.fillLocked(order)
	return OrderResult{OrderID: id, Filled: true, FilledQuantity: qty, FilledPrice: price}, nil
}

func (s *Simulator) fillLocked(o *simOrder) {
	notional := o.price * float64(o.qty)
	if o.buy {
		s.cash -= notional
		s.holdings[o.symbol] += o.qty
	} else {
		s.cash += notional
		s.holdings[o.symbol] -= o.qty
		if s.holdings[o.symbol] <= 0 {
			delete(s.holdings, o.symbol)
		}
	}
	o.status = enum.OrderStatusFilled
}

// FillPending fills an order accepted while fills were held and reports it
// through the order handler.
func (s *Simulator) FillPending(orderID string) error {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return exception.ErrBrokerUnknownOrder
	}
	if o.status != enum.OrderStatusSubmitted {
		s.mu.Unlock()
		return nil
	}
	s.fillLocked(o)
	ev := OrderEvent{OrderID: o.id, Symbol: o.symbol, Status: enum.OrderStatusFilled, FilledQuantity: o.qty, FilledPrice: o.price}
	handler := s.onOrder
	s.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
	return nil
}

func (s *Simulator) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: "CancelOrder", OrderID: orderID})
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return exception.ErrBrokerUnknownOrder
	}
	if o.status != enum.OrderStatusSubmitted {
		s.mu.Unlock()
		return errors.Wrapf(exception.ErrBrokerRejected, "cancel order %s in status %s", orderID, o.status)
	}
	o.status = enum.OrderStatusCancelled
	ev := OrderEvent{OrderID: o.id, Symbol: o.symbol, Status: enum.OrderStatusCancelled}
	handler := s.onOrder
	s.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
	return nil
}

func (s *Simulator) ModifyOrder(_ context.Context, orderID string, price float64, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "ModifyOrder", OrderID: orderID, Quantity: qty, Price: price})
	o, ok := s.orders[orderID]
	if !ok {
		return exception.ErrBrokerUnknownOrder
	}
	if o.status != enum.OrderStatusSubmitted {
		return errors.Wrapf(exception.ErrBrokerRejected, "modify order %s in status %s", orderID, o.status)
	}
	if price > 0 {
		o.price = price
	}
	if qty > 0 {
		o.qty = qty
	}
	return nil
}

func (s *Simulator) Balance(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.cash
	for symbol, qty := range s.holdings {
		total += s.symbolLocked(symbol).quote.CurrentPrice * float64(qty)
	}
	return total, nil
}

func (s *Simulator) BuyingPower(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash, nil
}

func (s *Simulator) Positions(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.holdings))
	for k, v := range s.holdings {
		out[k] = v
	}
	return out, nil
}

func (s *Simulator) SetQuoteHandler(h QuoteHandler) {
	s.mu.Lock()
	s.onQuote = h
	s.mu.Unlock()
}

func (s *Simulator) SetOrderbookHandler(h OrderbookHandler) {
	s.mu.Lock()
	s.onOrderbook = h
	s.mu.Unlock()
}

func (s *Simulator) SetTradeHandler(h TradeHandler) {
	s.mu.Lock()
	s.onTrade = h
	s.mu.Unlock()
}

func (s *Simulator) SetOrderHandler(h OrderHandler) {
	s.mu.Lock()
	s.onOrder = h
	s.mu.Unlock()
}

func (s *Simulator) SetLoginHandler(h LoginHandler) {
	s.mu.Lock()
	s.onLogin = h
	s.mu.Unlock()
}

// FailOrders makes every following order call return err. Nil restores normal fills.
func (s *Simulator) FailOrders(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// HoldFills accepts orders without filling them until FillPending is called.
func (s *Simulator) HoldFills(hold bool) {
	s.mu.Lock()
	s.noFill = hold
	s.mu.Unlock()
}

// Calls returns a copy of the recorded order-side calls.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Emit publishes a quote as if it arrived from the feed. The quote handler
// runs on the caller's goroutine regardless of subscription.
func (s *Simulator) Emit(q model.Quote) {
	s.mu.Lock()
	sym := s.symbolLocked(q.Symbol)
	sym.quote = q
	handler := s.onQuote
	s.mu.Unlock()

	if handler != nil {
		handler(q)
	}
}

// Tick advances every subscribed symbol one random-walk step and publishes
// quotes and books.
func (s *Simulator) Tick(now time.Time) {
	s.mu.Lock()
	quotes := make([]model.Quote, 0, len(s.symbols))
	books := make([]model.Orderbook, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if !sym.subscribe {
			continue
		}
		q := &sym.quote
		q.CurrentPrice = roundTick(s.stepLocked(q.CurrentPrice))
		q.HighPrice = math.Max(q.HighPrice, q.CurrentPrice)
		q.LowPrice = math.Min(q.LowPrice, q.CurrentPrice)
		q.PrevVolume = q.Volume
		q.Volume += 1 + s.rng.Int63n(500)
		if q.PrevClose > 0 {
			q.ChangeRate = (q.CurrentPrice - q.PrevClose) / q.PrevClose * 100
		}
		q.Timestamp = now.UnixMilli()
		quotes = append(quotes, *q)
		if sym.book {
			books = append(books, s.bookLocked(*q))
		}
	}
	onQuote, onBook := s.onQuote, s.onOrderbook
	s.mu.Unlock()

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	if onQuote != nil {
		for _, q := range quotes {
			onQuote(q)
		}
	}
	if onBook != nil {
		for _, b := range books {
			onBook(b)
		}
	}
}

func (s *Simulator) bookLocked(q model.Quote) model.Orderbook {
	book := model.Orderbook{Symbol: q.Symbol, Timestamp: q.Timestamp}
	tick := math.Max(1, roundTick(q.CurrentPrice*0.0005))
	for i := 0; i < model.OrderbookDepth; i++ {
		step := float64(i+1) * tick
		book.Asks[i] = model.OrderbookLevel{Price: q.CurrentPrice + step, Volume: 100 + s.rng.Int63n(1_000)}
		book.Bids[i] = model.OrderbookLevel{Price: q.CurrentPrice - step, Volume: 100 + s.rng.Int63n(1_000)}
	}
	return book
}

// Run ticks at interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.IsConnected() {
				s.Tick(now)
			}
		}
	}
}
