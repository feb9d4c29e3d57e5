package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/indicator"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/session"
	"autotrader/pkg/exception"
)

var kst = time.FixedZone("KST", 9*60*60)

// 2026-10-14 is a Wednesday.
func sessionAt(hour, minute int) *session.Session {
	at := time.Date(2026, 10, 14, hour, minute, 0, 0, kst)
	return session.New(session.DefaultConfig(), func() time.Time { return at })
}

type fakeStrategy struct {
	base
	conf    float64
	signal  enum.Signal
	panics  bool
	closeIt bool
}

func newFake(name string, conf float64) *fakeStrategy {
	f := &fakeStrategy{conf: conf, signal: enum.SignalBuy}
	f.init(name, sessionAt(10, 0), map[string]float64{"x": 1})
	return f
}

func (f *fakeStrategy) Analyze(symbol string, _ []model.Candle, _ model.Quote) model.SignalInfo {
	if f.panics {
		panic("boom")
	}
	return model.SignalInfo{Signal: f.signal, Symbol: symbol, Confidence: f.conf}
}

func (f *fakeStrategy) ShouldClose(model.Position, model.Quote) bool {
	if f.panics {
		panic("boom")
	}
	return f.closeIt
}

func flatCandles(n int, price float64, volume int64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Symbol: "005930", Open: price, High: price, Low: price, Close: price, Volume: volume, Timestamp: int64(i) * 60_000}
	}
	return out
}

func candlesFromCloses(closes []float64, volume int64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Symbol: "005930", Open: c, High: c + 1, Low: c - 1, Close: c, Volume: volume, Timestamp: int64(i) * 60_000}
	}
	return out
}

func TestPipelineRegistry(t *testing.T) {
	p := NewPipeline()
	require.NoError(t, p.Register(newFake("a", 0.5)))
	require.ErrorIs(t, p.Register(newFake("a", 0.9)), exception.ErrStrategyDuplicate)
	require.NoError(t, p.Register(newFake("b", 0.5)))

	s, ok := p.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.Name())

	assert.True(t, p.Remove("a"))
	assert.False(t, p.Remove("a"))
	assert.Len(t, p.Strategies(), 1)

	require.ErrorIs(t, p.SetEnabled("missing", false), exception.ErrStrategyUnknown)
	require.NoError(t, p.SetEnabled("b", false))
	assert.False(t, p.Status()[0].Enabled)
}

func TestPipelineAnalyzeAllRanksAndIsolates(t *testing.T) {
	p := NewPipeline()
	a := newFake("a", 0.5)
	b := newFake("b", 0.9)
	c := newFake("c", 0.5)
	broken := newFake("broken", 1)
	broken.panics = true
	quiet := newFake("quiet", 1)
	quiet.signal = enum.SignalNone
	off := newFake("off", 1)
	off.SetEnabled(false)
	for _, s := range []Strategy{a, broken, b, quiet, c, off} {
		require.NoError(t, p.Register(s))
	}

	got := p.AnalyzeAll("005930", nil, model.Quote{})
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Strategy)
	assert.Equal(t, "a", got[1].Strategy)
	assert.Equal(t, "c", got[2].Strategy)
	for _, sig := range got {
		assert.Equal(t, "005930", sig.Symbol)
	}
}

func TestPipelineCheckCloseConditionsFirstMatchWins(t *testing.T) {
	p := NewPipeline()
	broken := newFake("broken", 0)
	broken.panics = true
	first := newFake("first", 0)
	first.closeIt = true
	second := newFake("second", 0)
	second.closeIt = true
	for _, s := range []Strategy{broken, first, second} {
		require.NoError(t, p.Register(s))
	}

	positions := []model.Position{
		{Symbol: "005930", Quantity: 40},
		{Symbol: "000660", Quantity: 10},
	}
	quotes := map[string]model.Quote{"005930": {Symbol: "005930", CurrentPrice: 10_100}}

	got := p.CheckCloseConditions(positions, quotes)
	require.Len(t, got, 1)
	assert.Equal(t, enum.SignalCloseLong, got[0].Signal)
	assert.Equal(t, "first", got[0].Strategy)
	assert.Equal(t, int64(40), got[0].Quantity)
	assert.Equal(t, 10_100.0, got[0].Price)
}

func TestPipelineApply(t *testing.T) {
	p := NewDefaultPipeline(sessionAt(10, 0))
	off := false
	require.NoError(t, p.Apply(map[string]Config{
		MABreakoutName: {Enabled: &off, Params: map[string]float64{"volumeMultiple": 2}},
	}))
	s, _ := p.Get(MABreakoutName)
	assert.False(t, s.Enabled())
	v, ok := s.Parameter("volumeMultiple")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	err := p.Apply(map[string]Config{BBSqueezeName: {Params: map[string]float64{"nope": 1}}})
	require.ErrorIs(t, err, exception.ErrStrategyUnknownParameter)
	require.ErrorIs(t, p.Apply(map[string]Config{"Ghost": {}}), exception.ErrStrategyUnknown)
}

func gapSetup() ([]model.Candle, model.Quote) {
	candles := flatCandles(20, 10_000, 100)
	for i := 15; i < 20; i++ {
		candles[i].Volume = 300
	}
	return candles, model.Quote{Symbol: "005930", PrevClose: 10_000, OpenPrice: 10_300}
}

func TestGapPullbackBuysFirstPullbackOnly(t *testing.T) {
	s := NewGapPullback(sessionAt(9, 5))
	candles, q := gapSetup()

	q.CurrentPrice = 10_400
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, q).Signal)
	high, ok := s.MorningHigh("005930")
	require.True(t, ok)
	assert.Equal(t, 10_400.0, high)

	q.CurrentPrice = 10_300
	sig := s.Analyze("005930", candles, q)
	require.Equal(t, enum.SignalBuy, sig.Signal)
	assert.InDelta(t, 10_197, sig.StopLoss, 1e-6)
	assert.InDelta(t, 10_506, sig.TakeProfit1, 1e-6)
	assert.Equal(t, 0.7, sig.Confidence)

	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, q).Signal)

	// A new high re-arms the symbol.
	q.CurrentPrice = 10_500
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, q).Signal)
	q.CurrentPrice = 10_400
	assert.Equal(t, enum.SignalBuy, s.Analyze("005930", candles, q).Signal)

	s.Reset()
	_, ok = s.MorningHigh("005930")
	assert.False(t, ok)
}

func TestGapPullbackRejects(t *testing.T) {
	candles, q := gapSetup()

	late := NewGapPullback(sessionAt(9, 30))
	q.CurrentPrice = 10_400
	late.Analyze("005930", candles, q)
	q.CurrentPrice = 10_300
	assert.Equal(t, enum.SignalNone, late.Analyze("005930", candles, q).Signal)

	big := NewGapPullback(sessionAt(9, 5))
	wide := q
	wide.OpenPrice = 10_600
	wide.CurrentPrice = 10_700
	big.Analyze("005930", candles, wide)
	wide.CurrentPrice = 10_600
	assert.Equal(t, enum.SignalNone, big.Analyze("005930", candles, wide).Signal)

	flat := NewGapPullback(sessionAt(9, 5))
	quiet := flatCandles(20, 10_000, 100)
	q.CurrentPrice = 10_400
	flat.Analyze("005930", quiet, q)
	q.CurrentPrice = 10_300
	assert.Equal(t, enum.SignalNone, flat.Analyze("005930", quiet, q).Signal)
}

func TestGapVolumeSurge(t *testing.T) {
	assert.False(t, gapVolumeSurge(flatCandles(19, 1, 100), 2))
	assert.True(t, gapVolumeSurge(flatCandles(20, 1, 0), 2))
	assert.False(t, gapVolumeSurge(flatCandles(20, 1, 100), 2))
}

func acceleratingCandles(n int, lastVolume int64) []model.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 10_000 + float64(i*i)
	}
	candles := candlesFromCloses(closes, 100)
	candles[n-1].Volume = lastVolume
	return candles
}

func TestMABreakoutSignals(t *testing.T) {
	s := NewMABreakout(sessionAt(10, 0))
	require.NoError(t, s.SetParameter("rsiMax", 100))

	candles := acceleratingCandles(40, 400)
	price := candles[len(candles)-1].Close
	sig := s.Analyze("005930", candles, model.Quote{Symbol: "005930", CurrentPrice: price})
	require.Equal(t, enum.SignalBuy, sig.Signal)
	assert.InDelta(t, price*0.988, sig.StopLoss, 1e-6)
	assert.InDelta(t, price*1.015, sig.TakeProfit1, 1e-6)
	assert.InDelta(t, price*1.03, sig.TakeProfit2, 1e-6)
	assert.Equal(t, 0.58, sig.Confidence)
}

func TestMABreakoutGates(t *testing.T) {
	s := NewMABreakout(sessionAt(10, 0))
	candles := acceleratingCandles(40, 400)
	price := candles[len(candles)-1].Close
	q := model.Quote{Symbol: "005930", CurrentPrice: price}

	// A straight run-up is overbought for the default band.
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, q).Signal)

	require.NoError(t, s.SetParameter("rsiMax", 100))
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", acceleratingCandles(40, 100), q).Signal)
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", acceleratingCandles(24, 400), q).Signal)

	s.SetEnabled(false)
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, q).Signal)
}

func squeezeCloses() []float64 {
	closes := make([]float64, 0, 80)
	for i := 0; i < 40; i++ {
		closes = append(closes, 10_000+500*float64(i%2))
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, 10_000+float64(i))
	}
	return closes
}

func TestBBSqueezeBreakout(t *testing.T) {
	s := NewBBSqueeze(sessionAt(10, 0))
	require.NoError(t, s.SetParameter("rsiMin", 0))
	require.NoError(t, s.SetParameter("rsiMax", 100))

	closes := squeezeCloses()
	candles := candlesFromCloses(closes, 100)
	candles[len(candles)-1].Volume = 200
	bands := indicator.BollingerSeries(closes, 20, 2)
	last := bands[len(bands)-1]

	sig := s.Analyze("005930", candles, model.Quote{Symbol: "005930", CurrentPrice: last.Upper + 20})
	require.Equal(t, enum.SignalBuy, sig.Signal)
	assert.InDelta(t, last.Middle, sig.StopLoss, 1e-6)
	assert.Greater(t, sig.TakeProfit1, last.Upper)

	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, model.Quote{CurrentPrice: last.Upper - 1}).Signal)
}

func TestBBSqueezeNeedsCompression(t *testing.T) {
	s := NewBBSqueeze(sessionAt(10, 0))
	require.NoError(t, s.SetParameter("rsiMin", 0))
	require.NoError(t, s.SetParameter("rsiMax", 100))

	closes := squeezeCloses()
	reversed := append(append([]float64{}, closes[40:]...), closes[:40]...)
	candles := candlesFromCloses(reversed, 100)
	candles[len(candles)-1].Volume = 200
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles, model.Quote{CurrentPrice: 20_000}).Signal)
	assert.Equal(t, enum.SignalNone, s.Analyze("005930", candles[:49], model.Quote{CurrentPrice: 20_000}).Signal)
}

func TestShouldCloseTiers(t *testing.T) {
	s := NewMABreakout(sessionAt(10, 0))
	pos := model.Position{
		Symbol: "005930", Quantity: 100, AvgPrice: 10_000,
		StopLossPrice: 9_900, TakeProfitPrice1: 10_150, TakeProfitPrice2: 10_300,
		EntryQty: 100, RemainingQty: 100,
	}
	assert.True(t, s.ShouldClose(pos, model.Quote{CurrentPrice: 9_850}))
	assert.False(t, s.ShouldClose(pos, model.Quote{CurrentPrice: 10_000}))
	assert.True(t, s.ShouldClose(pos, model.Quote{CurrentPrice: 10_150}))

	pos.Quantity, pos.RemainingQty = 50, 50
	assert.False(t, s.ShouldClose(pos, model.Quote{CurrentPrice: 10_200}))
	assert.True(t, s.ShouldClose(pos, model.Quote{CurrentPrice: 10_300}))

	late := NewGapPullback(sessionAt(14, 31))
	assert.True(t, late.ShouldClose(model.Position{Symbol: "005930"}, model.Quote{CurrentPrice: 10_000}))
}

func TestParameters(t *testing.T) {
	s := NewBBSqueeze(nil)
	v, ok := s.Parameter("bbPeriod")
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
	_, ok = s.Parameter("missing")
	assert.False(t, ok)
	require.ErrorIs(t, s.SetParameter("missing", 1), exception.ErrStrategyUnknownParameter)

	params := s.Parameters()
	params["bbPeriod"] = 5
	v, _ = s.Parameter("bbPeriod")
	assert.Equal(t, 20.0, v)
}
