package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"autotrader/internal/engine"
	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/pkg/exception"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeProvider struct {
	mu      sync.Mutex
	data    engine.DashboardData
	orders  []model.OrderDetail
	limit   int
	enabled map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		data: engine.DashboardData{
			Day:     "2026-10-14",
			Running: true,
			Budget:  model.DailyBudgetConfig{DailyBudget: 10_000_000, MaxPositionRatio: 0.2, MaxDailyLossRatio: 0.03, PerTradeLossRatio: 0.015, MaxConcurrentPositions: 3},
			Stats:   risk.Stats{TotalTrades: 1, RealizedPnL: 8_675.5551},
			Positions: []model.Position{
				{Symbol: "005930", Quantity: 10, RemainingQty: 10, AvgPrice: 70_000.123, StopLossPrice: 69_300},
			},
			Quotes: map[string]model.Quote{
				"000660": {Symbol: "000660", CurrentPrice: 180_000},
				"005930": {Symbol: "005930", CurrentPrice: 70_100},
			},
			Strategies: []strategy.Status{{Name: "GapPullback", Enabled: true}},
		},
		orders: []model.OrderDetail{
			{OrderID: "ORD2", Request: model.OrderRequest{Type: enum.OrderTypeMarketSell, Symbol: "005930", Quantity: 10}, Status: enum.OrderStatusFilled},
			{OrderID: "ORD1", Request: model.OrderRequest{Type: enum.OrderTypeMarketBuy, Symbol: "005930", Quantity: 10}, Status: enum.OrderStatusFilled},
		},
		enabled: map[string]bool{"GapPullback": true},
	}
}

func (f *fakeProvider) Dashboard() engine.DashboardData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

func (f *fakeProvider) RecentOrders(limit int) []model.OrderDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	if limit < len(f.orders) {
		return f.orders[:limit]
	}
	return f.orders
}

func (f *fakeProvider) SetStrategyEnabled(name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enabled[name]; !ok {
		return errors.Wrap(exception.ErrStrategyUnknown, name)
	}
	f.enabled[name] = enabled
	return nil
}

func serve(t *testing.T, s *Server, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := New(Config{}, newFakeProvider())
	w := serve(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","running":true}`, w.Body.String())
}

func TestDashboardEndpoint(t *testing.T) {
	s := New(Config{}, newFakeProvider())
	w := serve(t, s, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "2026-10-14", got["day"])
	assert.Len(t, got["positions"], 1)
	assert.Len(t, got["orders"], 2)

	quotes := got["quotes"].([]any)
	require.Len(t, quotes, 2)
	assert.Equal(t, "000660", quotes[0].(map[string]any)["symbol"])
}

func TestViewRoundsMoney(t *testing.T) {
	v := toView(newFakeProvider().Dashboard())

	pnl, _ := v.Stats.RealizedPnL.Float64()
	assert.InDelta(t, 8_675.56, pnl, 1e-9)
	avg, _ := v.Positions[0].AvgPrice.Float64()
	assert.InDelta(t, 70_000.12, avg, 1e-9)
	size, _ := v.Budget.MaxPositionSize.Float64()
	assert.InDelta(t, 2_000_000, size, 1e-9)
	assert.Equal(t, 3, v.Budget.MaxConcurrentPositions)
}

func TestOrdersEndpoint(t *testing.T) {
	p := newFakeProvider()
	s := New(Config{}, p)

	w := serve(t, s, http.MethodGet, "/api/orders?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD2", orders[0]["orderId"])
	assert.Equal(t, 1, p.limit)

	serve(t, s, http.MethodGet, "/api/orders", "")
	assert.Equal(t, defaultOrderLimit, p.limit)

	for _, raw := range []string{"abc", "0", "-2"} {
		w = serve(t, s, http.MethodGet, "/api/orders?limit="+raw, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	s := New(Config{}, newFakeProvider())
	w := serve(t, s, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var positions []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "005930", positions[0]["symbol"])
}

func TestSetStrategyEnabled(t *testing.T) {
	p := newFakeProvider()
	s := New(Config{}, p)

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"disable", "/api/strategies/GapPullback/enabled", `{"enabled":false}`, http.StatusOK},
		{"unknown strategy", "/api/strategies/Nope/enabled", `{"enabled":true}`, http.StatusNotFound},
		{"missing field", "/api/strategies/GapPullback/enabled", `{}`, http.StatusBadRequest},
		{"malformed body", "/api/strategies/GapPullback/enabled", `{"enabled":`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, s, http.MethodPost, tc.url, tc.body)
			assert.Equal(t, tc.status, w.Code)
		})
	}
	assert.False(t, p.enabled["GapPullback"])
}

func TestWebsocketPush(t *testing.T) {
	p := newFakeProvider()
	s := New(Config{}, p)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var v map[string]any
		require.NoError(t, json.Unmarshal(msg, &v))
		return v
	}
	assert.Equal(t, "2026-10-14", read()["day"])

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)
	p.mu.Lock()
	p.data.Day = "2026-10-15"
	p.mu.Unlock()
	assert.Equal(t, 1, s.Push())
	assert.Equal(t, "2026-10-15", read()["day"])

	conn.Close()
	require.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Push())
}

func TestClientQueueDropsOldest(t *testing.T) {
	c := newClient(nil, 2)
	assert.True(t, c.enqueue([]byte("1")))
	assert.True(t, c.enqueue([]byte("2")))
	assert.True(t, c.enqueue([]byte("3")))
	assert.Equal(t, "2", string(<-c.send))
	assert.Equal(t, "3", string(<-c.send))

	c.close()
	assert.False(t, c.enqueue([]byte("4")))
}

func TestServerStartShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", PushInterval: 10 * time.Millisecond}, newFakeProvider())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Shutdown(ctx))
}
