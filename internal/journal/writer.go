package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"autotrader/internal/bus"
	"autotrader/internal/model"
)

const writeTimeout = 5 * time.Second

// Writer drains the order status and trade buses into the repository off the
// dispatch path.
type Writer struct {
	repo   *Repository
	orders *bus.Queue[model.OrderDetail]
	trades *bus.Queue[model.TradeRecord]

	written atomic.Uint64
	failed  atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewWriter(repo *Repository, capacity int) *Writer {
	return &Writer{
		repo:   repo,
		orders: bus.NewQueue[model.OrderDetail](capacity),
		trades: bus.NewQueue[model.TradeRecord](capacity),
	}
}

// Orders is the queue the order pipeline publishes status snapshots to.
func (w *Writer) Orders() *bus.Queue[model.OrderDetail] {
	return w.orders
}

// Trades is the queue the order pipeline publishes ledger trades to.
func (w *Writer) Trades() *bus.Queue[model.TradeRecord] {
	return w.trades
}

func (w *Writer) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	ctx := context.Background()
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.orders.Run(ctx, w.writeOrder)
	}()
	go func() {
		defer w.wg.Done()
		w.trades.Run(ctx, w.writeTrade)
	}()
	logs.Info("journal writer started")
}

// Stop closes both queues and waits until buffered events are written.
func (w *Writer) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.orders.Close()
	w.trades.Close()
	w.wg.Wait()
	logs.Infof("journal writer stopped, written: %d, failed: %d", w.written.Load(), w.failed.Load())
}

func (w *Writer) IsRunning() bool {
	return w.running.Load()
}

// Written and Failed count processed events.
func (w *Writer) Written() uint64 { return w.written.Load() }
func (w *Writer) Failed() uint64  { return w.failed.Load() }

func (w *Writer) writeOrder(d model.OrderDetail) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.repo.UpsertOrder(ctx, d); err != nil {
		w.failed.Add(1)
		logs.Errorf("journal order %s, err: %+v", d.OrderID, err)
		return
	}
	w.written.Add(1)
}

func (w *Writer) writeTrade(t model.TradeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.repo.InsertTrade(ctx, t); err != nil {
		w.failed.Add(1)
		logs.Errorf("journal trade %s, err: %+v", t.Symbol, err)
		return
	}
	w.written.Add(1)
}
