package obs

import (
	"sync/atomic"
	"time"

	"autotrader/internal/model/enum"
	"autotrader/internal/risk"
)

const maxOrderStatus = int(enum.OrderStatusFailed)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	orderStatusCounts [maxOrderStatus + 1]uint64
	riskReasonCounts  [risk.ReasonCount]uint64
	signals           uint64
	rejectedOrders    uint64
	queueDrops        uint64
	queueClosed       uint64

	quoteLatency     LatencyStats
	orderFlowLatency LatencyStats
	evaluationTime   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrderStatusCounts map[string]uint64 `json:"orderStatusCounts"`
	RiskReasonCounts  map[string]uint64 `json:"riskReasonCounts"`
	Signals           uint64            `json:"signals"`
	RejectedOrders    uint64            `json:"rejectedOrders"`
	QueueDrops        uint64            `json:"queueDrops"`
	QueueClosed       uint64            `json:"queueClosed"`
	QuoteLatency      LatencySnapshot   `json:"quoteLatency"`
	OrderFlowLatency  LatencySnapshot   `json:"orderFlowLatency"`
	EvaluationTime    LatencySnapshot   `json:"evaluationTime"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOrderStatus counts an order reaching status.
func (m *Metrics) ObserveOrderStatus(status enum.OrderStatus) {
	if m == nil {
		return
	}
	idx := int(status)
	if idx >= 0 && idx < len(m.orderStatusCounts) {
		atomic.AddUint64(&m.orderStatusCounts[idx], 1)
	}
}

// IncRiskReason increments the risk reason counter.
func (m *Metrics) IncRiskReason(reason risk.Reason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// IncSignal records an actionable strategy signal.
func (m *Metrics) IncSignal() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.signals, 1)
}

// IncRejectedOrder records an order refused before it reached the queue.
func (m *Metrics) IncRejectedOrder() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rejectedOrders, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveQuote tracks feed latency from the quote timestamp to receipt, both
// in milliseconds.
func (m *Metrics) ObserveQuote(quoteMillis, recvMillis int64) {
	if m == nil || quoteMillis <= 0 || recvMillis <= 0 {
		return
	}
	if delta := recvMillis - quoteMillis; delta >= 0 {
		m.quoteLatency.Observe(time.Duration(delta) * time.Millisecond)
	}
}

// ObserveOrderFlow measures one broker order call.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveEvaluation measures one engine evaluation pass.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationTime.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	statusCounts := make(map[string]uint64)
	for i := range m.orderStatusCounts {
		if v := atomic.LoadUint64(&m.orderStatusCounts[i]); v > 0 {
			statusCounts[enum.OrderStatus(i).String()] = v
		}
	}
	riskCounts := make(map[string]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[risk.Reason(i).String()] = v
		}
	}
	return Snapshot{
		OrderStatusCounts: statusCounts,
		RiskReasonCounts:  riskCounts,
		Signals:           atomic.LoadUint64(&m.signals),
		RejectedOrders:    atomic.LoadUint64(&m.rejectedOrders),
		QueueDrops:        atomic.LoadUint64(&m.queueDrops),
		QueueClosed:       atomic.LoadUint64(&m.queueClosed),
		QuoteLatency:      m.quoteLatency.Snapshot(),
		OrderFlowLatency:  m.orderFlowLatency.Snapshot(),
		EvaluationTime:    m.evaluationTime.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
