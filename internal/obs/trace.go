package obs

import (
	"strconv"
	"sync/atomic"
	"time"
)

// IDGenerator creates unique ids of the form prefix + unix millis + a
// zero-padded six digit sequence.
type IDGenerator struct {
	prefix string
	clock  func() time.Time
	next   uint64
}

// NewIDGenerator returns a generator. A nil clock uses time.Now.
func NewIDGenerator(prefix string, clock func() time.Time) *IDGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &IDGenerator{prefix: prefix, clock: clock}
}

// Next returns the next id.
func (g *IDGenerator) Next() string {
	if g == nil {
		return ""
	}
	seq := atomic.AddUint64(&g.next, 1) % 1_000_000
	ms := strconv.FormatInt(g.clock().UnixMilli(), 10)
	s := strconv.FormatUint(seq, 10)
	for len(s) < 6 {
		s = "0" + s
	}
	return g.prefix + ms + s
}
