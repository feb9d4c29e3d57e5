package enum

// Resolution is a candle width in minutes.
type Resolution int

const (
	Resolution1m Resolution = 1
	Resolution5m Resolution = 5
)

// Resolutions lists the intraday widths the aggregator maintains.
var Resolutions = [...]Resolution{Resolution1m, Resolution5m}

func (r Resolution) IsAvailable() bool {
	return r == Resolution1m || r == Resolution5m
}

// Millis returns the bucket width in milliseconds.
func (r Resolution) Millis() int64 {
	return int64(r) * 60_000
}

// Slot returns the bucket start containing the millisecond timestamp.
func (r Resolution) Slot(tsMillis int64) int64 {
	width := r.Millis()
	if width <= 0 {
		return tsMillis
	}
	slot := tsMillis / width * width
	if tsMillis < 0 && tsMillis%width != 0 {
		slot -= width
	}
	return slot
}
