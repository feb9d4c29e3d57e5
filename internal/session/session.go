package session

import (
	"time"

	"github.com/yanun0323/logs"
)

// Config describes an exchange session in local wall-clock minutes.
type Config struct {
	Location         string `json:"location"`
	OpenMinute       int    `json:"openMinute"`
	CloseMinute      int    `json:"closeMinute"`
	ForceCloseMinute int    `json:"forceCloseMinute"`
}

// DefaultConfig is the KRX regular session: 09:00-15:30, liquidation from 14:30.
func DefaultConfig() Config {
	return Config{
		Location:         "Asia/Seoul",
		OpenMinute:       9 * 60,
		CloseMinute:      15*60 + 30,
		ForceCloseMinute: 14*60 + 30,
	}
}

// Clock returns the current time.
type Clock func() time.Time

// Session answers calendar questions against an injectable clock.
type Session struct {
	cfg   Config
	loc   *time.Location
	clock Clock
}

// New builds a session. An unknown location falls back to a fixed +09:00 zone.
func New(cfg Config, clock Clock) *Session {
	if cfg.CloseMinute == 0 {
		cfg = DefaultConfig()
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil || cfg.Location == "" {
		if cfg.Location != "" {
			logs.Warnf("load location %s, err: %+v", cfg.Location, err)
		}
		loc = time.FixedZone("KST", 9*60*60)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Session{cfg: cfg, loc: loc, clock: clock}
}

func (s *Session) Config() Config {
	return s.cfg
}

// Now returns the clock time in the session location.
func (s *Session) Now() time.Time {
	return s.clock().In(s.loc)
}

// NowMillis returns the clock time as epoch milliseconds.
func (s *Session) NowMillis() int64 {
	return s.clock().UnixMilli()
}

func (s *Session) minuteOfDay(t time.Time) int {
	t = t.In(s.loc)
	return t.Hour()*60 + t.Minute()
}

// IsTradingDay reports whether t falls on a weekday.
func (s *Session) IsTradingDay(t time.Time) bool {
	switch t.In(s.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// IsOpenAt reports whether the market is open at t.
func (s *Session) IsOpenAt(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	m := s.minuteOfDay(t)
	return m >= s.cfg.OpenMinute && m <= s.cfg.CloseMinute
}

func (s *Session) IsMarketOpen() bool {
	return s.IsOpenAt(s.clock())
}

// MinutesSinceOpenAt returns minutes elapsed since the open, or 0 before it.
func (s *Session) MinutesSinceOpenAt(t time.Time) int {
	m := s.minuteOfDay(t) - s.cfg.OpenMinute
	if m < 0 {
		return 0
	}
	return m
}

func (s *Session) MinutesSinceOpen() int {
	return s.MinutesSinceOpenAt(s.clock())
}

// IsForceCloseAt reports whether t is at or past the liquidation minute.
func (s *Session) IsForceCloseAt(t time.Time) bool {
	return s.minuteOfDay(t) >= s.cfg.ForceCloseMinute
}

func (s *Session) IsForceCloseWindow() bool {
	return s.IsForceCloseAt(s.clock())
}

// InEntryWindow reports whether the market is open and fewer than
// minutes have elapsed since the open.
func (s *Session) InEntryWindow(minutes int) bool {
	now := s.clock()
	return s.IsOpenAt(now) && s.MinutesSinceOpenAt(now) <= minutes
}

// DayKey identifies the trading day of t, used for daily rollover.
func (s *Session) DayKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}
