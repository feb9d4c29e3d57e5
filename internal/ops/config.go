package ops

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"

	"autotrader/internal/model"
	"autotrader/internal/risk"
	"autotrader/internal/session"
	"autotrader/internal/strategy"
	"autotrader/pkg/conn"
)

// Environment overrides applied on top of the file.
const (
	EnvUserID        = "TRADER_USER_ID"
	EnvPassword      = "TRADER_PASSWORD"
	EnvCertPassword  = "TRADER_CERT_PASSWORD"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvPGConn        = "PG_CONN"
)

// FileConfig mirrors the JSON config layout. Durations are milliseconds.
type FileConfig struct {
	Session    session.Config             `json:"session"`
	Budget     model.DailyBudgetConfig    `json:"budget"`
	Fees       risk.Fees                  `json:"fees"`
	Watchlist  []string                   `json:"watchlist"`
	Strategies map[string]strategy.Config `json:"strategies"`
	Broker     BrokerConfig               `json:"broker"`
	Order      OrderConfig                `json:"order"`
	Monitor    MonitorConfig              `json:"monitor"`
	Engine     EngineConfig               `json:"engine"`
	Dashboard  DashboardConfig            `json:"dashboard"`
	Journal    JournalConfig              `json:"journal"`
	Redis      RedisConfig                `json:"redis"`
	Snapshot   SnapshotConfig             `json:"snapshot"`
}

type BrokerConfig struct {
	Server    string              `json:"server"`
	Port      int                 `json:"port"`
	UserID    string              `json:"userId"`
	Simulator SimulatorFileConfig `json:"simulator"`
}

// SimulatorFileConfig drives the built-in paper broker.
type SimulatorFileConfig struct {
	Seed        int64              `json:"seed"`
	InitialCash float64            `json:"initialCash"`
	BasePrices  map[string]float64 `json:"basePrices"`
	Volatility  float64            `json:"volatility"`
	TickMs      int                `json:"tickMs"`
}

type OrderConfig struct {
	MarketPriceEstimate float64 `json:"marketPriceEstimate"`
	DispatchTimeoutMs   int     `json:"dispatchTimeoutMs"`
	MaxSlippage         float64 `json:"maxSlippage"`
}

type MonitorConfig struct {
	PollIntervalMs int `json:"pollIntervalMs"`
}

type EngineConfig struct {
	EvalIntervalMs int `json:"evalIntervalMs"`
	CandleCount    int `json:"candleCount"`
	LogCapacity    int `json:"logCapacity"`
}

type DashboardConfig struct {
	Enabled        *bool  `json:"enabled"`
	Addr           string `json:"addr"`
	PushIntervalMs int    `json:"pushIntervalMs"`
}

type JournalConfig struct {
	Enabled  *bool       `json:"enabled"`
	Postgres conn.Option `json:"postgres"`
	// QueueSize bounds the status bus feeding the writer.
	QueueSize int `json:"queueSize"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	TTLMs    int    `json:"ttlMs"`
}

type SnapshotConfig struct {
	Path string `json:"path"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Session    session.Config
	Risk       risk.Config
	Watchlist  []string
	Strategies map[string]strategy.Config
	Broker     Broker
	Order      Order
	Monitor    Monitor
	Engine     Engine
	Dashboard  Dashboard
	Journal    Journal
	Redis      Redis
	Snapshot   string
}

type Broker struct {
	Server       string
	Port         int
	UserID       string
	Password     string
	CertPassword string
	Simulator    SimulatorFileConfig
	Tick         time.Duration
}

type Order struct {
	MarketPriceEstimate float64
	DispatchTimeout     time.Duration
	MaxSlippage         float64
}

type Monitor struct {
	PollInterval time.Duration
}

type Engine struct {
	EvalInterval time.Duration
	CandleCount  int
	LogCapacity  int
}

type Dashboard struct {
	Enabled      bool
	Addr         string
	PushInterval time.Duration
}

type Journal struct {
	Enabled   bool
	Postgres  conn.Option
	QueueSize int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Default returns the configuration used when no file is given.
func Default() Loaded {
	return resolve(FileConfig{})
}

// Load reads a JSON config file, applies .env and environment overrides,
// and validates the result. An empty path yields the defaults.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrapf(err, "decode config %s", path)
		}
	}
	loadDotEnv()
	loaded := resolve(cfg)
	applyEnv(&loaded)
	if err := loaded.Validate(); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

func loadDotEnv() {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()
}

func resolve(cfg FileConfig) Loaded {
	sess := cfg.Session
	if sess.CloseMinute == 0 {
		sess = session.DefaultConfig()
	}

	budget := cfg.Budget
	if budget == (model.DailyBudgetConfig{}) {
		budget = model.DefaultDailyBudget()
	}
	fees := cfg.Fees
	if fees == (risk.Fees{}) {
		fees = risk.DefaultFees()
	}

	watchlist := make([]string, 0, len(cfg.Watchlist))
	seen := make(map[string]struct{}, len(cfg.Watchlist))
	for _, symbol := range cfg.Watchlist {
		symbol = strings.TrimSpace(symbol)
		if _, ok := seen[symbol]; ok || symbol == "" {
			continue
		}
		seen[symbol] = struct{}{}
		watchlist = append(watchlist, symbol)
	}

	strategies := make(map[string]strategy.Config, len(cfg.Strategies))
	for name, sc := range cfg.Strategies {
		strategies[name] = sc
	}

	sim := cfg.Broker.Simulator
	if sim.Seed == 0 {
		sim.Seed = 1
	}
	if sim.InitialCash == 0 {
		sim.InitialCash = budget.DailyBudget
	}
	if sim.Volatility == 0 {
		sim.Volatility = 0.001
	}

	return Loaded{
		Session:    sess,
		Risk:       risk.Config{Budget: budget, Fees: fees},
		Watchlist:  watchlist,
		Strategies: strategies,
		Broker: Broker{
			Server:    cfg.Broker.Server,
			Port:      cfg.Broker.Port,
			UserID:    cfg.Broker.UserID,
			Simulator: sim,
			Tick:      millis(sim.TickMs, time.Second),
		},
		Order: Order{
			MarketPriceEstimate: positive(cfg.Order.MarketPriceEstimate, 50_000),
			DispatchTimeout:     millis(cfg.Order.DispatchTimeoutMs, 100*time.Millisecond),
			MaxSlippage:         positive(cfg.Order.MaxSlippage, 0.5),
		},
		Monitor: Monitor{PollInterval: millis(cfg.Monitor.PollIntervalMs, 100*time.Millisecond)},
		Engine: Engine{
			EvalInterval: millis(cfg.Engine.EvalIntervalMs, time.Second),
			CandleCount:  intOr(cfg.Engine.CandleCount, 100),
			LogCapacity:  intOr(cfg.Engine.LogCapacity, 200),
		},
		Dashboard: Dashboard{
			Enabled:      flag(cfg.Dashboard.Enabled, true),
			Addr:         stringOr(cfg.Dashboard.Addr, ":8080"),
			PushInterval: millis(cfg.Dashboard.PushIntervalMs, time.Second),
		},
		Journal: Journal{
			Enabled:   flag(cfg.Journal.Enabled, cfg.Journal.Postgres.Configured()),
			Postgres:  cfg.Journal.Postgres,
			QueueSize: intOr(cfg.Journal.QueueSize, 1024),
		},
		Redis: Redis{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
			TTL:  millis(cfg.Redis.TTLMs, 24*time.Hour),
		},
		Snapshot: stringOr(cfg.Snapshot.Path, "data/ledger.json"),
	}
}

func applyEnv(l *Loaded) {
	if v := os.Getenv(EnvUserID); v != "" {
		l.Broker.UserID = v
	}
	l.Broker.Password = os.Getenv(EnvPassword)
	l.Broker.CertPassword = os.Getenv(EnvCertPassword)
	if v := os.Getenv(EnvRedisAddr); v != "" {
		l.Redis.Addr = v
	}
	l.Redis.Password = os.Getenv(EnvRedisPassword)
	if v := os.Getenv(EnvPGConn); v != "" {
		l.Journal.Postgres.ConnString = v
		l.Journal.Enabled = true
	}
}

// Validate rejects values no component can run with.
func (l Loaded) Validate() error {
	b := l.Risk.Budget
	switch {
	case b.DailyBudget <= 0:
		return errors.New("budget.dailyBudget must be > 0")
	case b.MaxPositionRatio <= 0 || b.MaxPositionRatio > 1:
		return errors.New("budget.maxPositionRatio must be in (0, 1]")
	case b.MaxDailyLossRatio <= 0 || b.MaxDailyLossRatio > 1:
		return errors.New("budget.maxDailyLossRatio must be in (0, 1]")
	case b.PerTradeLossRatio < 0 || b.PerTradeLossRatio > 1:
		return errors.New("budget.perTradeLossRatio must be in [0, 1]")
	case b.MaxConcurrentPositions <= 0:
		return errors.New("budget.maxConcurrentPositions must be > 0")
	case l.Risk.Fees.CommissionRate < 0 || l.Risk.Fees.TaxRate < 0:
		return errors.New("fees must be >= 0")
	}

	s := l.Session
	if s.OpenMinute < 0 || s.CloseMinute > 24*60 || s.OpenMinute >= s.CloseMinute {
		return errors.Errorf("session window invalid: open=%d close=%d", s.OpenMinute, s.CloseMinute)
	}
	if s.ForceCloseMinute < s.OpenMinute || s.ForceCloseMinute > s.CloseMinute {
		return errors.Errorf("session forceCloseMinute %d outside trading hours", s.ForceCloseMinute)
	}

	if l.Order.MaxSlippage < 0 {
		return errors.New("order.maxSlippage must be >= 0")
	}
	if l.Engine.CandleCount < 30 {
		return errors.Errorf("engine.candleCount %d is too small for the indicators", l.Engine.CandleCount)
	}
	for name, sc := range l.Strategies {
		if strings.TrimSpace(name) == "" {
			return errors.New("strategy name is empty")
		}
		for param, v := range sc.Params {
			if v < 0 {
				return errors.Errorf("strategy %s param %s must be >= 0", name, param)
			}
		}
	}
	return nil
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func positive(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func intOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func flag(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
