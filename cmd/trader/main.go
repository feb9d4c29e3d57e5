package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"autotrader/internal/broker"
	"autotrader/internal/dashboard"
	"autotrader/internal/engine"
	"autotrader/internal/history"
	"autotrader/internal/journal"
	"autotrader/internal/ops"
	"autotrader/pkg/conn"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	exportDays      = 20
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	exportDir := flag.String("export-history", "", "Download watchlist candles as CSV into this directory and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	runtime := newRuntimeConfig(loaded)

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "autotrader",
			ServerAddress:   *pyroscopeAddr,
			Tags:            map[string]string{"user": loaded.Broker.UserID},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	sim := newSimulator(loaded)
	source, closeSource := newHistorySource(ctx, loaded, sim)
	defer closeSource()

	if *exportDir != "" {
		if err := exportHistory(ctx, sim, source, loaded, *exportDir); err != nil {
			log.Fatalf("export history failed: %v", err)
		}
		return
	}

	writer, closeJournal := newJournal(ctx, loaded)
	defer closeJournal()

	eng, err := engine.New(loaded, engine.Deps{Port: sim, History: source, Journal: writer})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("engine start failed: %v", err)
	}
	go sim.Run(ctx, loaded.Broker.Tick)

	var server *dashboard.Server
	if loaded.Dashboard.Enabled {
		server = dashboard.New(dashboard.Config{Addr: loaded.Dashboard.Addr, PushInterval: loaded.Dashboard.PushInterval}, eng)
		if err := server.Start(); err != nil {
			log.Fatalf("dashboard start failed: %v", err)
		}
	}

	if *configPath != "" && *configReload > 0 {
		go watchConfig(ctx, *configPath, *configReload, func(next ops.Loaded) {
			if err := eng.ApplyConfig(next); err != nil {
				logs.Errorf("apply config, err: %+v", err)
				return
			}
			runtime.Update(next)
		})
	}

	<-ctx.Done()
	logs.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logs.Errorf("dashboard shutdown, err: %+v", err)
		}
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("engine shutdown, err: %+v", err)
	}
	logs.Infof("final config budget: %.0f", runtime.Load().Risk.Budget.DailyBudget)
}

func newSimulator(loaded ops.Loaded) *broker.Simulator {
	sc := loaded.Broker.Simulator
	return broker.NewSimulator(broker.SimulatorConfig{
		Seed:        sc.Seed,
		InitialCash: sc.InitialCash,
		BasePrices:  sc.BasePrices,
		Volatility:  sc.Volatility,
	})
}

// newHistorySource wraps the broker source with the Redis cache when an
// address is configured. A failed ping falls back to the broker.
func newHistorySource(ctx context.Context, loaded ops.Loaded, port broker.Port) (history.Source, func()) {
	src := history.NewBrokerSource(port)
	if loaded.Redis.Addr == "" {
		return src, func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	rdb, err := conn.NewRedis(pingCtx, conn.RedisOption{Addr: loaded.Redis.Addr, Password: loaded.Redis.Password, DB: loaded.Redis.DB})
	if err != nil {
		logs.Warnf("history cache disabled, err: %+v", err)
		return src, func() {}
	}
	logs.Infof("history cache on redis %s, ttl: %s", loaded.Redis.Addr, loaded.Redis.TTL)
	return history.NewCachedSource(rdb, loaded.Redis.TTL, src, ""), closeRedis(rdb)
}

func closeRedis(rdb *redis.Client) func() {
	return func() {
		if err := rdb.Close(); err != nil {
			logs.Warnf("close redis, err: %+v", err)
		}
	}
}

func newJournal(ctx context.Context, loaded ops.Loaded) (*journal.Writer, func()) {
	if !loaded.Journal.Enabled {
		return nil, func() {}
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := conn.New(connectCtx, loaded.Journal.Postgres)
	if err != nil {
		log.Fatalf("journal connect failed: %v", err)
	}
	repo := journal.NewRepository(client.DB())
	if err := repo.Migrate(connectCtx); err != nil {
		log.Fatalf("journal migrate failed: %v", err)
	}
	return journal.NewWriter(repo, loaded.Journal.QueueSize), func() {
		if err := client.Close(); err != nil {
			logs.Warnf("close journal db, err: %+v", err)
		}
	}
}

func exportHistory(ctx context.Context, port broker.Port, src history.Source, loaded ops.Loaded, dir string) error {
	if err := port.Connect(ctx, loaded.Broker.Server, loaded.Broker.Port); err != nil {
		return err
	}
	defer port.Disconnect()
	for _, symbol := range loaded.Watchlist {
		path, err := history.DownloadAndSave(ctx, src, symbol, dir, exportDays)
		if err != nil {
			return err
		}
		logs.Infof("exported %s to %s", symbol, path)
	}
	return nil
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastMod := modTime(path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Errorf("config reload failed, err: %+v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
