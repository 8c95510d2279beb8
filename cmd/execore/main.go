// Command execore runs the execution core: a configured set of venue
// adapters, the risk-gated order router, and a configured set of
// reference strategies, until interrupted. Grounded on the teacher's
// cmd/trader/main.go (flag parsing, explicit run()-returns-error shape,
// os.Exit(1) on failure) and cmd/ingest/main.go (signal.NotifyContext
// for graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"

	"execore/internal/audit"
	"execore/internal/config"
	"execore/internal/execore"
	"execore/internal/schema"
	"execore/internal/strategy/marketmaker"
	"execore/internal/strategy/statarb"
	"execore/internal/strategy/trend"
	"execore/internal/venue"
)

func main() {
	if err := run(); err != nil {
		log.Printf("execore: %v", err)
		os.Exit(1)
	}
}

func run() error {
	profile := flag.Bool("profile", false, "enable continuous profiling via pyroscope")
	pyroscopeAddr := flag.String("pyroscope-addr", "http://localhost:4040", "pyroscope server address")
	ringCapacity := flag.Int("ring-capacity", 1024, "dispatcher ring buffer capacity")
	startingEquity := flag.Float64("starting-equity", 100_000, "starting equity for drawdown/daily-loss tracking")
	auditDSN := flag.String("audit-dsn", "", "audit database connection string (disabled if empty)")
	flag.Parse()

	if *profile {
		stopProfiler, err := startProfiler(*pyroscopeAddr)
		if err != nil {
			return fmt.Errorf("profiler: %w", err)
		}
		defer stopProfiler()
	}

	cfg, err := config.Apply(map[string]any{
		"dispatcher.buffer_size":  *ringCapacity,
		"risk.max_order_notional": 1_000_000,
		"risk.max_daily_loss":     50_000,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	limits := schema.RiskLimits{
		MaxOrderNotional:    cfg.Risk.MaxOrderNotional,
		MaxPositionNotional: cfg.Risk.MaxPositionNotional,
		MaxLeverage:         cfg.Risk.MaxLeverage,
		MaxDrawdown:         cfg.Risk.MaxDrawdown,
		MaxDailyLoss:        cfg.Risk.MaxDailyLoss,
	}

	core := execore.New(cfg.Dispatcher.BufferSize, limits, *startingEquity)
	core.RegisterVenue("SIM", venue.NewSimulatedAdapter("SIM", map[string]float64{"USD": *startingEquity}))

	if *auditDSN != "" {
		client, err := audit.Open(audit.Option{ConnString: *auditDSN})
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer client.Close()
		sink := audit.NewSink(client)
		core.SetAuditSink(sink)
		sink.Subscribe(core.Dispatcher())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	strategies := registerStrategies(core)
	for _, s := range strategies {
		if err := s.Initialize(); err != nil {
			return fmt.Errorf("strategy initialize: %w", err)
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("strategy start: %w", err)
		}
	}

	log.Printf("execore running with %d strategies", len(strategies))
	<-ctx.Done()
	log.Printf("execore shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range strategies {
		if err := s.Stop(stopCtx); err != nil {
			log.Printf("strategy stop: %v", err)
		}
	}
	core.Stop()
	return nil
}

// lifecycle is the subset of *strategy.Base every reference strategy
// exposes by embedding it.
type lifecycle interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// registerStrategies wires one instance of each reference strategy
// against the configured symbol universe. A real deployment would drive
// this from cfg.Strategies instead of a fixed set; the execore binary is
// a composition root, not a strategy marketplace.
func registerStrategies(core *execore.Core) []lifecycle {
	mm := marketmaker.New("mm-btc", core, marketmaker.Config{
		Symbol: "BTC-USD", Venue: "SIM",
		PriceQueueSize: 20, BaseSpread: 0.001, MinSpread: 0.0005, MaxSpread: 0.01,
		VolMultiplier: 2, SkewFactor: 0.1, InventoryLimit: 5, OrderSize: 0.1,
	})
	tf := trend.New("trend-eth", core, trend.Config{
		Symbol: "ETH-USD", Venue: "SIM",
		ShortPeriod: 10, LongPeriod: 30, ATRPeriod: 14,
		PositionSize: 1, ATRMultiplier: 1, MaxPositionSize: 10,
		StopLossPct: 0.02, TakeProfitPct: 0.04,
	})
	sa := statarb.New("statarb-btc-eth", core, statarb.Config{
		SymbolA: "BTC-USD", SymbolB: "ETH-USD", Venue: "SIM",
		LookbackPeriod: 60, MinObservations: 30, CorrThreshold: 0.6,
		EntryZ: 2, ExitZ: 0.5, StopLossZ: 3.5,
		PositionSize: 1, MaxPositionSize: 5,
	})

	return []lifecycle{mm, tf, sa}
}

func startProfiler(addr string) (func(), error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "execore",
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
		},
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = profiler.Stop() }, nil
}
