// Command bot runs the short-strangle trading loop: it assesses volatility
// on a ticker universe, sells strangles into rich premium, and sweeps open
// positions for profit-target and stop-loss exits.
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

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/eddiefleurent/stamford_strangler/internal/config"
	"github.com/eddiefleurent/stamford_strangler/internal/dashboard"
	"github.com/eddiefleurent/stamford_strangler/internal/earnings"
	"github.com/eddiefleurent/stamford_strangler/internal/engine"
	"github.com/eddiefleurent/stamford_strangler/internal/ledger"
	"github.com/eddiefleurent/stamford_strangler/internal/mock"
	"github.com/eddiefleurent/stamford_strangler/internal/orders"
	"github.com/eddiefleurent/stamford_strangler/internal/retry"
	"github.com/eddiefleurent/stamford_strangler/internal/strategy"
	"github.com/eddiefleurent/stamford_strangler/internal/volatility"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// livePause gives the operator a window to abort before real orders flow.
const livePause = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)

	if err := run(*configPath, logger); err != nil {
		logger.Fatalf("Fatal: %v", err)
	}
}

func run(configPath string, logger *log.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	calendar, err := earnings.Load(cfg.Calendar.Path)
	if err != nil {
		return fmt.Errorf("loading earnings calendar: %w", err)
	}

	var baseBroker broker.Broker
	if cfg.IsPaperTrading() {
		logger.Println("Paper trading mode: using simulated broker")
		baseBroker = mock.NewPaperBroker()
	} else {
		logger.Printf("LIVE trading mode: real orders will be placed in %v", livePause)
		time.Sleep(livePause)
		baseBroker = broker.NewTradierAPI(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.Sandbox)
	}
	b := broker.NewCircuitBreakerBroker(baseBroker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connectivity probe before the loop starts: a broker that cannot quote
	// the first ticker will not get better once orders are at stake.
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	first := cfg.Strategy.Tickers[0]
	if _, err := b.GetUnderlying(probeCtx, first); err != nil {
		return fmt.Errorf("broker connectivity probe for %s failed: %w", first, err)
	}
	logger.Printf("Broker connectivity confirmed via %s", first)

	positions := ledger.New()
	blacklist := ledger.NewBlacklist()

	strat := strategy.New(strategy.Config{
		MinPremium:          cfg.Strategy.MinPremium,
		ProfitTargetHighVol: cfg.Strategy.ProfitTargetHighVol,
		ProfitTargetLowVol:  cfg.Strategy.ProfitTargetLowVol,
		StopLossMultiple:    cfg.Strategy.StopLossMultiple,
		EarningsWindowDays:  cfg.Strategy.EarningsWindowDays,
	}, calendar, blacklist)

	eng := engine.New(engine.Params{
		Broker:    b,
		Assessor:  volatility.NewAssessor(b, logger),
		Strategy:  strat,
		Ledger:    positions,
		Blacklist: blacklist,
		Placer:    orders.NewPlacer(b, retry.NewClient(b, logger), logger),
		Logger:    logger,
		Quantity:  cfg.Strategy.Quantity,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(cfg.Dashboard.ListenAddr, positions, blacklist, dashboardLogger(cfg))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		return runLoop(gctx, cfg, eng, positions, logger)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Println("Shutdown complete")
	return nil
}

// runLoop drives trading cycles on the poll interval until ctx is canceled.
func runLoop(ctx context.Context, cfg *config.Config, eng *engine.Engine,
	positions *ledger.Ledger, logger *log.Logger) error {
	c := newCycle(cfg, eng, positions, logger)

	logger.Printf("Trading %v every %v (sell time %s %s)",
		cfg.Strategy.Tickers, cfg.GetPollInterval(), cfg.Schedule.SellTime, cfg.Schedule.Timezone)

	ticker := time.NewTicker(cfg.GetPollInterval())
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Println("Stopping trading loop")
			return nil
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

func dashboardLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch cfg.Environment.LogLevel {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
