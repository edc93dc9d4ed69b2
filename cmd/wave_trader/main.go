package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wave_trader/internal/alert"
	"wave_trader/internal/config"
	"wave_trader/internal/core"
	"wave_trader/internal/engine"
	"wave_trader/internal/infrastructure/metrics"
	"wave_trader/internal/ingest"
	"wave_trader/internal/venue"
	"wave_trader/pkg/concurrency"
	apperrors "wave_trader/pkg/errors"
	"wave_trader/pkg/logging"
	"wave_trader/pkg/scheduler"
	"wave_trader/pkg/telemetry"
)

// codeCannotCreatePortfolio marks the one venue rejection the run recovers
// from: the portfolio already exists and is reused.
const codeCannotCreatePortfolio = "CannotCreatePortfolio"

var (
	configFile  = flag.String("config", "configs/wave_trader.yaml", "Path to configuration file")
	targetsFile = flag.String("targets", "", "Path to targets CSV file (overrides config)")
)

func main() {
	flag.Parse()

	logger, err := logging.NewZapLogger("INFO")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", "file", *configFile, "error", err)
	}
	if *targetsFile != "" {
		cfg.Trading.TargetsFile = *targetsFile
	}

	if cfg.System.LogLevel != "INFO" {
		if leveled, err := logging.NewZapLogger(cfg.System.LogLevel); err == nil {
			logger = leveled
			defer logger.Sync()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		reportFailure(logger, err)
	}
	logger.Info("Run finished")
}

func run(ctx context.Context, cfg *config.Config, logger core.ILogger) error {
	tel, err := telemetry.Setup("wave_trader")
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Telemetry.EnableMetrics {
		metricsServer := metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Stop(stopCtx)
		}()
	}

	client, err := venue.Dial(ctx, venue.Config{
		URL:            cfg.Venue.URL,
		User:           cfg.Venue.User,
		Password:       cfg.Venue.Password.Value(),
		RequestTimeout: cfg.RequestTimeout(),
		RateLimit:      float64(cfg.Venue.RateLimit),
		RateBurst:      cfg.Venue.RateBurst,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	portfolio := fmt.Sprintf("%s%d", cfg.Trading.PortfolioPrefix, time.Now().UnixMilli())
	if err := client.CreatePortfolio(ctx, portfolio); err != nil {
		if !apperrors.IsRemoteCode(err, codeCannotCreatePortfolio) {
			return fmt.Errorf("failed to create portfolio %s: %w", portfolio, err)
		}
		logger.Warn("Portfolio already exists, reusing it", "portfolio", portfolio)
	}

	batch, err := ingest.LoadTargets(cfg.Trading.TargetsFile, cfg.Trading.StringColumns)
	if err != nil {
		return err
	}
	logger.Info("Loaded targets",
		"file", cfg.Trading.TargetsFile,
		"targets", len(batch.Targets),
		"instruments", len(batch.Instruments))

	targetIDs, err := client.AddTargets(ctx, portfolio, batch.Targets)
	if err != nil {
		return fmt.Errorf("failed to add targets: %w", err)
	}

	// Route all transactions through the configured destination and size
	// each wave as a fixed percentage of the target quantity.
	if err := client.ModifyTargets(ctx, targetIDs, core.Fields{
		"TrnDestination": core.Str(cfg.Trading.Destination),
		"WaveSizeType":   core.Str("PctTgtQty"),
		"WaveSize":       core.Num(cfg.Trading.WaveSizePct),
	}); err != nil {
		return fmt.Errorf("failed to configure targets: %w", err)
	}

	sched := scheduler.New(logger)
	alerts := alert.NewManager(logger)
	alerts.AddChannel(alert.NewVenueChannel(client, cfg.System.AlertUser))

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "MarketDataPool",
		MaxWorkers:  cfg.Concurrency.MarketDataPoolSize,
		MaxCapacity: cfg.Concurrency.MarketDataPoolBuffer,
	}, logger)

	deps := engine.Deps{
		Dispatcher: client,
		Scheduler:  sched,
		Alerts:     alerts,
		Logger:     logger,
		Config: engine.Config{
			MidPriceDelay:      cfg.MidPriceDelay(),
			MarketDelay:        cfg.MarketDelay(),
			DeviationThreshold: cfg.Escalation.DeviationThreshold,
		},
	}

	subs := engine.Subscriptions{
		Targets: core.TargetSubscription{
			Filter: fmt.Sprintf("Portfolio='%s'", portfolio),
			Fields: []string{core.FieldUnreleased, core.FieldText},
		},
		Orders: core.OrderSubscription{
			Filter: fmt.Sprintf("TgtID IN (%s)", joinIDs(targetIDs)),
			Fields: []string{core.FieldLeaves, core.FieldOrdPx, core.FieldTgtID, core.FieldInstrument},
		},
		MarketData: core.MarketDataSubscription{
			Instruments: batch.Instruments,
			Fields:      []string{core.FieldMidPx, core.FieldLastPx},
		},
	}

	coordinator := engine.NewCoordinator(client, subs, len(targetIDs), pool, deps)

	done := make(chan error, 1)
	go func() {
		done <- coordinator.Run(ctx)
	}()

	// The first wave goes out only after the streams are up, so no order or
	// target event can be missed.
	select {
	case <-coordinator.Subscribed():
	case err := <-done:
		return err
	}

	if err := client.SendWave(ctx, targetIDs...); err != nil {
		return fmt.Errorf("failed to send first wave: %w", err)
	}
	logger.Info("First wave sent", "portfolio", portfolio, "targets", len(targetIDs))

	return <-done
}

// reportFailure logs a run-ending error, unpacking venue rejections into
// their code, exception class and nested child messages.
func reportFailure(logger core.ILogger, err error) {
	if remote, ok := apperrors.AsRemote(err); ok {
		fields := []interface{}{
			"code", remote.Code,
			"exception_class", remote.ExceptionClass,
		}
		for i, child := range remote.Children {
			fields = append(fields, fmt.Sprintf("child_error_%d", i), child)
		}
		logger.Fatal("Venue rejected the run", fields...)
	}
	logger.Fatal("Run failed", "error", err)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
