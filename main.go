package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"polybot/config"
	"polybot/internal/calibration"
	"polybot/internal/candles"
	"polybot/internal/diagnostics"
	"polybot/internal/domain"
	"polybot/internal/events"
	"polybot/internal/features"
	"polybot/internal/filters"
	"polybot/internal/logging"
	"polybot/internal/market"
	"polybot/internal/orderexec"
	"polybot/internal/paper"
	"polybot/internal/persistence"
	"polybot/internal/positions"
	"polybot/internal/predictor"
	"polybot/internal/retry"
	"polybot/internal/secrets"
	"polybot/internal/snapshot"
	snapshotauth "polybot/internal/snapshot/auth"
	"polybot/internal/ticks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		os.Exit(2)
	}

	logger := logging.New(&logging.Config{
		Level:            cfg.Logging.Level,
		Output:           cfg.Logging.Output,
		JSONFormat:       cfg.Logging.JSONFormat,
		IncludeFile:      cfg.Logging.IncludeFile,
		Component:        "main",
		RotateMaxSizeMB:  cfg.Logging.RotateMaxSizeMB,
		RotateMaxAgeDays: cfg.Logging.RotateMaxAgeDays,
		RotateMaxBackups: cfg.Logging.RotateMaxBackups,
	})
	logging.SetDefault(logger)
	logger.Info("configuration loaded", "assets", cfg.Assets, "timeframes", cfg.Timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewEventBus()
	diag := diagnostics.NewTable(prometheus.NewRegistry())

	store := openStore(ctx, cfg, logger)
	defer closeStore(store)

	if _, err := secrets.NewClient(toSecretsConfig(cfg.Secrets)); err != nil {
		logger.Fatal("failed to construct secrets client", "error", err)
	}
	logger.Info("secrets client ready", "enabled", cfg.Secrets.Enabled)

	assets := parseAssets(cfg.Assets)
	timeframes := parseTimeframes(cfg.Timeframes)

	registry := market.NewRegistry(paper.NewProvider(assets, timeframes), cfg.Market.RefreshInterval, cfg.Market.StaleAfter, diag)
	go registry.Run(ctx)

	assembler := candles.NewAssembler(paper.NewHistory(1), 256, diag)
	for _, a := range assets {
		for _, tf := range timeframes {
			assembler.Warmup(ctx, domain.Key{Asset: a, Timeframe: tf})
		}
	}

	calibrator := calibration.NewCalibrator(cfg.Calibration.WarmupTarget)
	trainer := calibration.NewTrainer(cfg.Calibration.TrainingWindow, cfg.Calibration.Hysteresis)

	engine := features.NewEngine(256, bus)
	engine.CalibrationLookup = func(key domain.Key) (features.CalibrationSummary, bool) {
		status, winRate, ok := calibrator.Status(key)
		return features.CalibrationSummary{Status: status, WinRate: winRate}, ok
	}
	engine.MarketCloseLookup = func(key domain.Key) (int64, bool) {
		info, ok := registry.Lookup(key)
		if !ok {
			return 0, false
		}
		return info.MarketCloseTs, true
	}

	ensemble := predictor.NewEnsemble()
	gate := filters.NewGate(toThresholds(cfg.Filters), diag)

	positionLogger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "polybot").Logger()
	posMgr := positions.NewManager(toLimits(cfg.Positions), cfg.Positions.DailyLossLimit, bus, positionLogger)

	executor := orderexec.NewSimExecutor()

	router := ticks.NewRouter(0, 256, bus, diag)
	source := paper.NewSource("paper", assets, time.Second, 0.0005, 7)
	go router.Run(ctx, source)

	orch := &orchestrator{
		assets:     assets,
		timeframes: timeframes,
		router:     router,
		assembler:  assembler,
		engine:     engine,
		ensemble:   ensemble,
		gate:       gate,
		posMgr:     posMgr,
		calibrator: calibrator,
		trainer:    trainer,
		executor:   executor,
		registry:   registry,
		diag:       diag,
		bus:        bus,
		retrainInterval: cfg.Calibration.RetrainInterval,
		trainingWindow:  cfg.Calibration.TrainingWindow,
		log:        logging.WithComponent("orchestrator"),
	}
	orch.run(ctx)

	go persistLoop(ctx, store, posMgr, calibrator, assets, timeframes, logger)

	bot := &botAPI{
		posMgr:     posMgr,
		calibrator: calibrator,
		diag:       diag,
		orch:       orch,
		assets:     assets,
		timeframes: timeframes,
		startedAt:  time.Now(),
	}

	var authMgr *snapshotauth.Manager
	if cfg.Snapshot.AuthEnabled {
		authMgr = snapshotauth.NewManager(cfg.Snapshot.JWTSecret, cfg.Snapshot.OperatorPasswordHash, cfg.Snapshot.TokenDuration)
	}
	server := snapshot.NewServer(snapshot.Config{
		Host:           cfg.Snapshot.Host,
		Port:           cfg.Snapshot.Port,
		ProductionMode: cfg.Snapshot.ProductionMode,
		AllowedOrigins: cfg.Snapshot.AllowedOrigins,
	}, bot, bus, authMgr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Run(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		logger.Error("snapshot server stopped unexpectedly", "error", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	trades, err := bot.Flatten(shutdownCtx)
	if err != nil {
		logger.Warn("error flattening open positions during shutdown", "error", err)
	} else {
		logger.Info("flattened open positions", "count", len(trades))
	}

	logger.Info("shutdown complete")
}

// openStore builds the persistence.Store implied by cfg.Persistence:
// Postgres with a Redis hot cache when enabled, an in-process store
// otherwise (default for a fresh paper-trading checkout with no
// database configured).
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) persistence.Store {
	if !cfg.Persistence.Enabled {
		logger.Info("persistence disabled, using in-memory store")
		return persistence.NewMemoryStore()
	}

	pg, err := persistence.NewPostgresStore(ctx, persistence.Config{
		Host:     cfg.Persistence.Postgres.Host,
		Port:     cfg.Persistence.Postgres.Port,
		User:     cfg.Persistence.Postgres.User,
		Password: cfg.Persistence.Postgres.Password,
		Database: cfg.Persistence.Postgres.Database,
		SSLMode:  cfg.Persistence.Postgres.SSLMode,
	})
	if err != nil {
		logger.Fatal("failed to connect to postgres", "error", err)
	}

	cached := persistence.NewCachedStore(ctx, persistence.RedisConfig{
		Addr:     cfg.Persistence.Redis.Addr,
		Password: cfg.Persistence.Redis.Password,
		DB:       cfg.Persistence.Redis.DB,
	}, pg)
	return cached
}

func closeStore(store persistence.Store) {
	switch s := store.(type) {
	case *persistence.PostgresStore:
		s.Close()
	case *persistence.CachedStore:
		_ = s.Close()
	}
}

func toSecretsConfig(c config.SecretsConfig) secrets.Config {
	return secrets.Config{
		Enabled:    c.Enabled,
		Address:    c.Address,
		Token:      c.Token,
		MountPath:  c.MountPath,
		SecretPath: c.SecretPath,
		TLSEnabled: c.TLSEnabled,
		CACert:     c.CACert,
	}
}

func toThresholds(c config.FiltersConfig) filters.Thresholds {
	return filters.Thresholds{
		MaxSpreadBps: map[domain.Timeframe]float64{
			domain.Min15: c.MaxSpreadBpsMin15,
			domain.Hour1: c.MaxSpreadBpsHour1,
		},
		MinDepthUsdc:     c.MinDepthUsdc,
		MaxVolatility5m:  c.MaxVolatility5m,
		MinTTLSecs:       c.MinTTLSecs,
		MinConfidence:    c.MinConfidence,
		MaxDailyLossUsdc: c.MaxDailyLossUsdc,
	}
}

func toLimits(c config.PositionsConfig) positions.Limits {
	return positions.Limits{
		BaseSizeUsdc:     c.BaseSizeUsdc,
		PerTradeCapUsdc:  c.PerTradeCapUsdc,
		TotalExposureCap: c.TotalExposureCap,
		HardStopPct:      c.HardStopPct,
		TakeProfitPct:    c.TakeProfitPct,
		TrailArmPct:      c.TrailArmPct,
		TrailPct:         c.TrailPct,
		MaxHoldSecs:      c.MaxHoldSecs,
		FeeRateBps:       c.FeeRateBps,
	}
}

func parseAssets(raw []string) []domain.Asset {
	out := make([]domain.Asset, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.Asset(s))
	}
	return out
}

func parseTimeframes(raw []string) []domain.Timeframe {
	out := make([]domain.Timeframe, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.Timeframe(s))
	}
	return out
}

// persistLoop snapshots paper-trading and calibration state into store
// on a fixed cadence, retrying each write under retry.DefaultPolicy.
// Nothing in this process reads these snapshots back at startup: a
// restart begins with no open positions and fresh calibration state.
func persistLoop(ctx context.Context, store persistence.Store, posMgr *positions.Manager, calibrator *calibration.Calibrator, assets []domain.Asset, timeframes []domain.Timeframe, logger *logging.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := map[string]interface{}{
				"open_positions": posMgr.OpenPositions(),
				"closed_trades":  posMgr.ClosedTrades(),
			}
			if err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
				return store.Put(ctx, persistence.KeyPaperTradingState, "current", state)
			}); err != nil {
				logger.Warn("failed to persist paper trading state", "error", err)
			}
			for _, a := range assets {
				for _, tf := range timeframes {
					key := domain.Key{Asset: a, Timeframe: tf}
					if snap, ok := calibrator.Snapshot(key); ok {
						if err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
							return store.Put(ctx, persistence.KeyCalibratorState, key.String(), snap)
						}); err != nil {
							logger.Warn("failed to persist calibrator state", "key", key.String(), "error", err)
						}
					}
				}
			}
		}
	}
}

// orchestrator wires C1 through C7 together: it fans ticks into the
// candle assembler and the position manager's exit predicates, fans
// candle snapshots into the feature engine, and fans emitted features
// through the predictor, smart filters, order executor and position
// manager, feeding closed trades back into the calibrator, the
// ensemble's weight adjustment, and the trainer's retrain evaluation.
type orchestrator struct {
	assets     []domain.Asset
	timeframes []domain.Timeframe

	router    *ticks.Router
	assembler *candles.Assembler
	engine    *features.Engine
	ensemble  *predictor.Ensemble
	gate      *filters.Gate
	posMgr    *positions.Manager
	calibrator *calibration.Calibrator
	trainer   *calibration.Trainer
	executor  orderexec.Executor
	registry  *market.Registry
	diag      *diagnostics.Table
	bus       *events.EventBus

	retrainInterval int
	trainingWindow  int

	paused atomic.Bool

	mu          sync.Mutex
	latestMid   map[domain.Asset]float64
	pendingProbs map[string]map[string]float64
	outcomes    map[domain.Key][]calibration.Outcome

	log *logging.Logger
}

func (o *orchestrator) run(ctx context.Context) {
	o.latestMid = make(map[domain.Asset]float64)
	o.pendingProbs = make(map[string]map[string]float64)
	o.outcomes = make(map[domain.Key][]calibration.Outcome)

	go o.consumeTicks(ctx)
	go o.consumeCandles(ctx)
	go o.consumeFeatures(ctx)
}

func (o *orchestrator) consumeTicks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-o.router.Out():
			if !ok {
				return
			}
			o.mu.Lock()
			o.latestMid[t.Asset] = t.Mid
			o.mu.Unlock()

			for _, tf := range o.timeframes {
				o.assembler.OnTick(tf, t)
				o.engine.OnTick(domain.Key{Asset: t.Asset, Timeframe: tf}, 0, 0, 0, 0, false)
			}

			now := time.Now().Unix()
			for _, trade := range o.posMgr.OnTick(t.Asset, t.Mid, now) {
				o.handleClosedTrade(trade)
			}
			o.diag.SetOpenPositions(len(o.posMgr.OpenPositions()))
		}
	}
}

func (o *orchestrator) consumeCandles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-o.assembler.Out():
			if !ok {
				return
			}
			o.engine.OnCandle(c)
		}
	}
}

func (o *orchestrator) consumeFeatures(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-o.engine.Out():
			if !ok {
				return
			}
			o.handleFeatures(f, time.Now().Unix())
		}
	}
}

func (o *orchestrator) handleFeatures(f domain.Features, now int64) {
	if o.paused.Load() {
		return
	}

	key := domain.Key{Asset: f.Asset, Timeframe: f.Timeframe}
	pred, probs, err := o.ensemble.Predict(f)
	if err != nil {
		o.diag.IncError("predictor.no_prediction")
		return
	}

	info, ok := o.registry.Lookup(key)
	if !ok || o.registry.Stale(key, now) {
		return
	}

	status, _, statusOK := o.calibrator.Status(key)
	idle := !statusOK || status == domain.CalibrationIdle

	input := filters.Input{
		Prediction:       pred,
		Features:         f,
		CalibrationIdle:  idle,
		SecondsToClose:   float64(info.MarketCloseTs - now),
		TodayRealizedPnL: o.posMgr.DailyRealizedPnL(now),
	}
	pass, reason := o.gate.Evaluate(input)
	if !pass {
		o.bus.PublishPredictionRejected(string(f.Asset), string(f.Timeframe), reason)
		return
	}

	o.bus.Publish(events.Event{
		Type: events.EventPredictionMade,
		Data: map[string]interface{}{
			"asset":      string(pred.Asset),
			"timeframe":  string(pred.Timeframe),
			"direction":  string(pred.Direction),
			"confidence": pred.Confidence,
		},
	})

	o.mu.Lock()
	mid := o.latestMid[f.Asset]
	o.mu.Unlock()
	if mid <= 0 {
		return
	}

	pos, err := o.posMgr.Open(pred, info.MarketSlug, mid, info.MarketCloseTs, now)
	if err != nil {
		o.log.Warn("position open rejected", "asset", f.Asset, "error", err)
		return
	}

	o.mu.Lock()
	o.pendingProbs[pos.ID] = probs
	o.mu.Unlock()

	fill, err := o.executor.Submit(context.Background(), orderexec.Order{
		PositionID:     pos.ID,
		Asset:          pos.Asset,
		Direction:      pos.Direction,
		SizeUsdc:       pos.SizeUsdc,
		ReferencePrice: mid,
	})
	if err != nil {
		o.diag.IncError("orderexec")
		if _, closeErr := o.posMgr.Close(pos.ID, pos.EntryPrice, domain.ExitSubmitFailed, now); closeErr == nil {
			o.bus.PublishError("orderexec", "order submission failed, position marked SubmitFailed", err)
		}
		o.mu.Lock()
		delete(o.pendingProbs, pos.ID)
		o.mu.Unlock()
		return
	}
	o.log.Debug("order filled", "position_id", pos.ID, "order_id", fill.OrderID, "fill_price", fill.FillPrice)
}

func (o *orchestrator) handleClosedTrade(trade domain.Trade) {
	o.mu.Lock()
	probs, hadProbs := o.pendingProbs[trade.PositionID]
	delete(o.pendingProbs, trade.PositionID)
	o.mu.Unlock()

	if trade.ExitReason == domain.ExitSubmitFailed {
		return
	}

	o.calibrator.RecordTrade(trade)

	settledUp := trade.ExitPrice > trade.EntryPrice
	if hadProbs {
		o.ensemble.ApplyOutcome(probs, settledUp)
	}

	key := domain.Key{Asset: trade.Asset, Timeframe: trade.Timeframe}
	o.mu.Lock()
	o.outcomes[key] = append(o.outcomes[key], calibration.Outcome{SubmodelProbs: probs, SettledUp: settledUp})
	if maxLen := 2 * o.trainingWindow; maxLen > 0 && len(o.outcomes[key]) > maxLen {
		o.outcomes[key] = o.outcomes[key][len(o.outcomes[key])-maxLen:]
	}
	history := append([]calibration.Outcome(nil), o.outcomes[key]...)
	o.mu.Unlock()

	if sampleCount := o.calibrator.SampleCount(key); o.retrainInterval > 0 && sampleCount > 0 && sampleCount%o.retrainInterval == 0 {
		names := make([]string, 0, len(o.ensemble.Weights()))
		for name := range o.ensemble.Weights() {
			names = append(names, name)
		}
		decisions := o.trainer.Retrain(history, names)
		o.bus.Publish(events.Event{
			Type: events.EventRetrainCompleted,
			Data: map[string]interface{}{
				"asset":     string(key.Asset),
				"timeframe": string(key.Timeframe),
				"decisions": decisions,
			},
		})
	}
}

func (o *orchestrator) setPaused(p bool) { o.paused.Store(p) }

// botAPI implements snapshot.BotAPI by adapting the running pipeline's
// owned state into the read-only shapes the dashboard exposes.
type botAPI struct {
	posMgr     *positions.Manager
	calibrator *calibration.Calibrator
	diag       *diagnostics.Table
	orch       *orchestrator
	assets     []domain.Asset
	timeframes []domain.Timeframe
	startedAt  time.Time
}

func (b *botAPI) Status() map[string]interface{} {
	return map[string]interface{}{
		"paused":      b.orch.paused.Load(),
		"uptime_secs": time.Since(b.startedAt).Seconds(),
		"assets":      b.assets,
		"timeframes":  b.timeframes,
	}
}

func (b *botAPI) OpenPositions() []domain.Position { return b.posMgr.OpenPositions() }
func (b *botAPI) ClosedTrades() []domain.Trade     { return b.posMgr.ClosedTrades() }
func (b *botAPI) Diagnostics() map[string]int64    { return b.diag.Snapshot() }

func (b *botAPI) Calibration() map[string]domain.CalibrationSnapshot {
	out := make(map[string]domain.CalibrationSnapshot)
	for _, a := range b.assets {
		for _, tf := range b.timeframes {
			key := domain.Key{Asset: a, Timeframe: tf}
			if snap, ok := b.calibrator.Snapshot(key); ok {
				out[key.String()] = snap
			}
		}
	}
	return out
}

func (b *botAPI) Pause() error {
	b.orch.setPaused(true)
	return nil
}

func (b *botAPI) Resume() error {
	b.orch.setPaused(false)
	return nil
}

func (b *botAPI) Flatten(ctx context.Context) ([]domain.Trade, error) {
	b.orch.setPaused(true)
	b.orch.mu.Lock()
	marks := make(map[domain.Asset]float64, len(b.orch.latestMid))
	for a, mid := range b.orch.latestMid {
		marks[a] = mid
	}
	b.orch.mu.Unlock()
	trades := b.posMgr.Shutdown(marks, time.Now().Unix())
	for _, trade := range trades {
		b.orch.handleClosedTrade(trade)
	}
	return trades, nil
}
