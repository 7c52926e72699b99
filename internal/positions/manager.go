// Package positions implements C6, the Position Lifecycle: sizing,
// open/track/close state machine, ordered exit predicates, and
// idempotent position identifiers.
package positions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"polybot/internal/domain"
	"polybot/internal/events"
)

var (
	ErrConcurrentPosition = errors.New("positions: a position is already open for this market")
	ErrUnknownPosition    = errors.New("positions: no open position with that id")
)

// Limits bundles the configurable sizing/exit thresholds from spec.md
// §4.6 and §6.
type Limits struct {
	BaseSizeUsdc     float64
	PerTradeCapUsdc  float64
	TotalExposureCap float64
	HardStopPct      float64
	TakeProfitPct    float64
	TrailArmPct      float64
	TrailPct         float64
	MaxHoldSecs      int64
	FeeRateBps       float64
}

// DefaultLimits returns spec.md's documented configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		BaseSizeUsdc:     100,
		PerTradeCapUsdc:  500,
		TotalExposureCap: 2000,
		HardStopPct:      0.03,
		TakeProfitPct:    0.02,
		TrailArmPct:      0.003,
		TrailPct:         0.005,
		MaxHoldSecs:      3600,
		FeeRateBps:       10,
	}
}

type openKey struct {
	Asset      domain.Asset
	Timeframe  domain.Timeframe
	MarketSlug string
}

// Manager owns every open position and the process-wide daily PnL used
// by the DailyLossLimit predicate. It is the sole mutator of Position
// state, per spec.md §9.
type Manager struct {
	mu sync.Mutex

	limits Limits

	open   map[string]*domain.Position
	byKey  map[openKey]string // openKey -> position id, for ConcurrentPosition detection
	closed []domain.Trade

	dailyRealizedPnL float64
	dailyResetAt     time.Time
	dailyLossLimit   float64

	bus    *events.EventBus
	logger zerolog.Logger
}

// NewManager constructs a position Manager. logger is injected directly
// as a zerolog.Logger, mirroring internal/orders/position_tracker.go's
// own struct-field injection pattern, since this component's audit trail
// (every open/close) is exactly the kind of high-cardinality structured
// logging zerolog is for.
func NewManager(limits Limits, dailyLossLimit float64, bus *events.EventBus, logger zerolog.Logger) *Manager {
	return &Manager{
		limits:         limits,
		open:           make(map[string]*domain.Position),
		byKey:          make(map[openKey]string),
		dailyResetAt:   time.Now().UTC().Truncate(24 * time.Hour),
		dailyLossLimit: dailyLossLimit,
		bus:            bus,
		logger:         logger.With().Str("component", "positions").Logger(),
	}
}

// Open creates a new Open position for an accepted prediction, rejecting
// a duplicate open for the same (asset, timeframe, market_slug) with
// ErrConcurrentPosition, and enforcing the per-trade and total-exposure
// caps from spec.md §4.6.
func (m *Manager) Open(pred domain.Prediction, marketSlug string, entryPrice float64, marketCloseTs, now int64) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := openKey{Asset: pred.Asset, Timeframe: pred.Timeframe, MarketSlug: marketSlug}
	if _, exists := m.byKey[key]; exists {
		return nil, ErrConcurrentPosition
	}

	size := SizeUsdc(m.limits.BaseSizeUsdc, pred.Confidence, m.limits.PerTradeCapUsdc)
	if m.totalOpenSizeLocked()+size > m.limits.TotalExposureCap {
		size = m.limits.TotalExposureCap - m.totalOpenSizeLocked()
		if size <= 0 {
			return nil, fmt.Errorf("positions: total exposure cap reached")
		}
	}

	pos := &domain.Position{
		ID:            uuid.NewString(),
		Asset:         pred.Asset,
		Timeframe:     pred.Timeframe,
		MarketSlug:    marketSlug,
		Direction:     pred.Direction,
		EntryPrice:    entryPrice,
		CurrentPrice:  entryPrice,
		SizeUsdc:      size,
		OpenedAt:      now,
		MarketCloseTs: marketCloseTs,
		Confidence:    pred.Confidence,
		PeakPrice:     entryPrice,
		TroughPrice:   entryPrice,
		Status:        domain.StatusOpen,
		FeaturesTriggered: pred.FeaturesTriggered,
	}
	m.open[pos.ID] = pos
	m.byKey[key] = pos.ID

	m.logger.Info().
		Str("position_id", pos.ID).
		Str("asset", string(pos.Asset)).
		Str("direction", string(pos.Direction)).
		Float64("entry_price", pos.EntryPrice).
		Float64("size_usdc", pos.SizeUsdc).
		Msg("position opened")

	if m.bus != nil {
		m.bus.PublishPositionOpened(pos.ID, string(pos.Asset), string(pos.Direction), pos.EntryPrice, pos.SizeUsdc)
	}
	return pos, nil
}

func (m *Manager) totalOpenSizeLocked() float64 {
	var total float64
	for _, p := range m.open {
		total += p.SizeUsdc
	}
	return total
}

// OnTick updates every open position for asset with a new mid price,
// evaluating exit predicates in spec.md §4.6's documented order, and
// closes every position for which a predicate fired, using the first
// predicate that fired as its exit reason. Returns the closed trades, if
// any, produced by this tick.
func (m *Manager) OnTick(asset domain.Asset, mid float64, now int64) []domain.Trade {
	m.mu.Lock()
	var toClose []*domain.Position
	var reasons []domain.ExitReason

	m.checkDailyResetLocked(now)
	dailyLossBreached := m.dailyRealizedPnL < -m.dailyLossLimit

	for _, pos := range m.open {
		if pos.Asset != asset {
			continue
		}
		pos.CurrentPrice = mid
		if mid > pos.PeakPrice {
			pos.PeakPrice = mid
		}
		if mid < pos.TroughPrice {
			pos.TroughPrice = mid
		}
		if pos.Direction == domain.Up && mid-pos.EntryPrice >= pos.EntryPrice*m.limits.TrailArmPct {
			pos.TrailArmed = true
		}
		if pos.Direction == domain.Down && pos.EntryPrice-mid >= pos.EntryPrice*m.limits.TrailArmPct {
			pos.TrailArmed = true
		}

		reason, fired := m.evaluateExit(pos, now, dailyLossBreached)
		if fired {
			toClose = append(toClose, pos)
			reasons = append(reasons, reason)
		}
	}
	m.mu.Unlock()

	var trades []domain.Trade
	for i, pos := range toClose {
		trade, err := m.Close(pos.ID, pos.CurrentPrice, reasons[i], now)
		if err == nil {
			trades = append(trades, trade)
		}
	}
	return trades
}

// evaluateExit checks predicates in the exact order spec.md §4.6
// documents: the first to fire wins. Callers hold m.mu.
func (m *Manager) evaluateExit(pos *domain.Position, now int64, dailyLossBreached bool) (domain.ExitReason, bool) {
	if now >= pos.MarketCloseTs {
		return domain.ExitMarketExpiry, true
	}
	pnlPct := pos.UnrealizedPnLPct()
	if pnlPct <= -m.limits.HardStopPct {
		return domain.ExitHardStop, true
	}
	if pnlPct >= m.limits.TakeProfitPct {
		return domain.ExitTakeProfit, true
	}
	if pos.TrailArmed {
		if pos.Direction == domain.Up && pos.CurrentPrice <= pos.PeakPrice*(1-m.limits.TrailPct) {
			return domain.ExitTrailingStop, true
		}
		if pos.Direction == domain.Down && pos.CurrentPrice >= pos.TroughPrice*(1+m.limits.TrailPct) {
			return domain.ExitTrailingStop, true
		}
	}
	if now >= pos.OpenedAt+m.limits.MaxHoldSecs {
		return domain.ExitTimeStop, true
	}
	if dailyLossBreached {
		return domain.ExitDailyLossLimit, true
	}
	return "", false
}

// Close transitions a position Open -> Closing -> Closed, computes its
// PnL, records the resulting Trade, and updates the daily realized PnL
// tracker used by the DailyLossLimit predicate.
func (m *Manager) Close(positionID string, exitPrice float64, reason domain.ExitReason, now int64) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[positionID]
	if !ok {
		return domain.Trade{}, ErrUnknownPosition
	}
	pos.Status = domain.StatusClosing

	var fees, pnl float64
	if reason != domain.ExitSubmitFailed {
		fees = pos.SizeUsdc * m.limits.FeeRateBps / 10000
		pnl = domain.ComputePnL(pos.Direction, pos.EntryPrice, exitPrice, pos.SizeUsdc, fees)
	}

	pos.Status = domain.StatusClosed
	pos.ExitReason = reason
	pos.ExitPrice = exitPrice
	pos.ClosedAt = now

	trade := domain.Trade{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		Timeframe:  pos.Timeframe,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		SizeUsdc:   pos.SizeUsdc,
		PnLUsdc:    pnl,
		FeesUsdc:   fees,
		HoldSecs:        now - pos.OpenedAt,
		ExitReason:      reason,
		Confidence:      pos.Confidence,
		FeaturesAtEntry: pos.FeaturesTriggered,
		OpenedAt:        pos.OpenedAt,
		ClosedAt:        now,
	}

	m.closed = append(m.closed, trade)
	m.dailyRealizedPnL += pnl

	delete(m.open, pos.ID)
	delete(m.byKey, openKey{Asset: pos.Asset, Timeframe: pos.Timeframe, MarketSlug: pos.MarketSlug})

	m.logger.Info().
		Str("position_id", pos.ID).
		Str("exit_reason", string(reason)).
		Float64("exit_price", exitPrice).
		Float64("pnl_usdc", pnl).
		Msg("position closed")

	if m.bus != nil {
		m.bus.PublishPositionClosed(pos.ID, string(pos.Asset), string(reason), pos.EntryPrice, exitPrice, pnl)
	}
	return trade, nil
}

// Shutdown force-closes every open position with reason Shutdown at the
// given mark price map (keyed by asset), used during graceful shutdown.
func (m *Manager) Shutdown(marks map[domain.Asset]float64, now int64) []domain.Trade {
	m.mu.Lock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var trades []domain.Trade
	for _, id := range ids {
		m.mu.Lock()
		pos, ok := m.open[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		price, known := marks[pos.Asset]
		if !known {
			price = pos.CurrentPrice
		}
		trade, err := m.Close(id, price, domain.ExitShutdown, now)
		if err == nil {
			trades = append(trades, trade)
		}
	}
	return trades
}

// checkDailyResetLocked resets the daily realized PnL tracker on a UTC
// day rollover. Callers hold m.mu.
func (m *Manager) checkDailyResetLocked(nowUnix int64) {
	now := time.Unix(nowUnix, 0).UTC()
	today := now.Truncate(24 * time.Hour)
	if today.After(m.dailyResetAt) {
		m.dailyRealizedPnL = 0
		m.dailyResetAt = today
	}
}

// OpenPositions returns a snapshot of every currently-open position.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// ClosedTrades returns a snapshot of every trade closed so far.
func (m *Manager) ClosedTrades() []domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Trade, len(m.closed))
	copy(out, m.closed)
	return out
}

// DailyRealizedPnL returns today's realized PnL, for the Smart Filters'
// DailyLossLimit gate input.
func (m *Manager) DailyRealizedPnL(now int64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyResetLocked(now)
	return m.dailyRealizedPnL
}
