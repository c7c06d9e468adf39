// Package detector evaluates a pair book for buy-both-sides arbitrage:
// an opportunity exists when the depth-aware cost of buying the order
// size on both the UP and DOWN books is strictly below the configured
// pair-cost threshold.
package detector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dmarquez/updownbot/internal/book"
	"github.com/dmarquez/updownbot/internal/domain"
)

// Config holds detection parameters.
type Config struct {
	// TargetPairCost is the strict threshold: pairCost must be < this
	// value. Ties yield no opportunity; the threshold already encodes
	// the desired margin.
	TargetPairCost float64
	// OrderSize is the fixed per-leg share count.
	OrderSize float64
	// Cooldown suppresses re-triggering on a still-attractive price for
	// this long after an executed trade.
	Cooldown time.Duration
}

// Detector is a two-state (idle/cooldown) opportunity detector. It is
// safe for use from a single evaluation loop; the mutex only protects
// the cooldown timestamp against the executor's completion callback.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	lastExecution time.Time
	now           func() time.Time
}

// New creates a Detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
		now:    time.Now,
	}
}

// Evaluate runs one detection cycle against consistent views of both
// sides. It returns nil when there is no actionable opportunity.
func (d *Detector) Evaluate(marketSlug string, up, down domain.BookView) *domain.Opportunity {
	// A crossed book means the two sides' data is inconsistent; skip the
	// scan rather than act on it.
	if up.Inverted() || down.Inverted() {
		d.logger.Warn("order book inverted, skipping scan",
			slog.Float64("up_best_ask", up.BestAsk()),
			slog.Float64("up_best_bid", up.BestBid()),
			slog.Float64("down_best_ask", down.BestAsk()),
			slog.Float64("down_best_bid", down.BestBid()),
		)
		return nil
	}

	fillUp := book.WalkBuy(up.Asks, d.cfg.OrderSize)
	fillDown := book.WalkBuy(down.Asks, d.cfg.OrderSize)
	if !fillUp.Ok || !fillDown.Ok {
		// One side cannot cover the order size; currently illiquid.
		return nil
	}

	pairCost := fillUp.Worst + fillDown.Worst
	if pairCost >= d.cfg.TargetPairCost {
		return nil
	}

	if d.InCooldown() {
		d.logger.Debug("cooldown active, suppressing trigger",
			slog.Float64("pair_cost", pairCost),
		)
		return nil
	}

	now := d.now()
	return &domain.Opportunity{
		MarketSlug:     marketSlug,
		PriceUp:        fillUp.Worst,
		PriceDown:      fillDown.Worst,
		PairCost:       pairCost,
		ProfitPerShare: 1.0 - pairCost,
		OrderSize:      d.cfg.OrderSize,
		VWAPUp:         fillUp.VWAP,
		VWAPDown:       fillDown.VWAP,
		DetectedAt:     now,
	}
}

// MarkExecuted records an executed trade and starts the cooldown window.
// Called by the engine after the executor acts on an opportunity, so
// that mere detection (e.g. one rejected by the risk gate) does not
// suppress later triggers.
func (d *Detector) MarkExecuted() {
	d.mu.Lock()
	d.lastExecution = d.now()
	d.mu.Unlock()
}

// InCooldown reports whether the cooldown interval since the last
// executed trade has not yet elapsed.
func (d *Detector) InCooldown() bool {
	if d.cfg.Cooldown <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.lastExecution.IsZero() && d.now().Sub(d.lastExecution) < d.cfg.Cooldown
}
