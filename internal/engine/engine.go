// Package engine runs the trading session: it discovers the current
// UP/DOWN market, keeps a live pair book from the configured feed,
// evaluates it for opportunities, and drives authorized opportunities
// through the executor, rolling to the next market when the window
// closes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmarquez/updownbot/internal/book"
	"github.com/dmarquez/updownbot/internal/detector"
	"github.com/dmarquez/updownbot/internal/domain"
	"github.com/dmarquez/updownbot/internal/executor"
	"github.com/dmarquez/updownbot/internal/feed"
	"github.com/dmarquez/updownbot/internal/notify"
	"github.com/dmarquez/updownbot/internal/risk"
	"github.com/dmarquez/updownbot/internal/stats"
)

// MarketFinder discovers the currently trading market for a series.
// Satisfied by the Gamma client.
type MarketFinder interface {
	FindCurrentMarket(ctx context.Context, series string) (domain.Market, error)
}

// Subscriber points the push feed at the current market's tokens.
// Satisfied by the WebSocket client; nil in polling mode.
type Subscriber interface {
	Replace(ctx context.Context, assetIDs []string) error
}

// Config holds engine parameters.
type Config struct {
	// Series is the market series slug prefix, e.g. "btc-updown-15m".
	Series string

	// UseWSS selects push mode; otherwise the book is polled.
	UseWSS bool

	// PollInterval is the REST polling cadence in polling mode. Zero
	// polls continuously, limited only by request latency.
	PollInterval time.Duration

	// Debounce coalesces bursts of push events into one evaluation.
	Debounce time.Duration

	// BalanceTTL caches the venue balance between risk checks; querying
	// it on every detection would burn the rate limit for a value that
	// only changes when we trade.
	BalanceTTL time.Duration

	// BalanceSlack is the fraction of the reported balance held back
	// from risk decisions, absorbing fees and in-flight orders the
	// balance endpoint hasn't settled yet.
	BalanceSlack float64

	// DiscoveryRetry is the wait between market discovery attempts when
	// no market is live.
	DiscoveryRetry time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval < 0 {
		c.PollInterval = 0
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.BalanceTTL <= 0 {
		c.BalanceTTL = 30 * time.Second
	}
	if c.BalanceSlack <= 0 {
		c.BalanceSlack = 0.20
	}
	if c.DiscoveryRetry <= 0 {
		c.DiscoveryRetry = 5 * time.Second
	}
	return c
}

// Engine wires the collaborators into the evaluation loop.
type Engine struct {
	cfg      Config
	finder   MarketFinder
	venue    executor.Venue
	poller   *feed.Poller
	fetcher  feed.BookFetcher
	sub      Subscriber
	det      *detector.Detector
	gate     *risk.Gate
	exec     *executor.PairExecutor
	tracker  *stats.Tracker
	store    domain.AttemptStore // nil disables persistence
	bus      domain.SignalBus    // nil disables publishing
	notifier *notify.Notifier    // nil disables alerts
	logger   *slog.Logger

	events chan domain.BookEvent

	balMu     sync.Mutex
	balance   float64
	balanceAt time.Time

	now func() time.Time
}

// Deps carries the engine's collaborators. Store, Bus, and Notifier are
// optional; the loop degrades to log-only behavior without them.
type Deps struct {
	Finder    MarketFinder
	Venue     executor.Venue
	Fetcher   feed.BookFetcher
	Subscribe Subscriber
	Detector  *detector.Detector
	Gate      *risk.Gate
	Executor  *executor.PairExecutor
	Tracker   *stats.Tracker
	Store     domain.AttemptStore
	Bus       domain.SignalBus
	Notifier  *notify.Notifier
	Logger    *slog.Logger
}

// New creates an Engine.
func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		finder:   deps.Finder,
		venue:    deps.Venue,
		poller:   feed.NewPoller(deps.Fetcher),
		fetcher:  deps.Fetcher,
		sub:      deps.Subscribe,
		det:      deps.Detector,
		gate:     deps.Gate,
		exec:     deps.Executor,
		tracker:  deps.Tracker,
		store:    deps.Store,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		logger:   deps.Logger.With(slog.String("component", "engine")),
		events:   make(chan domain.BookEvent, 256),
		now:      time.Now,
	}
}

// HandleEvent ingests one decoded feed event. It never blocks the feed's
// read loop: when the engine falls behind, events are dropped and the
// book resynchronizes from the next snapshot.
func (e *Engine) HandleEvent(ev domain.BookEvent) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event buffer full, dropping update",
			slog.String("token_id", ev.TokenID))
	}
}

// Run executes market sessions until the context is canceled. Each
// session covers one market window; when the market expires the engine
// emits its summary and rolls to the successor.
func (e *Engine) Run(ctx context.Context) error {
	for {
		market, err := e.discoverMarket(ctx)
		if err != nil {
			return err
		}

		e.logger.Info("market session starting",
			slog.String("market", market.Slug),
			slog.Time("expires_at", market.ExpiresAt),
		)

		if err := e.runMarket(ctx, market); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// A session-level failure must not kill the process; log it
			// and move on to rediscovery.
			e.logger.Error("market session failed",
				slog.String("market", market.Slug),
				slog.String("error", err.Error()),
			)
		}

		summary := e.tracker.CloseMarket(market.Slug)
		e.logger.Info("market closed",
			slog.String("market", summary.MarketSlug),
			slog.Int("opportunities", summary.Opportunities),
			slog.Int("trades", summary.TradesExecuted),
			slog.Float64("invested", summary.TotalInvested),
			slog.Float64("expected_payout", summary.ExpectedPayout),
		)
		e.publish(ctx, channelAttempts, marketClosedEvent(summary))
		if e.notifier != nil {
			_ = e.notifier.Notify(ctx, notify.EventMarketClosed,
				"Market closed", summary.MarketSlug)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// discoverMarket retries discovery until a live market appears or the
// context ends.
func (e *Engine) discoverMarket(ctx context.Context) (domain.Market, error) {
	for {
		market, err := e.finder.FindCurrentMarket(ctx, e.cfg.Series)
		if err == nil {
			return market, nil
		}
		if ctx.Err() != nil {
			return domain.Market{}, ctx.Err()
		}

		e.logger.Warn("no live market, retrying",
			slog.String("series", e.cfg.Series),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return domain.Market{}, ctx.Err()
		case <-time.After(e.cfg.DiscoveryRetry):
		}
	}
}

// runMarket runs one market window to expiry.
func (e *Engine) runMarket(ctx context.Context, market domain.Market) error {
	pb := book.New(market)

	if e.cfg.UseWSS && e.sub != nil {
		return e.runPush(ctx, market, pb)
	}
	return e.runPoll(ctx, market, pb)
}

// runPoll fetches both books on a fixed cadence and evaluates each pair
// of fresh snapshots. A zero interval polls back to back.
func (e *Engine) runPoll(ctx context.Context, market domain.Market, pb *book.PairBook) error {
	var tick <-chan time.Time
	if e.cfg.PollInterval > 0 {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if market.Expired(e.now()) {
			return nil
		}

		up, down, err := e.poller.FetchPair(ctx, market)
		if err != nil {
			// Skip the cycle; a half-updated pair manufactures spreads.
			e.logger.Warn("book fetch failed, skipping cycle",
				slog.String("error", err.Error()))
			continue
		}
		if err := pb.Apply(up); err != nil {
			e.logger.Warn("apply up snapshot", slog.String("error", err.Error()))
			continue
		}
		if err := pb.Apply(down); err != nil {
			e.logger.Warn("apply down snapshot", slog.String("error", err.Error()))
			continue
		}

		e.evaluateAndTrade(ctx, market, pb)
	}
}

// runPush consumes the event stream, debouncing bursts into single
// evaluations and checking expiry on a side ticker.
func (e *Engine) runPush(ctx context.Context, market domain.Market, pb *book.PairBook) error {
	if err := e.sub.Replace(ctx, []string{market.UpToken, market.DownToken}); err != nil {
		return err
	}

	expiry := time.NewTicker(time.Second)
	defer expiry.Stop()

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-expiry.C:
			if market.Expired(e.now()) {
				return nil
			}

		case ev := <-e.events:
			if _, ok := market.Outcome(ev.TokenID); !ok {
				// Stale subscription from the previous window.
				continue
			}
			if err := pb.Apply(ev); err != nil {
				if errors.Is(err, domain.ErrStaleUpdate) {
					e.resync(ctx, pb, ev.TokenID)
				} else {
					e.logger.Warn("apply event", slog.String("error", err.Error()))
				}
				continue
			}
			if debounce == nil {
				debounce = time.After(e.cfg.Debounce)
			}

		case <-debounce:
			debounce = nil
			e.evaluateAndTrade(ctx, market, pb)
		}
	}
}

// resync replaces one token's book with a fresh REST snapshot after a
// stale delta.
func (e *Engine) resync(ctx context.Context, pb *book.PairBook, tokenID string) {
	snap, err := e.fetcher.GetBook(ctx, tokenID)
	if err != nil {
		e.logger.Warn("resync fetch failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := pb.Apply(snap); err != nil {
		e.logger.Warn("resync apply failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
}

// evaluateAndTrade runs one detection cycle and, when the risk gate
// authorizes, one execution.
func (e *Engine) evaluateAndTrade(ctx context.Context, market domain.Market, pb *book.PairBook) {
	if !pb.Ready() {
		return
	}

	opp := e.det.Evaluate(market.Slug, pb.View(domain.OutcomeUp), pb.View(domain.OutcomeDown))
	if opp == nil {
		return
	}

	e.tracker.RecordOpportunity(market.Slug)
	e.publish(ctx, channelOpportunities, opportunityEvent(*opp))
	e.logger.Info("opportunity detected",
		slog.String("market", opp.MarketSlug),
		slog.Float64("pair_cost", opp.PairCost),
		slog.Float64("profit_per_share", opp.ProfitPerShare),
		slog.Float64("size", opp.OrderSize),
	)

	balance, err := e.availableBalance(ctx)
	if err != nil {
		e.logger.Warn("balance check failed, skipping trade",
			slog.String("error", err.Error()))
		return
	}

	if err := e.gate.Authorize(opp.Notional(), balance); err != nil {
		e.logger.Info("trade rejected by risk gate",
			slog.String("reason", err.Error()),
			slog.Float64("notional", opp.Notional()),
			slog.Float64("balance", balance),
		)
		if e.notifier != nil {
			_ = e.notifier.Notify(ctx, notify.EventRiskLimit, "Trade rejected", err.Error())
		}
		return
	}

	attempt := e.exec.Execute(ctx, market, *opp, pb)

	// Orders went to the venue; start the cooldown and drop the cached
	// balance regardless of outcome.
	e.det.MarkExecuted()
	e.invalidateBalance()

	if tookPosition(attempt.Status) {
		e.gate.RecordResult(opp.Notional(), attempt.RealizedPnL)
	}
	e.tracker.RecordAttempt(attempt)

	if e.store != nil {
		if err := e.store.Insert(ctx, attempt); err != nil {
			e.logger.Error("persist attempt failed",
				slog.String("attempt_id", attempt.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(ctx, channelAttempts, attemptEvent(attempt))
	if attempt.Status == domain.AttemptUnwindFailed {
		e.publish(ctx, channelAlerts, attemptEvent(attempt))
	}
	if e.notifier != nil {
		_ = e.notifier.AlertAttempt(ctx, attempt)
	}
}

// tookPosition reports whether the attempt put capital in the market and
// therefore counts against the daily risk limits.
func tookPosition(s domain.AttemptStatus) bool {
	switch s {
	case domain.AttemptBothFilled, domain.AttemptUnwound, domain.AttemptUnwindFailed:
		return true
	}
	return false
}

// availableBalance returns the venue balance minus the safety slack,
// cached for BalanceTTL.
func (e *Engine) availableBalance(ctx context.Context) (float64, error) {
	e.balMu.Lock()
	defer e.balMu.Unlock()

	now := e.now()
	if !e.balanceAt.IsZero() && now.Sub(e.balanceAt) < e.cfg.BalanceTTL {
		return e.balance, nil
	}

	raw, err := e.venue.Balance(ctx)
	if err != nil {
		return 0, err
	}
	e.balance = raw * (1 - e.cfg.BalanceSlack)
	e.balanceAt = now
	return e.balance, nil
}

// invalidateBalance forces the next risk check to requery the venue.
func (e *Engine) invalidateBalance() {
	e.balMu.Lock()
	e.balanceAt = time.Time{}
	e.balMu.Unlock()
}
