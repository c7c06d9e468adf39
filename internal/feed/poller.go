package feed

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmarquez/updownbot/internal/domain"
)

// BookFetcher retrieves a full book snapshot for one token over REST.
// Satisfied by the CLOB client and the dry-run simulator.
type BookFetcher interface {
	GetBook(ctx context.Context, tokenID string) (domain.BookEvent, error)
}

// Poller fetches both sides of a market concurrently for the
// polling-driven evaluation mode. Fetching UP and DOWN in parallel keeps
// the two snapshots close in time; sequential fetches would let one side
// go stale against the other and manufacture phantom spreads.
type Poller struct {
	fetcher BookFetcher
}

// NewPoller creates a Poller over the given fetcher.
func NewPoller(fetcher BookFetcher) *Poller {
	return &Poller{fetcher: fetcher}
}

// FetchPair returns fresh snapshots for the market's UP and DOWN tokens.
// Either side failing fails the whole fetch; the engine skips the cycle
// rather than evaluate a half-updated pair.
func (p *Poller) FetchPair(ctx context.Context, market domain.Market) (up, down domain.BookEvent, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ev, err := p.fetcher.GetBook(gctx, market.UpToken)
		if err != nil {
			return fmt.Errorf("fetch %s book: %w", domain.OutcomeUp, err)
		}
		up = ev
		return nil
	})
	g.Go(func() error {
		ev, err := p.fetcher.GetBook(gctx, market.DownToken)
		if err != nil {
			return fmt.Errorf("fetch %s book: %w", domain.OutcomeDown, err)
		}
		down = ev
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.BookEvent{}, domain.BookEvent{}, err
	}
	return up, down, nil
}
