package domain

import (
	"context"
	"time"
)

// AttemptStore persists terminal trade attempts for statistics and audit.
type AttemptStore interface {
	Insert(ctx context.Context, attempt TradeAttempt) error
	// ListSince returns attempts resolved at or after the given time,
	// newest first.
	ListSince(ctx context.Context, since time.Time) ([]TradeAttempt, error)
	// DailyPnL returns the sum of realized P&L for attempts resolved on
	// the local calendar day containing t.
	DailyPnL(ctx context.Context, t time.Time) (float64, error)
}

// SignalBus publishes engine events (opportunities, terminal attempts,
// operator alerts) to out-of-process consumers such as a UI or log tailer.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
