package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmarquez/updownbot/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptSelectCols = `id, market_slug, status, pair_cost, realized_pnl,
	residual_size, residual_side,
	up_token_id, up_order_id, up_price, up_size, up_status, up_filled_size,
	down_token_id, down_order_id, down_price, down_size, down_status, down_filled_size,
	started_at, resolved_at`

// Insert persists one terminal attempt.
func (s *AttemptStore) Insert(ctx context.Context, a domain.TradeAttempt) error {
	const query = `
		INSERT INTO trade_attempts (
			id, market_slug, status, pair_cost, realized_pnl,
			residual_size, residual_side,
			up_token_id, up_order_id, up_price, up_size, up_status, up_filled_size,
			down_token_id, down_order_id, down_price, down_size, down_status, down_filled_size,
			started_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19,
			$20, $21
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.MarketSlug, string(a.Status), a.PairCost, a.RealizedPnL,
		a.ResidualSize, string(a.ResidualSide),
		a.Up.TokenID, a.Up.OrderID, a.Up.Price, a.Up.Size, string(a.Up.Status), a.Up.FilledSize,
		a.Down.TokenID, a.Down.OrderID, a.Down.Price, a.Down.Size, string(a.Down.Status), a.Down.FilledSize,
		a.StartedAt, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt %s: %w", a.ID, err)
	}
	return nil
}

// ListSince returns attempts resolved at or after since, newest first.
func (s *AttemptStore) ListSince(ctx context.Context, since time.Time) ([]domain.TradeAttempt, error) {
	query := `SELECT ` + attemptSelectCols + `
		FROM trade_attempts
		WHERE resolved_at >= $1
		ORDER BY resolved_at DESC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	defer rows.Close()

	return scanAttemptRows(rows)
}

// DailyPnL sums realized P&L for attempts resolved on the local calendar
// day containing t.
func (s *AttemptStore) DailyPnL(ctx context.Context, t time.Time) (float64, error) {
	year, month, day := t.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var pnl *float64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(realized_pnl) FROM trade_attempts
		 WHERE resolved_at >= $1 AND resolved_at < $2`,
		dayStart, dayEnd,
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("postgres: daily pnl: %w", err)
	}
	if pnl == nil {
		return 0, nil
	}
	return *pnl, nil
}

func scanAttemptRows(rows pgx.Rows) ([]domain.TradeAttempt, error) {
	var attempts []domain.TradeAttempt
	for rows.Next() {
		var (
			a                    domain.TradeAttempt
			status, residualSide string
			upStatus, downStatus string
		)
		if err := rows.Scan(
			&a.ID, &a.MarketSlug, &status, &a.PairCost, &a.RealizedPnL,
			&a.ResidualSize, &residualSide,
			&a.Up.TokenID, &a.Up.OrderID, &a.Up.Price, &a.Up.Size, &upStatus, &a.Up.FilledSize,
			&a.Down.TokenID, &a.Down.OrderID, &a.Down.Price, &a.Down.Size, &downStatus, &a.Down.FilledSize,
			&a.StartedAt, &a.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		a.Status = domain.AttemptStatus(status)
		a.ResidualSide = domain.Outcome(residualSide)
		a.Up.Outcome = domain.OutcomeUp
		a.Up.Side = domain.OrderSideBuy
		a.Up.Status = domain.OrderStatus(upStatus)
		a.Down.Outcome = domain.OutcomeDown
		a.Down.Side = domain.OrderSideBuy
		a.Down.Status = domain.OrderStatus(downStatus)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
