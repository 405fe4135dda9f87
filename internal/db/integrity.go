package db

import (
	"context"
	"fmt"
)

// IntegrityReport summarises the startup reconciliation between the store's
// tables.
type IntegrityReport struct {
	OrphanOrdersCancelled int
	PhantomPositions      []string
}

// CheckIntegrity runs the startup consistency sweep: protective orders that
// lost their position are cancelled, and store positions with no exchange
// counterpart are reported for operator reconciliation (the exchange is
// authoritative for existence).
func (s *Store) CheckIntegrity(ctx context.Context, exchangePositions map[string]bool) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	tag, err := s.pool.Exec(ctx, `
		UPDATE price_orders po SET status = 'cancelled', updated_at = NOW()
		WHERE po.status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM positions p
			WHERE p.symbol = po.symbol AND p.side = po.side
		  )`)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel orphan price orders: %w", err)
	}
	report.OrphanOrdersCancelled = int(tag.RowsAffected())
	if report.OrphanOrdersCancelled > 0 {
		s.logger.Warn().
			Int("count", report.OrphanOrdersCancelled).
			Msg("Cancelled orphan price orders with no open position")
	}

	positions, err := s.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if !exchangePositions[p.Symbol] {
			report.PhantomPositions = append(report.PhantomPositions, p.Symbol)
			s.logger.Warn().
				Str("symbol", p.Symbol).
				Str("side", string(p.Side)).
				Msg("Phantom position: store row without exchange counterpart")
		}
	}

	return report, nil
}
