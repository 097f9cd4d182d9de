package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// ListEvents returns events in append order. An empty marketID lists all.
func (s *MarketStore) ListEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, kind, market_id, payload, created_at FROM market_events`
	var args []any
	if marketID != "" {
		args = append(args, marketID)
		query += ` WHERE market_id = $1`
	}
	query += ` ORDER BY seq`
	query, args = paginate(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			ev      domain.Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.MarketID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

func appendEvent(ctx context.Context, q querier, ev domain.Event) error {
	const query = `
		INSERT INTO market_events (id, kind, market_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := q.Exec(ctx, query, ev.ID, string(ev.Kind), ev.MarketID, []byte(ev.Payload), ev.CreatedAt); err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.Kind, err)
	}
	return nil
}
