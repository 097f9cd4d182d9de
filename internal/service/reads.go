package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/market"
)

// Page size bounds for list reads.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

func clampPage(opts domain.ListOpts) domain.ListOpts {
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageSize
	}
	if opts.Limit > MaxPageSize {
		opts.Limit = MaxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

// GetMarket returns a market, checking the cache first and back-filling it
// from the store on a miss.
func (e *Engine) GetMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	if err := market.ValidateID(id); err != nil {
		return domain.MarketRecord{}, err
	}
	if e.cache == nil {
		return e.loadMarket(ctx, id)
	}

	m, err := e.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		e.logger.WarnContext(ctx, "cache get failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return e.fillMarket(ctx, id)
}

func (e *Engine) loadMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	m, err := e.store.GetMarket(ctx, id)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("service: get market %s: %w", id, err)
	}
	return m, nil
}

// fillMarket reads the market and caches it while holding the market lock.
// Writers invalidate under the same lock, so a back-fill cannot land after a
// newer commit's invalidation. When the lock is busy the read is served from
// the store and nothing is cached.
func (e *Engine) fillMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	unlock, err := e.locks.Acquire(ctx, marketLockKey(id), e.cfg.LockTTL)
	if err != nil {
		e.logger.DebugContext(ctx, "cache fill skipped",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		return e.loadMarket(ctx, id)
	}
	defer unlock()

	m, err := e.loadMarket(ctx, id)
	if err != nil {
		return domain.MarketRecord{}, err
	}
	if err := e.cache.Set(ctx, m); err != nil {
		e.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets oldest first.
func (e *Engine) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	markets, err := e.store.ListMarkets(ctx, clampPage(opts))
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	return markets, nil
}

// ListEvents returns a market's event log in commit order.
func (e *Engine) ListEvents(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	if _, err := e.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	events, err := e.store.ListEvents(ctx, marketID, clampPage(opts))
	if err != nil {
		return nil, fmt.Errorf("service: list events %s: %w", marketID, err)
	}
	return events, nil
}

// GetAccount returns owner's native balance and claim-token holdings.
func (e *Engine) GetAccount(ctx context.Context, owner domain.Pubkey) (domain.Account, error) {
	lamports, err := e.store.Lamports(ctx, owner)
	if err != nil {
		return domain.Account{}, fmt.Errorf("service: account %s: %w", owner.Hex(), err)
	}
	tokens, err := e.store.TokenAccountsByOwner(ctx, owner)
	if err != nil {
		return domain.Account{}, fmt.Errorf("service: account %s: tokens: %w", owner.Hex(), err)
	}
	if tokens == nil {
		tokens = []domain.TokenAccount{}
	}
	return domain.Account{Owner: owner, Lamports: lamports, Tokens: tokens}, nil
}
