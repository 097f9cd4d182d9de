// Package memory implements the domain store and lock interfaces in process.
// It backs single-node deployments and every engine test.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Store keeps markets, native balances, token accounts and events in maps.
// All Update calls are serialized on one mutex, which is stricter than the
// per-scope guarantee MarketStore requires.
type Store struct {
	mu       sync.RWMutex
	markets  map[string]domain.MarketRecord
	lamports map[domain.Pubkey]uint64
	tokens   map[domain.Pubkey]domain.TokenAccount
	events   []domain.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		markets:  make(map[string]domain.MarketRecord),
		lamports: make(map[domain.Pubkey]uint64),
		tokens:   make(map[domain.Pubkey]domain.TokenAccount),
	}
}

// Update runs fn against a staged overlay and merges it only when fn
// returns nil.
func (s *Store) Update(ctx context.Context, scope string, fn func(ctx context.Context, tx domain.MarketTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: update %s: %w", scope, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{
		base:     s,
		markets:  make(map[string]domain.MarketRecord),
		lamports: make(map[domain.Pubkey]uint64),
		tokens:   make(map[domain.Pubkey]domain.TokenAccount),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, m := range tx.markets {
		s.markets[id] = m
	}
	for k, v := range tx.lamports {
		s.lamports[k] = v
	}
	for k, v := range tx.tokens {
		s.tokens[k] = v
	}
	s.events = append(s.events, tx.events...)
	return nil
}

// GetMarket returns the committed record for id.
func (s *Store) GetMarket(_ context.Context, id string) (domain.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.MarketRecord{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// ListMarkets returns markets ordered by creation time, then id.
func (s *Store) ListMarkets(_ context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	s.mu.RLock()
	out := make([]domain.MarketRecord, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

// ListEvents returns events in append order. An empty marketID lists all.
func (s *Store) ListEvents(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0)
	for _, ev := range s.events {
		if marketID == "" || ev.MarketID == marketID {
			out = append(out, ev)
		}
	}
	return page(out, opts), nil
}

// Lamports returns the committed native balance of account.
func (s *Store) Lamports(_ context.Context, account domain.Pubkey) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lamports[account], nil
}

// TokenAccount returns the committed token account at address.
func (s *Store) TokenAccount(_ context.Context, address domain.Pubkey) (domain.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.tokens[address]
	if !ok {
		return domain.TokenAccount{}, fmt.Errorf("memory: token account %s: %w", address.Hex(), domain.ErrNotFound)
	}
	return acct, nil
}

// TokenAccountsByOwner returns owner's token accounts ordered by address.
func (s *Store) TokenAccountsByOwner(_ context.Context, owner domain.Pubkey) ([]domain.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TokenAccount, 0)
	for _, acct := range s.tokens {
		if acct.Owner == owner {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// txn is the staged view handed to Update callbacks. Reads fall through to
// the committed maps; the caller already holds Store.mu.
type txn struct {
	base     *Store
	markets  map[string]domain.MarketRecord
	lamports map[domain.Pubkey]uint64
	tokens   map[domain.Pubkey]domain.TokenAccount
	events   []domain.Event
}

func (t *txn) GetMarket(_ context.Context, id string) (domain.MarketRecord, error) {
	if m, ok := t.markets[id]; ok {
		return m, nil
	}
	if m, ok := t.base.markets[id]; ok {
		return m, nil
	}
	return domain.MarketRecord{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
}

func (t *txn) PutMarket(_ context.Context, m domain.MarketRecord) error {
	t.markets[m.ID] = m
	return nil
}

func (t *txn) Lamports(_ context.Context, account domain.Pubkey) (uint64, error) {
	if v, ok := t.lamports[account]; ok {
		return v, nil
	}
	return t.base.lamports[account], nil
}

func (t *txn) SetLamports(_ context.Context, account domain.Pubkey, amount uint64) error {
	t.lamports[account] = amount
	return nil
}

func (t *txn) TokenAccount(_ context.Context, address domain.Pubkey) (domain.TokenAccount, error) {
	if acct, ok := t.tokens[address]; ok {
		return acct, nil
	}
	if acct, ok := t.base.tokens[address]; ok {
		return acct, nil
	}
	return domain.TokenAccount{}, fmt.Errorf("memory: token account %s: %w", address.Hex(), domain.ErrNotFound)
}

func (t *txn) PutTokenAccount(_ context.Context, acct domain.TokenAccount) error {
	t.tokens[acct.Address] = acct
	return nil
}

func (t *txn) AppendEvent(_ context.Context, ev domain.Event) error {
	t.events = append(t.events, ev)
	return nil
}

// Compile-time interface checks.
var (
	_ domain.MarketStore = (*Store)(nil)
	_ domain.MarketTx    = (*txn)(nil)
)
