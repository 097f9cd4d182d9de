package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketTx is the read/write view handed to a MarketStore.Update callback.
// Writes are staged and only become visible if the callback returns nil.
type MarketTx interface {
	// GetMarket returns ErrNotFound when the market does not exist.
	GetMarket(ctx context.Context, id string) (MarketRecord, error)
	PutMarket(ctx context.Context, m MarketRecord) error

	// Lamports returns the native balance of account, zero when unknown.
	Lamports(ctx context.Context, account Pubkey) (uint64, error)
	SetLamports(ctx context.Context, account Pubkey, amount uint64) error

	// TokenAccount returns ErrNotFound when the address was never credited.
	TokenAccount(ctx context.Context, address Pubkey) (TokenAccount, error)
	PutTokenAccount(ctx context.Context, acct TokenAccount) error

	AppendEvent(ctx context.Context, ev Event) error
}

// MarketStore persists market records, the native ledger, claim-token
// balances and the event log.
type MarketStore interface {
	// Update runs fn as one all-or-nothing unit. Calls sharing a scope are
	// serialized; any error returned by fn discards every staged write.
	Update(ctx context.Context, scope string, fn func(ctx context.Context, tx MarketTx) error) error

	GetMarket(ctx context.Context, id string) (MarketRecord, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]MarketRecord, error)
	ListEvents(ctx context.Context, marketID string, opts ListOpts) ([]Event, error)
	Lamports(ctx context.Context, account Pubkey) (uint64, error)
	TokenAccount(ctx context.Context, address Pubkey) (TokenAccount, error)
	TokenAccountsByOwner(ctx context.Context, owner Pubkey) ([]TokenAccount, error)
}
