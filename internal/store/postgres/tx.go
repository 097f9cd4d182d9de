package postgres

import (
	"context"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// marketTx is the transactional view handed to Update callbacks. Every read
// locks the row it returns until the transaction ends.
type marketTx struct {
	q querier
}

func (t *marketTx) GetMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	return getMarket(ctx, t.q, id, true)
}

func (t *marketTx) PutMarket(ctx context.Context, m domain.MarketRecord) error {
	return putMarket(ctx, t.q, m)
}

func (t *marketTx) Lamports(ctx context.Context, account domain.Pubkey) (uint64, error) {
	return lamports(ctx, t.q, account, true)
}

func (t *marketTx) SetLamports(ctx context.Context, account domain.Pubkey, amount uint64) error {
	return setLamports(ctx, t.q, account, amount)
}

func (t *marketTx) TokenAccount(ctx context.Context, address domain.Pubkey) (domain.TokenAccount, error) {
	return tokenAccount(ctx, t.q, address, true)
}

func (t *marketTx) PutTokenAccount(ctx context.Context, acct domain.TokenAccount) error {
	return putTokenAccount(ctx, t.q, acct)
}

func (t *marketTx) AppendEvent(ctx context.Context, ev domain.Event) error {
	return appendEvent(ctx, t.q, ev)
}

var _ domain.MarketTx = (*marketTx)(nil)
