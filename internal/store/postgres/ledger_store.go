package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Lamports returns the native balance of account, zero when unknown.
func (s *MarketStore) Lamports(ctx context.Context, account domain.Pubkey) (uint64, error) {
	return lamports(ctx, s.pool, account, false)
}

// TokenAccount returns the token account at address.
func (s *MarketStore) TokenAccount(ctx context.Context, address domain.Pubkey) (domain.TokenAccount, error) {
	return tokenAccount(ctx, s.pool, address, false)
}

// TokenAccountsByOwner returns every token account held by owner.
func (s *MarketStore) TokenAccountsByOwner(ctx context.Context, owner domain.Pubkey) ([]domain.TokenAccount, error) {
	const query = `
		SELECT address, mint, owner, amount
		FROM token_accounts
		WHERE owner = $1
		ORDER BY address`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list token accounts %s: %w", owner.Hex(), err)
	}
	defer rows.Close()

	accts := make([]domain.TokenAccount, 0)
	for rows.Next() {
		acct, err := scanTokenAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan token account: %w", err)
		}
		accts = append(accts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list token accounts rows: %w", err)
	}
	return accts, nil
}

// lamports reads account's balance. With forUpdate the row is created at zero
// first so FOR UPDATE always has a row to lock, even for an owner the ledger
// has never seen.
func lamports(ctx context.Context, q querier, account domain.Pubkey, forUpdate bool) (uint64, error) {
	query := `SELECT lamports FROM accounts WHERE owner = $1`
	if forUpdate {
		const ensure = `
			INSERT INTO accounts (owner, lamports, updated_at)
			VALUES ($1, 0, NOW())
			ON CONFLICT (owner) DO NOTHING`
		if _, err := q.Exec(ctx, ensure, account); err != nil {
			return 0, fmt.Errorf("postgres: ensure account %s: %w", account.Hex(), err)
		}
		query += ` FOR UPDATE`
	}
	var bal decimal.Decimal
	if err := q.QueryRow(ctx, query, account).Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: lamports %s: %w", account.Hex(), err)
	}
	return toUint64(bal, "lamports")
}

func setLamports(ctx context.Context, q querier, account domain.Pubkey, amount uint64) error {
	const query = `
		INSERT INTO accounts (owner, lamports, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			lamports   = EXCLUDED.lamports,
			updated_at = NOW()`

	if _, err := q.Exec(ctx, query, account, numeric(amount)); err != nil {
		return fmt.Errorf("postgres: set lamports %s: %w", account.Hex(), err)
	}
	return nil
}

func tokenAccount(ctx context.Context, q querier, address domain.Pubkey, forUpdate bool) (domain.TokenAccount, error) {
	query := `SELECT address, mint, owner, amount FROM token_accounts WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	acct, err := scanTokenAccount(q.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TokenAccount{}, fmt.Errorf("postgres: token account %s: %w", address.Hex(), domain.ErrNotFound)
		}
		return domain.TokenAccount{}, fmt.Errorf("postgres: get token account %s: %w", address.Hex(), err)
	}
	return acct, nil
}

func putTokenAccount(ctx context.Context, q querier, acct domain.TokenAccount) error {
	const query = `
		INSERT INTO token_accounts (address, mint, owner, amount, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (address) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = NOW()`

	if _, err := q.Exec(ctx, query, acct.Address, acct.Mint, acct.Owner, numeric(acct.Amount)); err != nil {
		return fmt.Errorf("postgres: put token account %s: %w", acct.Address.Hex(), err)
	}
	return nil
}

func scanTokenAccount(row pgx.Row) (domain.TokenAccount, error) {
	var (
		acct   domain.TokenAccount
		amount decimal.Decimal
	)
	if err := row.Scan(&acct.Address, &acct.Mint, &acct.Owner, &amount); err != nil {
		return domain.TokenAccount{}, err
	}
	v, err := toUint64(amount, "amount")
	if err != nil {
		return domain.TokenAccount{}, err
	}
	acct.Amount = v
	return acct, nil
}
