package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MarketStore implements domain.MarketStore using PostgreSQL.
//
// Update opens one transaction, takes a transaction-scoped advisory lock on
// the scope and reads rows FOR UPDATE, so concurrent operations on the same
// market from any number of processes are serialized.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Update runs fn inside a single transaction. Any error rolls everything back.
func (s *MarketStore) Update(ctx context.Context, scope string, fn func(ctx context.Context, tx domain.MarketTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin %s: %w", scope, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return fmt.Errorf("postgres: lock %s: %w", scope, domain.ErrLockHeld)
		}
		return fmt.Errorf("postgres: lock %s: %w", scope, err)
	}

	if err := fn(ctx, &marketTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", scope, err)
	}
	return nil
}

const marketColumns = `
	id, address, bump, creator, value, value_range, result, status,
	resolution_date, token_a, token_b,
	token_a_amount, token_b_amount, token_price_a, token_price_b,
	yes_amount, no_amount, total_reserve,
	feed, metadata_a, metadata_b, created_at, updated_at`

// GetMarket retrieves a market by id. Returns domain.ErrNotFound when absent.
func (s *MarketStore) GetMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	return getMarket(ctx, s.pool, id, false)
}

// ListMarkets returns markets ordered by creation time.
func (s *MarketStore) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY created_at, id`
	query, args := paginate(query, nil, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets := make([]domain.MarketRecord, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

func getMarket(ctx context.Context, q querier, id string, forUpdate bool) (domain.MarketRecord, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMarket(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketRecord{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

func putMarket(ctx context.Context, q querier, m domain.MarketRecord) error {
	const query = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			creator         = EXCLUDED.creator,
			value           = EXCLUDED.value,
			value_range     = EXCLUDED.value_range,
			result          = EXCLUDED.result,
			status          = EXCLUDED.status,
			resolution_date = EXCLUDED.resolution_date,
			token_a         = EXCLUDED.token_a,
			token_b         = EXCLUDED.token_b,
			token_a_amount  = EXCLUDED.token_a_amount,
			token_b_amount  = EXCLUDED.token_b_amount,
			token_price_a   = EXCLUDED.token_price_a,
			token_price_b   = EXCLUDED.token_price_b,
			yes_amount      = EXCLUDED.yes_amount,
			no_amount       = EXCLUDED.no_amount,
			total_reserve   = EXCLUDED.total_reserve,
			feed            = EXCLUDED.feed,
			metadata_a      = EXCLUDED.metadata_a,
			metadata_b      = EXCLUDED.metadata_b,
			updated_at      = EXCLUDED.updated_at`

	_, err := q.Exec(ctx, query,
		m.ID, m.Address, int16(m.Bump), m.Creator, m.Value, int16(m.Range), m.Result, m.Status.String(),
		m.ResolutionDate, m.TokenA, m.TokenB,
		numeric(m.TokenAAmount), numeric(m.TokenBAmount), numeric(m.TokenPriceA), numeric(m.TokenPriceB),
		numeric(m.YesAmount), numeric(m.NoAmount), numeric(m.TotalReserve),
		m.Feed, m.MetadataA, m.MetadataB, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put market %s: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var (
		m                      domain.MarketRecord
		bump, valueRange       int16
		status                 string
		aAmt, bAmt, aPx, bPx   decimal.Decimal
		yesAmt, noAmt, reserve decimal.Decimal
	)
	err := row.Scan(
		&m.ID, &m.Address, &bump, &m.Creator, &m.Value, &valueRange, &m.Result, &status,
		&m.ResolutionDate, &m.TokenA, &m.TokenB,
		&aAmt, &bAmt, &aPx, &bPx,
		&yesAmt, &noAmt, &reserve,
		&m.Feed, &m.MetadataA, &m.MetadataB, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.MarketRecord{}, err
	}

	m.Bump = uint8(bump)
	m.Range = uint8(valueRange)
	if err := m.Status.UnmarshalText([]byte(status)); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("postgres: market %s: %w", m.ID, err)
	}

	for _, f := range []struct {
		dst *uint64
		src decimal.Decimal
		col string
	}{
		{&m.TokenAAmount, aAmt, "token_a_amount"},
		{&m.TokenBAmount, bAmt, "token_b_amount"},
		{&m.TokenPriceA, aPx, "token_price_a"},
		{&m.TokenPriceB, bPx, "token_price_b"},
		{&m.YesAmount, yesAmt, "yes_amount"},
		{&m.NoAmount, noAmt, "no_amount"},
		{&m.TotalReserve, reserve, "total_reserve"},
	} {
		v, err := toUint64(f.src, f.col)
		if err != nil {
			return domain.MarketRecord{}, err
		}
		*f.dst = v
	}
	return m, nil
}

// paginate appends LIMIT/OFFSET placeholders after the existing args.
func paginate(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
