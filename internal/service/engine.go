// Package service orchestrates market operations: it takes the per-market
// lock, runs the pure rules from package market inside one store
// transaction and, once committed, fans events out to subscribers,
// notifiers, the cache and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/market"
	"github.com/alanyoungcy/binarymarket/internal/metrics"
)

// DefaultLockTTL bounds how long a crashed holder can block a market.
const DefaultLockTTL = 10 * time.Second

// Operation names used for metrics and logs.
const (
	OpConfigureMarket = "configure_market"
	OpActivate        = "activate"
	OpPlaceBet        = "place_bet"
	OpAddLiquidity    = "add_liquidity"
	OpAdminResolve    = "admin_resolve"
	OpWithdraw        = "withdraw"
	OpDeposit         = "deposit"
)

// EngineConfig holds the market rules that are set per deployment.
type EngineConfig struct {
	Global domain.GlobalConfig
	// RentFloor is the escrow balance that withdrawals never dig into. The
	// creator funds it when the market is first configured.
	RentFloor     uint64
	BettingCutoff time.Duration
	// StrictResolution requires an Active market for AdminResolve and makes
	// a second resolution fail.
	StrictResolution bool
	// BurnOnClaim zeroes the claimant's winning balance after a payout so it
	// cannot be claimed twice.
	BurnOnClaim bool
	// GateMint, when non-zero, requires market creators to hold at least
	// GateMinimum of that token.
	GateMint    domain.Pubkey
	GateMinimum uint64
	LockTTL     time.Duration
	// AutoArchive archives a market right after it resolves.
	AutoArchive bool
}

// EventNotifier receives committed events for operator alerts.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// MarketArchiver snapshots a resolved market to object storage.
type MarketArchiver interface {
	ArchiveMarket(ctx context.Context, marketID string) (ArchiveResult, error)
}

// EngineDeps are the collaborators of an Engine. Store, Locks and Logger are
// required; the rest may be nil.
type EngineDeps struct {
	Store     domain.MarketStore
	Locks     domain.LockManager
	Cache     domain.MarketCache
	Publisher domain.EventPublisher
	Notifier  EventNotifier
	Archiver  MarketArchiver
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine runs every market operation as one atomic unit per market.
type Engine struct {
	cfg       EngineConfig
	store     domain.MarketStore
	locks     domain.LockManager
	cache     domain.MarketCache
	publisher domain.EventPublisher
	notifier  EventNotifier
	archiver  MarketArchiver
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an Engine. Zero BettingCutoff and LockTTL take their
// defaults.
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	if cfg.BettingCutoff == 0 {
		cfg.BettingCutoff = market.BettingCutoff
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		locks:     deps.Locks,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		archiver:  deps.Archiver,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With(slog.String("component", "engine")),
		now:       now,
	}
}

// Config returns the rules the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// BetReceipt is the result of an accepted bet.
type BetReceipt struct {
	Market       domain.MarketRecord `json:"market"`
	Stake        uint64              `json:"stake"`
	TokenAccount domain.TokenAccount `json:"token_account"`
}

// Payout is the result of a successful withdrawal.
type Payout struct {
	Market       domain.MarketRecord `json:"market"`
	Amount       uint64              `json:"amount"`
	Withdrawable uint64              `json:"withdrawable"`
	TotalWinning uint64              `json:"total_winning"`
	TokenAccount domain.TokenAccount `json:"token_account"`
}

func marketLockKey(id string) string {
	return "market:" + id
}

func accountLockKey(owner domain.Pubkey) string {
	return "account:" + owner.Hex()
}

// ConfigureMarket creates the market on first call, funding the rent floor
// from the caller, or reconfigures it while it is still in Prepare.
func (e *Engine) ConfigureMarket(ctx context.Context, caller domain.Pubkey, params domain.MarketParams) (domain.MarketRecord, error) {
	if err := market.ValidateID(params.MarketID); err != nil {
		e.metrics.ObserveOperation(OpConfigureMarket, err)
		return domain.MarketRecord{}, err
	}

	var out domain.MarketRecord
	err := e.execute(ctx, OpConfigureMarket, marketLockKey(params.MarketID), params.MarketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			m, err := tx.GetMarket(ctx, params.MarketID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				if m, err = e.createMarket(ctx, tx, caller, params.MarketID, b.at); err != nil {
					return err
				}
			case err != nil:
				return err
			case m.Creator != caller:
				return fmt.Errorf("configure %s: %w", m.ID, domain.ErrInvalidCreator)
			}

			mints := market.Mints{
				Yes: crypto.MintAddress(m.Address, true),
				No:  crypto.MintAddress(m.Address, false),
			}
			if m, err = market.Configure(m, params, caller, mints); err != nil {
				return err
			}
			m.UpdatedAt = b.at
			if err := tx.PutMarket(ctx, m); err != nil {
				return err
			}
			out = m
			return b.emit(ctx, tx, domain.EventMarketConfigured, domain.ConfiguredEvent{
				Market:         m.Address,
				Creator:        caller,
				TokenAmount:    params.TokenAmount,
				TokenPrice:     params.TokenPrice,
				ResolutionDate: params.Date,
			})
		})
	if err != nil {
		return domain.MarketRecord{}, err
	}

	e.logger.InfoContext(ctx, "market configured",
		slog.String("market_id", out.ID),
		slog.String("creator", caller.Hex()),
		slog.Uint64("token_amount", params.TokenAmount),
		slog.Uint64("token_price", params.TokenPrice),
		slog.Time("resolution", out.Resolution()),
	)
	return out, nil
}

// createMarket builds a fresh Prepare record and moves the rent floor from
// the creator into the escrow.
func (e *Engine) createMarket(ctx context.Context, tx domain.MarketTx, creator domain.Pubkey, id string, at time.Time) (domain.MarketRecord, error) {
	if err := e.checkGate(ctx, tx, creator); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("configure %s: %w", id, err)
	}

	addr, bump := crypto.MarketAddress(id)
	if err := e.move(ctx, tx, creator, addr, e.cfg.RentFloor); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("configure %s: rent floor: %w", id, err)
	}
	return domain.MarketRecord{
		ID:        id,
		Address:   addr,
		Bump:      bump,
		Status:    domain.MarketStatusPrepare,
		CreatedAt: at,
	}, nil
}

func (e *Engine) checkGate(ctx context.Context, tx domain.MarketTx, creator domain.Pubkey) error {
	if e.cfg.GateMint == (domain.Pubkey{}) {
		return nil
	}
	acct, err := tx.TokenAccount(ctx, crypto.TokenAccountAddress(e.cfg.GateMint, creator))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if acct.Amount < e.cfg.GateMinimum {
		return fmt.Errorf("%w: holds %d of gate token, needs %d", domain.ErrInvalidCreator, acct.Amount, e.cfg.GateMinimum)
	}
	return nil
}

// move transfers lamports between two ledger accounts as one checked pair.
func (e *Engine) move(ctx context.Context, tx domain.MarketTx, from, to domain.Pubkey, amount uint64) error {
	fromBal, err := tx.Lamports(ctx, from)
	if err != nil {
		return err
	}
	toBal, err := tx.Lamports(ctx, to)
	if err != nil {
		return err
	}
	fromBal, toBal, err = market.Transfer(fromBal, toBal, amount)
	if err != nil {
		return err
	}
	if err := tx.SetLamports(ctx, from, fromBal); err != nil {
		return err
	}
	return tx.SetLamports(ctx, to, toBal)
}

// Activate opens a Prepare market for betting.
func (e *Engine) Activate(ctx context.Context, marketID string) (domain.MarketRecord, error) {
	var out domain.MarketRecord
	err := e.execute(ctx, OpActivate, marketLockKey(marketID), marketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			m, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return err
			}
			if m, err = market.Activate(m); err != nil {
				return err
			}
			m.UpdatedAt = b.at
			if err := tx.PutMarket(ctx, m); err != nil {
				return err
			}
			out = m
			return b.emit(ctx, tx, domain.EventMarketActivated, domain.ActivatedEvent{Market: m.Address})
		})
	if err != nil {
		return domain.MarketRecord{}, err
	}

	e.logger.InfoContext(ctx, "market activated", slog.String("market_id", marketID))
	return out, nil
}

// PlaceBet buys amount claim tokens of one side. The bettor pays amount times
// the side's price before the trade; the tokens land in the bettor's
// associated token account.
func (e *Engine) PlaceBet(ctx context.Context, caller domain.Pubkey, marketID string, amount uint64, isYes bool) (BetReceipt, error) {
	var out BetReceipt
	err := e.execute(ctx, OpPlaceBet, marketLockKey(marketID), marketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			m, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return err
			}
			if err := market.CheckBet(m, b.at, e.cfg.BettingCutoff); err != nil {
				return err
			}
			m, quote, err := market.ApplyBet(m, amount, isYes)
			if err != nil {
				return err
			}
			if m, err = market.RecordBet(m, isYes, quote.Stake); err != nil {
				return err
			}
			if err := e.move(ctx, tx, caller, m.Address, quote.Stake); err != nil {
				return fmt.Errorf("bet %s: stake: %w", marketID, err)
			}

			mint := m.MintFor(isYes)
			acct, err := e.tokenAccountFor(ctx, tx, mint, caller)
			if err != nil {
				return err
			}
			if acct.Amount, err = market.Credit(acct.Amount, amount); err != nil {
				return fmt.Errorf("bet %s: mint: %w", marketID, err)
			}
			if err := tx.PutTokenAccount(ctx, acct); err != nil {
				return err
			}

			m.UpdatedAt = b.at
			if err := tx.PutMarket(ctx, m); err != nil {
				return err
			}
			out = BetReceipt{Market: m, Stake: quote.Stake, TokenAccount: acct}
			return b.emit(ctx, tx, domain.EventBetPlaced, domain.BetEvent{
				Market:       m.Address,
				User:         caller,
				Amount:       amount,
				IsYes:        isYes,
				Stake:        quote.Stake,
				TokenAAmount: m.TokenAAmount,
				TokenBAmount: m.TokenBAmount,
				TokenPriceA:  m.TokenPriceA,
				TokenPriceB:  m.TokenPriceB,
			})
		})
	if err != nil {
		return BetReceipt{}, err
	}

	e.metrics.AddBetStake(out.Stake)
	e.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", marketID),
		slog.String("user", caller.Hex()),
		slog.Bool("is_yes", isYes),
		slog.Uint64("amount", amount),
		slog.Uint64("stake", out.Stake),
		slog.String("stake_sol", domain.SOL(out.Stake).String()),
	)
	return out, nil
}

// tokenAccountFor loads owner's associated account for mint, or a zero one.
func (e *Engine) tokenAccountFor(ctx context.Context, tx domain.MarketTx, mint, owner domain.Pubkey) (domain.TokenAccount, error) {
	addr := crypto.TokenAccountAddress(mint, owner)
	acct, err := tx.TokenAccount(ctx, addr)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TokenAccount{Address: addr, Mint: mint, Owner: owner}, nil
	}
	return acct, err
}

// AddLiquidity moves lamports from caller into the escrow and counts them in
// the market's reserve tracker.
func (e *Engine) AddLiquidity(ctx context.Context, caller domain.Pubkey, marketID string, lamports uint64) (domain.MarketRecord, error) {
	var out domain.MarketRecord
	err := e.execute(ctx, OpAddLiquidity, marketLockKey(marketID), marketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			if lamports == 0 {
				return fmt.Errorf("liquidity %s: %w: lamports must be positive", marketID, domain.ErrInvalidFundAmount)
			}
			m, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return err
			}
			if err := market.CheckLiquidity(m); err != nil {
				return err
			}
			if m, err = market.AddReserve(m, lamports); err != nil {
				return err
			}
			if err := e.move(ctx, tx, caller, m.Address, lamports); err != nil {
				return fmt.Errorf("liquidity %s: %w", marketID, err)
			}
			m.UpdatedAt = b.at
			if err := tx.PutMarket(ctx, m); err != nil {
				return err
			}
			out = m
			return b.emit(ctx, tx, domain.EventLiquidityAdded, domain.LiquidityEvent{
				Market:   m.Address,
				Provider: caller,
				Lamports: lamports,
			})
		})
	if err != nil {
		return domain.MarketRecord{}, err
	}

	e.logger.InfoContext(ctx, "liquidity added",
		slog.String("market_id", marketID),
		slog.String("provider", caller.Hex()),
		slog.String("sol", domain.SOL(lamports).String()),
	)
	return out, nil
}

// AdminResolve records the outcome. Only the configured admin may call it.
func (e *Engine) AdminResolve(ctx context.Context, caller domain.Pubkey, marketID string, outcome bool) (domain.MarketRecord, error) {
	var out domain.MarketRecord
	err := e.execute(ctx, OpAdminResolve, marketLockKey(marketID), marketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			if !e.cfg.Global.IsAdmin(caller) {
				return fmt.Errorf("resolve %s: %w", marketID, domain.ErrInvalidAdmin)
			}
			m, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return err
			}
			if m, err = market.Resolve(m, outcome, e.cfg.StrictResolution); err != nil {
				return err
			}
			m.UpdatedAt = b.at
			if err := tx.PutMarket(ctx, m); err != nil {
				return err
			}
			out = m
			return b.emit(ctx, tx, domain.EventMarketResolved, domain.ResolutionEvent{
				Market:  m.Address,
				Admin:   caller,
				Outcome: outcome,
			})
		})
	if err != nil {
		return domain.MarketRecord{}, err
	}

	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.Bool("outcome", outcome),
	)

	if e.cfg.AutoArchive && e.archiver != nil {
		if _, err := e.archiver.ArchiveMarket(ctx, marketID); err != nil {
			e.logger.WarnContext(ctx, "auto archive failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

// Withdraw pays the holder of tokenAccount their pro-rata share of the
// escrow above the rent floor.
func (e *Engine) Withdraw(ctx context.Context, caller domain.Pubkey, marketID string, tokenAccount domain.Pubkey) (Payout, error) {
	var out Payout
	err := e.execute(ctx, OpWithdraw, marketLockKey(marketID), marketID,
		func(ctx context.Context, tx domain.MarketTx, b *batch) error {
			m, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return err
			}
			if m.Status != domain.MarketStatusResolved {
				return fmt.Errorf("withdraw %s: %w (status %s)", marketID, domain.ErrMarketNotResolved, m.Status)
			}

			acct, err := tx.TokenAccount(ctx, tokenAccount)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("withdraw %s: %w: %s does not exist", marketID, domain.ErrInvalidTokenAccount, tokenAccount.Hex())
			}
			if err != nil {
				return err
			}
			if acct.Owner != caller {
				return fmt.Errorf("withdraw %s: %w: not owned by caller", marketID, domain.ErrInvalidTokenAccount)
			}

			escrow, err := tx.Lamports(ctx, m.Address)
			if err != nil {
				return err
			}
			claim, err := market.ComputeShare(m, escrow, e.cfg.RentFloor, acct)
			if err != nil {
				return err
			}
			if err := e.move(ctx, tx, m.Address, caller, claim.Share); err != nil {
				return fmt.Errorf("withdraw %s: %w", marketID, err)
			}
			if e.cfg.BurnOnClaim {
				acct.Amount = 0
				if err := tx.PutTokenAccount(ctx, acct); err != nil {
					return err
				}
			}

			out = Payout{
				Market:       m,
				Amount:       claim.Share,
				Withdrawable: claim.Withdrawable,
				TotalWinning: claim.TotalWinning,
				TokenAccount: acct,
			}
			return b.emit(ctx, tx, domain.EventWithdrawal, domain.WithdrawEvent{
				Market:       m.Address,
				User:         caller,
				Amount:       claim.Share,
				TokenBalance: claim.Balance,
			})
		})
	if err != nil {
		return Payout{}, err
	}

	e.metrics.AddPayout(out.Amount)
	e.logger.InfoContext(ctx, "withdrawal paid",
		slog.String("market_id", marketID),
		slog.String("user", caller.Hex()),
		slog.Uint64("lamports", out.Amount),
		slog.String("sol", domain.SOL(out.Amount).String()),
	)
	return out, nil
}

// Deposit credits owner's native balance. It is the ledger's funding entry
// point; no market is involved.
func (e *Engine) Deposit(ctx context.Context, owner domain.Pubkey, lamports uint64) (uint64, error) {
	var balance uint64
	err := e.execute(ctx, OpDeposit, accountLockKey(owner), "",
		func(ctx context.Context, tx domain.MarketTx, _ *batch) error {
			if owner == (domain.Pubkey{}) {
				return fmt.Errorf("deposit: %w: owner is required", domain.ErrInvalidInput)
			}
			if lamports == 0 {
				return fmt.Errorf("deposit: %w: lamports must be positive", domain.ErrInvalidFundAmount)
			}
			bal, err := tx.Lamports(ctx, owner)
			if err != nil {
				return err
			}
			if balance, err = market.Credit(bal, lamports); err != nil {
				return fmt.Errorf("deposit: %w", err)
			}
			return tx.SetLamports(ctx, owner, balance)
		})
	if err != nil {
		return 0, err
	}

	e.logger.InfoContext(ctx, "deposit",
		slog.String("owner", owner.Hex()),
		slog.String("sol", domain.SOL(lamports).String()),
	)
	return balance, nil
}

// batch collects the events an operation emits inside its transaction.
type batch struct {
	at       time.Time
	marketID string
	events   []domain.Event
}

func (b *batch) emit(ctx context.Context, tx domain.MarketTx, kind domain.EventKind, payload any) error {
	ev, err := domain.NewEvent(kind, b.marketID, payload, b.at)
	if err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return err
	}
	b.events = append(b.events, ev)
	return nil
}

// execute holds lockKey while fn runs in one store transaction, then
// dispatches the committed events before releasing the lock so subscribers
// see a market's events in commit order.
func (e *Engine) execute(ctx context.Context, op, lockKey, marketID string, fn func(ctx context.Context, tx domain.MarketTx, b *batch) error) (err error) {
	defer func() { e.metrics.ObserveOperation(op, err) }()

	unlock, err := e.locks.Acquire(ctx, lockKey, e.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("service: %s: %w", op, err)
	}
	defer unlock()

	b := &batch{at: e.now().UTC(), marketID: marketID}
	err = e.store.Update(ctx, lockKey, func(ctx context.Context, tx domain.MarketTx) error {
		b.events = b.events[:0]
		return fn(ctx, tx, b)
	})
	if err != nil {
		return err
	}

	e.afterCommit(ctx, marketID, b.events)
	return nil
}

// afterCommit runs the side effects of a committed operation. Failures are
// logged; the operation has already happened.
func (e *Engine) afterCommit(ctx context.Context, marketID string, events []domain.Event) {
	for _, ev := range events {
		if e.publisher != nil {
			if err := e.publisher.PublishEvent(ctx, ev); err != nil {
				e.logger.WarnContext(ctx, "publish event failed",
					slog.String("market_id", ev.MarketID),
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
		if e.notifier != nil {
			if err := e.notifier.NotifyEvent(ctx, ev); err != nil {
				e.logger.WarnContext(ctx, "notify event failed",
					slog.String("market_id", ev.MarketID),
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if e.cache != nil && marketID != "" {
		if err := e.cache.Invalidate(ctx, marketID); err != nil {
			e.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
