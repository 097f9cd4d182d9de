package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/store/memory"
)

func TestEngine_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, sol)
	f.fund(t, alice, sol)
	f.fund(t, bob, sol)

	m, err := f.engine.ConfigureMarket(ctx, creator, params("btc-100k"))
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusPrepare, m.Status)
	assert.Equal(t, creator, m.Creator)
	assert.Equal(t, uint64(1000), m.TokenAAmount)
	assert.Equal(t, uint64(1000), m.TokenBAmount)
	assert.Equal(t, crypto.MintAddress(m.Address, true), m.TokenA)
	assert.Equal(t, crypto.MintAddress(m.Address, false), m.TokenB)
	assert.Equal(t, uint64(rentFloor), f.lamports(t, m.Address))
	assert.Equal(t, uint64(sol-rentFloor), f.lamports(t, creator))

	_, err = f.engine.Activate(ctx, "btc-100k")
	require.NoError(t, err)

	yes, err := f.engine.PlaceBet(ctx, alice, "btc-100k", 100, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), yes.Stake)
	assert.Equal(t, uint64(900), yes.Market.TokenAAmount)
	assert.Equal(t, uint64(1111), yes.Market.TokenBAmount)
	assert.Equal(t, uint64(1_100_000), yes.Market.TokenPriceA)
	assert.Equal(t, uint64(950_000), yes.Market.TokenPriceB)
	assert.Equal(t, uint64(100), yes.TokenAccount.Amount)
	assert.Equal(t, crypto.TokenAccountAddress(m.TokenA, alice), yes.TokenAccount.Address)

	no, err := f.engine.PlaceBet(ctx, bob, "btc-100k", 50, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(47_500_000), no.Stake)
	assert.Equal(t, uint64(942), no.Market.TokenAAmount)
	assert.Equal(t, uint64(1061), no.Market.TokenBAmount)
	assert.Equal(t, uint64(1_045_000), no.Market.TokenPriceA)
	assert.Equal(t, uint64(1_045_000), no.Market.TokenPriceB)
	assert.Equal(t, uint64(1), no.Market.YesAmount)
	assert.Equal(t, uint64(1), no.Market.NoAmount)
	assert.Equal(t, uint64(147_500_000), no.Market.TotalReserve)
	assert.Equal(t, uint64(rentFloor+147_500_000), f.lamports(t, m.Address))

	resolved, err := f.engine.AdminResolve(ctx, admin, "btc-100k", true)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, resolved.Status)
	assert.True(t, resolved.Result)

	payout, err := f.engine.Withdraw(ctx, alice, "btc-100k", yes.TokenAccount.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(15_658_174), payout.Amount)
	assert.Equal(t, uint64(147_500_000), payout.Withdrawable)
	assert.Equal(t, uint64(942), payout.TotalWinning)
	assert.Equal(t, uint64(sol-100_000_000+15_658_174), f.lamports(t, alice))
	assert.Equal(t, uint64(rentFloor+147_500_000-15_658_174), f.lamports(t, m.Address))

	assert.Equal(t, []domain.EventKind{
		domain.EventMarketConfigured,
		domain.EventMarketActivated,
		domain.EventBetPlaced,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
		domain.EventWithdrawal,
	}, f.publisher.kinds())
	assert.Len(t, f.notifier.events, 6)

	events, err := f.engine.ListEvents(ctx, "btc-100k", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 6)
	assert.Equal(t, f.publisher.events[5].ID, events[5].ID)

	assert.Equal(t, float64(147_500_000), testutil.ToFloat64(f.metrics.BetStakeLamportsTotal))
	assert.Equal(t, float64(15_658_174), testutil.ToFloat64(f.metrics.PayoutLamportsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues(OpPlaceBet, "ok")))

	acct, err := f.engine.GetAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, f.lamports(t, alice), acct.Lamports)
	require.Len(t, acct.Tokens, 1)
	assert.Equal(t, uint64(100), acct.Tokens[0].Amount)
}

func TestEngine_ConfigureMarket_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ConfigureMarket(ctx, creator, params(""))
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)
	_, err = f.engine.ConfigureMarket(ctx, creator, params("this-market-id-is-longer-than-32-bytes"))
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)

	// The creator cannot cover the rent floor; nothing is created.
	_, err = f.engine.ConfigureMarket(ctx, creator, params("m1"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = f.engine.GetMarket(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.fund(t, creator, sol)
	p := params("m1")
	p.TokenAmount = 0
	_, err = f.engine.ConfigureMarket(ctx, creator, p)
	assert.ErrorIs(t, err, domain.ErrInvalidFundAmount)
	assert.Equal(t, uint64(sol), f.lamports(t, creator))

	_, err = f.engine.ConfigureMarket(ctx, creator, params("m1"))
	require.NoError(t, err)

	_, err = f.engine.ConfigureMarket(ctx, alice, params("m1"))
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)

	// Reconfiguring in Prepare resets the pool without charging again.
	p = params("m1")
	p.TokenAmount = 5000
	m, err := f.engine.ConfigureMarket(ctx, creator, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), m.TokenBAmount)
	assert.Equal(t, uint64(sol-rentFloor), f.lamports(t, creator))

	_, err = f.engine.Activate(ctx, "m1")
	require.NoError(t, err)
	_, err = f.engine.Activate(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotPreparing)
	_, err = f.engine.ConfigureMarket(ctx, creator, params("m1"))
	assert.ErrorIs(t, err, domain.ErrNotPreparing)

	_, err = f.engine.Activate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_ConfigureMarket_TokenGate(t *testing.T) {
	gate := crypto.PubkeyFromString("mint:gate")
	f := newFixture(t, func(cfg *EngineConfig, _ *EngineDeps) {
		cfg.GateMint = gate
		cfg.GateMinimum = 10
	})
	ctx := context.Background()
	f.fund(t, creator, sol)

	_, err := f.engine.ConfigureMarket(ctx, creator, params("m1"))
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)

	f.putTokenAccount(t, domain.TokenAccount{
		Address: crypto.TokenAccountAddress(gate, creator),
		Mint:    gate,
		Owner:   creator,
		Amount:  9,
	})
	_, err = f.engine.ConfigureMarket(ctx, creator, params("m1"))
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)

	f.putTokenAccount(t, domain.TokenAccount{
		Address: crypto.TokenAccountAddress(gate, creator),
		Mint:    gate,
		Owner:   creator,
		Amount:  10,
	})
	_, err = f.engine.ConfigureMarket(ctx, creator, params("m1"))
	assert.NoError(t, err)
}

func TestEngine_PlaceBet_Deadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.activeMarket(t, "m1")
	f.fund(t, alice, sol)

	closes := m.Resolution().Add(-48 * time.Hour)

	f.now = closes
	_, err := f.engine.PlaceBet(ctx, alice, "m1", 1, true)
	assert.ErrorIs(t, err, domain.ErrBettingDeadlineExceeded)

	f.now = m.Resolution().Add(-47*time.Hour - 59*time.Minute)
	_, err = f.engine.PlaceBet(ctx, alice, "m1", 1, true)
	assert.ErrorIs(t, err, domain.ErrBettingDeadlineExceeded)

	f.now = m.Resolution().Add(-49 * time.Hour)
	_, err = f.engine.PlaceBet(ctx, alice, "m1", 1, true)
	assert.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		f.metrics.OperationsTotal.WithLabelValues(OpPlaceBet, "BettingDeadlineExceeded")))
}

func TestEngine_PlaceBet_RejectsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, sol)
	_, err := f.engine.ConfigureMarket(ctx, creator, params("m1"))
	require.NoError(t, err)
	f.fund(t, alice, sol)

	_, err = f.engine.PlaceBet(ctx, alice, "m1", 1, true)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)

	_, err = f.engine.Activate(ctx, "m1")
	require.NoError(t, err)
	before, err := f.store.GetMarket(ctx, "m1")
	require.NoError(t, err)

	// Buying the whole reserve would zero it.
	_, err = f.engine.PlaceBet(ctx, alice, "m1", 1000, true)
	assert.ErrorIs(t, err, domain.ErrArithmetic)

	// 999 tokens at 0.001 SOL is within the pool but beyond alice's funds.
	f.setLamports(t, alice, 1000)
	_, err = f.engine.PlaceBet(ctx, alice, "m1", 999, false)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	after, err := f.store.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(1000), f.lamports(t, alice))
	assert.Equal(t, uint64(rentFloor), f.lamports(t, before.Address))

	acct, err := f.engine.GetAccount(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, acct.Tokens)
}

func TestEngine_AddLiquidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.activeMarket(t, "m1")
	f.fund(t, bob, sol)

	_, err := f.engine.AddLiquidity(ctx, bob, "m1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidFundAmount)
	_, err = f.engine.AddLiquidity(ctx, bob, "m1", 2*sol)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := f.engine.AddLiquidity(ctx, bob, "m1", sol/2)
	require.NoError(t, err)
	assert.Equal(t, uint64(sol/2), got.TotalReserve)
	assert.Equal(t, uint64(rentFloor+sol/2), f.lamports(t, m.Address))

	_, err = f.engine.AdminResolve(ctx, admin, "m1", false)
	require.NoError(t, err)
	_, err = f.engine.AddLiquidity(ctx, bob, "m1", 1)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestEngine_AdminResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeMarket(t, "m1")

	_, err := f.engine.AdminResolve(ctx, creator, "m1", true)
	assert.ErrorIs(t, err, domain.ErrInvalidAdmin)
	m, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)

	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)

	// Without strict resolution a repeat overwrites the outcome.
	m, err = f.engine.AdminResolve(ctx, admin, "m1", false)
	require.NoError(t, err)
	assert.False(t, m.Result)

	_, err = f.engine.AdminResolve(ctx, admin, "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_AdminResolve_Strict(t *testing.T) {
	f := newFixture(t, func(cfg *EngineConfig, _ *EngineDeps) {
		cfg.StrictResolution = true
	})
	ctx := context.Background()
	f.fund(t, creator, sol)
	_, err := f.engine.ConfigureMarket(ctx, creator, params("m1"))
	require.NoError(t, err)

	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)

	_, err = f.engine.Activate(ctx, "m1")
	require.NoError(t, err)
	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)
	_, err = f.engine.AdminResolve(ctx, admin, "m1", false)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestEngine_AdminResolve_AutoArchive(t *testing.T) {
	archiver := &recordingArchiver{err: errors.New("bucket gone")}
	f := newFixture(t, func(cfg *EngineConfig, deps *EngineDeps) {
		cfg.AutoArchive = true
		deps.Archiver = archiver
	})
	f.activeMarket(t, "m1")

	// An archive failure does not undo the resolution.
	_, err := f.engine.AdminResolve(context.Background(), admin, "m1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, archiver.calls)
}

func TestEngine_Withdraw_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeMarket(t, "m1")
	f.fund(t, alice, sol)
	f.fund(t, bob, sol)

	yes, err := f.engine.PlaceBet(ctx, alice, "m1", 100, true)
	require.NoError(t, err)
	no, err := f.engine.PlaceBet(ctx, bob, "m1", 100, false)
	require.NoError(t, err)

	_, err = f.engine.Withdraw(ctx, alice, "m1", yes.TokenAccount.Address)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	// Status is checked before the token account.
	_, err = f.engine.Withdraw(ctx, alice, "m1", crypto.PubkeyFromString("nowhere"))
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
	_, err = f.engine.Withdraw(ctx, bob, "m1", yes.TokenAccount.Address)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)

	_, err = f.engine.Withdraw(ctx, bob, "m1", no.TokenAccount.Address)
	assert.ErrorIs(t, err, domain.ErrNotWinningToken)

	_, err = f.engine.Withdraw(ctx, bob, "m1", yes.TokenAccount.Address)
	assert.ErrorIs(t, err, domain.ErrInvalidTokenAccount)

	_, err = f.engine.Withdraw(ctx, alice, "m1", crypto.PubkeyFromString("nowhere"))
	assert.ErrorIs(t, err, domain.ErrInvalidTokenAccount)

	// A zero balance on the winning mint has nothing to claim.
	empty := domain.TokenAccount{
		Address: crypto.TokenAccountAddress(yes.Market.TokenA, bob),
		Mint:    yes.Market.TokenA,
		Owner:   bob,
	}
	f.putTokenAccount(t, empty)
	_, err = f.engine.Withdraw(ctx, bob, "m1", empty.Address)
	assert.ErrorIs(t, err, domain.ErrNoWinningTokens)
}

func TestEngine_Withdraw_ShareRoundsToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.activeMarket(t, "m1")
	f.fund(t, alice, sol)

	yes, err := f.engine.PlaceBet(ctx, alice, "m1", 100, true)
	require.NoError(t, err)
	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)

	// 90 of 900 winning tokens against 9 withdrawable lamports.
	acct := yes.TokenAccount
	acct.Amount = 90
	f.putTokenAccount(t, acct)
	f.setLamports(t, m.Address, rentFloor+9)

	_, err = f.engine.Withdraw(ctx, alice, "m1", acct.Address)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(rentFloor+9), f.lamports(t, m.Address))
}

func TestEngine_Withdraw_RepeatClaims(t *testing.T) {
	setup := func(t *testing.T, burn bool) (*fixture, BetReceipt) {
		f := newFixture(t, func(cfg *EngineConfig, _ *EngineDeps) {
			cfg.BurnOnClaim = burn
		})
		ctx := context.Background()
		f.activeMarket(t, "m1")
		f.fund(t, alice, sol)
		f.fund(t, bob, sol)

		yes, err := f.engine.PlaceBet(ctx, alice, "m1", 100, true)
		require.NoError(t, err)
		_, err = f.engine.PlaceBet(ctx, bob, "m1", 50, false)
		require.NoError(t, err)
		_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
		require.NoError(t, err)
		return f, yes
	}

	t.Run("default pays again", func(t *testing.T) {
		f, yes := setup(t, false)
		ctx := context.Background()

		first, err := f.engine.Withdraw(ctx, alice, "m1", yes.TokenAccount.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(15_658_174), first.Amount)

		second, err := f.engine.Withdraw(ctx, alice, "m1", yes.TokenAccount.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(13_995_947), second.Amount)
		assert.Equal(t, uint64(100), second.TokenAccount.Amount)
	})

	t.Run("burn on claim", func(t *testing.T) {
		f, yes := setup(t, true)
		ctx := context.Background()

		first, err := f.engine.Withdraw(ctx, alice, "m1", yes.TokenAccount.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(15_658_174), first.Amount)
		assert.Zero(t, first.TokenAccount.Amount)

		_, err = f.engine.Withdraw(ctx, alice, "m1", yes.TokenAccount.Address)
		assert.ErrorIs(t, err, domain.ErrNoWinningTokens)
	})
}

func TestEngine_Withdraw_ConcurrentConservesLamports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.activeMarket(t, "m1")

	const bettors = 8
	owners := make([]domain.Pubkey, bettors)
	accounts := make([]domain.Pubkey, bettors)
	for i := range owners {
		owners[i] = crypto.PubkeyFromString("bettor-" + string(rune('a'+i)))
		f.fund(t, owners[i], sol)
		r, err := f.engine.PlaceBet(ctx, owners[i], "m1", 10, true)
		require.NoError(t, err)
		accounts[i] = r.TokenAccount.Address
	}
	_, err := f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)

	total := func() uint64 {
		sum := f.lamports(t, m.Address)
		for _, o := range owners {
			sum += f.lamports(t, o)
		}
		return sum
	}
	before := total()

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for i := range owners {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.engine.Withdraw(ctx, owners[i], "m1", accounts[i])
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				}
			}(i)
		}
	}
	wg.Wait()

	assert.Equal(t, before, total())
	assert.GreaterOrEqual(t, f.lamports(t, m.Address), uint64(rentFloor))
}

func TestEngine_LockHeld(t *testing.T) {
	f := newFixture(t, func(_ *EngineConfig, deps *EngineDeps) {
		deps.Locks = busyLocks{}
	})

	_, err := f.engine.Activate(context.Background(), "m1")
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		f.metrics.OperationsTotal.WithLabelValues(OpActivate, "LockHeld")))
}

func TestEngine_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")

	f.activeMarket(t, "m1")
	m, err := f.engine.GetMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Len(t, f.publisher.events, 2)
}

func TestEngine_GetMarket_ReadThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeMarket(t, "m1")

	_, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, f.cache.hits)

	cached, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
	assert.Equal(t, domain.MarketStatusActive, cached.Status)

	// A committed change drops the cached copy.
	_, err = f.engine.AdminResolve(ctx, admin, "m1", true)
	require.NoError(t, err)
	fresh, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, fresh.Status)
	assert.Contains(t, f.cache.invalidated, "m1")

	_, err = f.engine.GetMarket(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidMarket)
}

func TestEngine_GetMarket_FillDoesNotOutliveCommit(t *testing.T) {
	hooked := &hookedStore{}
	f := newFixture(t, func(_ *EngineConfig, deps *EngineDeps) {
		hooked.Store = deps.Store.(*memory.Store)
		deps.Store = hooked
	})
	ctx := context.Background()
	f.activeMarket(t, "m1")

	// A resolution races the cache fill: it starts after the store read and
	// is given time to commit before the fill writes the cache.
	done := make(chan error, 1)
	var once sync.Once
	hooked.onRead = func() {
		once.Do(func() {
			go func() {
				_, err := f.engine.AdminResolve(ctx, admin, "m1", true)
				done <- err
			}()
			select {
			case err := <-done:
				done <- err
			case <-time.After(50 * time.Millisecond):
			}
		})
	}

	first, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, first.Status)
	require.NoError(t, <-done)

	after, err := f.engine.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, after.Status)
	stored, err := f.store.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, stored.Status, after.Status)
}

func TestEngine_GetMarket_BusyLockSkipsFill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeMarket(t, "m1")

	busy := NewEngine(f.engine.Config(), EngineDeps{
		Store:   f.store,
		Locks:   busyLocks{},
		Cache:   f.cache,
		Metrics: f.metrics,
		Logger:  discardLogger(),
	})
	m, err := busy.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)

	_, err = f.cache.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_Deposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Deposit(ctx, alice, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidFundAmount)
	_, err = f.engine.Deposit(ctx, domain.Pubkey{}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bal, err := f.engine.Deposit(ctx, alice, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal)

	f.setLamports(t, alice, ^uint64(0))
	_, err = f.engine.Deposit(ctx, alice, 1)
	assert.ErrorIs(t, err, domain.ErrArithmetic)
}

func TestEngine_ListMarkets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, sol)

	for _, id := range []string{"m1", "m2", "m3"} {
		f.now = f.now.Add(time.Minute)
		_, err := f.engine.ConfigureMarket(ctx, creator, params(id))
		require.NoError(t, err)
	}

	all, err := f.engine.ListMarkets(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m1", all[0].ID)

	page, err := f.engine.ListMarkets(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m2", page[0].ID)

	_, err = f.engine.ListEvents(ctx, "nope", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
