package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/metrics"
	"github.com/alanyoungcy/binarymarket/internal/store/memory"
)

var (
	admin   = crypto.PubkeyFromString("admin")
	creator = crypto.PubkeyFromString("creator")
	alice   = crypto.PubkeyFromString("alice")
	bob     = crypto.PubkeyFromString("bob")

	t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

const (
	rentFloor = 2_373_360
	sol       = domain.LamportsPerSOL
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []domain.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type mapCache struct {
	mu          sync.Mutex
	markets     map[string]domain.MarketRecord
	hits        int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{markets: make(map[string]domain.MarketRecord)}
}

func (c *mapCache) Set(_ context.Context, m domain.MarketRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.ID] = m
	return nil
}

func (c *mapCache) Get(_ context.Context, id string) (domain.MarketRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.MarketRecord{}, fmt.Errorf("cache: %s: %w", id, domain.ErrNotFound)
	}
	c.hits++
	return m, nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// hookedStore runs onRead after every non-transactional market read.
type hookedStore struct {
	*memory.Store
	onRead func()
}

func (s *hookedStore) GetMarket(ctx context.Context, id string) (domain.MarketRecord, error) {
	m, err := s.Store.GetMarket(ctx, id)
	if s.onRead != nil {
		s.onRead()
	}
	return m, err
}

type busyLocks struct{}

func (busyLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, fmt.Errorf("redis: lock market:m: %w", domain.ErrLockHeld)
}

// blobStore is an in-memory BlobWriter and BlobReader.
type blobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newBlobStore() *blobStore {
	return &blobStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (b *blobStore) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = body
	b.types[path] = contentType
	return nil
}

func (b *blobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[path]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (b *blobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BlobInfo
	for path, body := range b.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(body)), ContentType: b.types[path]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *blobStore) Stat(_ context.Context, path string) (domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[path]
	if !ok {
		return domain.BlobInfo{}, fmt.Errorf("blob %s: %w", path, domain.ErrNotFound)
	}
	return domain.BlobInfo{Path: path, Size: int64(len(body)), ContentType: b.types[path]}, nil
}

type recordingArchiver struct {
	calls []string
	err   error
}

func (a *recordingArchiver) ArchiveMarket(_ context.Context, id string) (ArchiveResult, error) {
	a.calls = append(a.calls, id)
	return ArchiveResult{MarketID: id}, a.err
}

// fixture wires an Engine to the in-memory store with recording side effects.
type fixture struct {
	engine    *Engine
	store     *memory.Store
	publisher *recordingPublisher
	notifier  *recordingNotifier
	cache     *mapCache
	metrics   *metrics.Metrics
	now       time.Time
}

func newFixture(t *testing.T, configure ...func(*EngineConfig, *EngineDeps)) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		cache:     newMapCache(),
		metrics:   metrics.New(),
		now:       t0,
	}
	cfg := EngineConfig{
		Global:    domain.GlobalConfig{Admin: admin, Bump: 254},
		RentFloor: rentFloor,
	}
	deps := EngineDeps{
		Store:     f.store,
		Locks:     memory.NewLockManager(),
		Cache:     f.cache,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Metrics:   f.metrics,
		Logger:    discardLogger(),
		Now:       func() time.Time { return f.now },
	}
	for _, fn := range configure {
		fn(&cfg, &deps)
	}
	f.engine = NewEngine(cfg, deps)
	return f
}

func (f *fixture) fund(t *testing.T, owner domain.Pubkey, lamports uint64) {
	t.Helper()
	_, err := f.engine.Deposit(context.Background(), owner, lamports)
	require.NoError(t, err)
}

func (f *fixture) lamports(t *testing.T, owner domain.Pubkey) uint64 {
	t.Helper()
	bal, err := f.store.Lamports(context.Background(), owner)
	require.NoError(t, err)
	return bal
}

// params returns a 1000/1000 pool priced at 0.001 SOL resolving in 30 days.
func params(id string) domain.MarketParams {
	return domain.MarketParams{
		MarketID:    id,
		Value:       100_000,
		Range:       1,
		TokenAmount: 1000,
		TokenPrice:  1_000_000,
		Date:        t0.Add(30 * 24 * time.Hour).Unix(),
		Feed:        crypto.PubkeyFromString("feed:btc-usd"),
		MetadataA:   &domain.TokenMetadata{Name: "BTC above 100k", Symbol: "YES"},
		MetadataB:   &domain.TokenMetadata{Name: "BTC below 100k", Symbol: "NO"},
	}
}

// activeMarket configures and activates id with creator funded.
func (f *fixture) activeMarket(t *testing.T, id string) domain.MarketRecord {
	t.Helper()
	ctx := context.Background()
	f.fund(t, creator, sol)
	_, err := f.engine.ConfigureMarket(ctx, creator, params(id))
	require.NoError(t, err)
	m, err := f.engine.Activate(ctx, id)
	require.NoError(t, err)
	return m
}

func (f *fixture) putTokenAccount(t *testing.T, acct domain.TokenAccount) {
	t.Helper()
	err := f.store.Update(context.Background(), "test", func(ctx context.Context, tx domain.MarketTx) error {
		return tx.PutTokenAccount(ctx, acct)
	})
	require.NoError(t, err)
}

func (f *fixture) setLamports(t *testing.T, owner domain.Pubkey, lamports uint64) {
	t.Helper()
	err := f.store.Update(context.Background(), "test", func(ctx context.Context, tx domain.MarketTx) error {
		return tx.SetLamports(ctx, owner, lamports)
	})
	require.NoError(t, err)
}
