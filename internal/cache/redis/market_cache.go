package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/market"
)

// DefaultMarketTTL is used when NewMarketCache is given a zero ttl.
const DefaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with one Redis hash per market.
//
// Key schema:
//
//	market:{id} - hash
//	  record    - fixed-width binary record (market.Encode)
//	  meta      - JSON of the fields outside the binary layout
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id string) string { return "market:" + id }

// recordMeta carries what the binary layout leaves out.
type recordMeta struct {
	ID        string               `json:"id"`
	Address   domain.Pubkey        `json:"address"`
	MetadataA domain.TokenMetadata `json:"metadata_a"`
	MetadataB domain.TokenMetadata `json:"metadata_b"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Set stores m for the cache ttl.
func (mc *MarketCache) Set(ctx context.Context, m domain.MarketRecord) error {
	meta, err := json.Marshal(recordMeta{
		ID:        m.ID,
		Address:   m.Address,
		MetadataA: m.MetadataA,
		MetadataB: m.MetadataB,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ID, err)
	}

	key := marketKey(m.ID)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "record", market.Encode(m), "meta", meta)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ID, err)
	}
	return nil
}

// Get returns the cached market or domain.ErrNotFound on a miss.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.MarketRecord, error) {
	vals, err := mc.rdb.HMGet(ctx, marketKey(id), "record", "meta").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketRecord{}, domain.ErrNotFound
		}
		return domain.MarketRecord{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}
	rec, recOK := vals[0].(string)
	metaRaw, metaOK := vals[1].(string)
	if !recOK || !metaOK {
		return domain.MarketRecord{}, domain.ErrNotFound
	}

	m, err := market.Decode([]byte(rec))
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("redis: decode market %s: %w", id, err)
	}
	var meta recordMeta
	if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	m.ID = meta.ID
	m.Address = meta.Address
	m.MetadataA = meta.MetadataA
	m.MetadataB = meta.MetadataB
	m.CreatedAt = meta.CreatedAt
	m.UpdatedAt = meta.UpdatedAt
	return m, nil
}

// Invalidate drops the cached market.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
