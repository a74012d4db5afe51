// Package cache implements the bounded, TTL-based analysis cache that lets
// repeated claims skip the resolve/validate/classify chain.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
)

const redisKeyPrefix = "klaimedis:analysis:"

// Config holds cache sizing and expiry settings.
type Config struct {
	Capacity int
	TTL      time.Duration
	// RedisClient enables the optional distributed tier. Nil disables it;
	// tier failures always degrade to a miss, never to a failed request.
	RedisClient *redis.Client
	RedisTTL    time.Duration
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Expired     int64 `json:"expired"`
	Evictions   int64 `json:"evictions"`
	RedisHits   int64 `json:"redis_hits"`
	RedisErrors int64 `json:"redis_errors"`
}

type entry struct {
	analysis  *domain.ClaimAnalysis
	createdAt time.Time
	expiresAt time.Time
}

// AnalysisCache is the only mutable shared structure in the engine. The
// memory tier serializes writes and eviction internally; reads go through
// the same LRU so recency stays accurate.
type AnalysisCache struct {
	log *logrus.Logger

	memory   *lru.Cache[string, *entry]
	ttl      time.Duration
	redis    *redis.Client
	redisTTL time.Duration

	statsMu sync.RWMutex
	stats   Stats

	now func() time.Time
}

// New creates an analysis cache.
func New(config Config, logger *logrus.Logger) (*AnalysisCache, error) {
	if config.Capacity <= 0 {
		config.Capacity = 512
	}
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.RedisTTL <= 0 {
		config.RedisTTL = config.TTL
	}

	c := &AnalysisCache{
		log:      logger,
		ttl:      config.TTL,
		redis:    config.RedisClient,
		redisTTL: config.RedisTTL,
		now:      time.Now,
	}

	memory, err := lru.NewWithEvict[string, *entry](config.Capacity, func(string, *entry) {
		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	c.memory = memory
	return c, nil
}

// Signature builds the deterministic cache key for a claim: normalized
// diagnosis term plus the sorted canonical drug identifiers and sorted
// procedure codes.
func Signature(diagnosisTerm string, procedureCodes, drugIDs []string) string {
	drugs := make([]string, 0, len(drugIDs))
	for _, d := range drugIDs {
		drugs = append(drugs, domain.CanonicalDrugID(d))
	}
	sort.Strings(drugs)

	procedures := make([]string, 0, len(procedureCodes))
	for _, p := range procedureCodes {
		procedures = append(procedures, domain.NormalizeTerm(p))
	}
	sort.Strings(procedures)

	var b strings.Builder
	b.WriteString(domain.NormalizeTerm(diagnosisTerm))
	b.WriteString("|")
	b.WriteString(strings.Join(drugs, ","))
	b.WriteString("|")
	b.WriteString(strings.Join(procedures, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached analysis for a key. Expired entries are treated
// as absent and removed lazily. A memory miss falls through to the redis
// tier when one is configured.
func (c *AnalysisCache) Get(ctx context.Context, key string) (*domain.ClaimAnalysis, bool) {
	if e, ok := c.memory.Get(key); ok {
		if c.now().Before(e.expiresAt) {
			c.bump(func(s *Stats) { s.Hits++ })
			return e.analysis, true
		}
		c.memory.Remove(key)
		c.bump(func(s *Stats) { s.Expired++ })
	}

	if analysis, ok := c.getFromRedis(ctx, key); ok {
		c.memory.Add(key, &entry{
			analysis:  analysis,
			createdAt: c.now(),
			expiresAt: c.now().Add(c.ttl),
		})
		c.bump(func(s *Stats) { s.RedisHits++; s.Hits++ })
		return analysis, true
	}

	c.bump(func(s *Stats) { s.Misses++ })
	return nil, false
}

// Put stores a completed analysis under its signature. The expiry is
// absolute: creation time plus the fixed TTL, untouched by later reads.
func (c *AnalysisCache) Put(ctx context.Context, key string, analysis *domain.ClaimAnalysis) {
	now := c.now()
	c.memory.Add(key, &entry{
		analysis:  analysis,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	})
	c.putToRedis(ctx, key, analysis)
}

// Len returns the number of occupied memory slots, expired or not.
func (c *AnalysisCache) Len() int {
	return c.memory.Len()
}

// GetStats returns a snapshot of the cache counters.
func (c *AnalysisCache) GetStats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *AnalysisCache) bump(update func(*Stats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}

func (c *AnalysisCache) getFromRedis(ctx context.Context, key string) (*domain.ClaimAnalysis, bool) {
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.bump(func(s *Stats) { s.RedisErrors++ })
			c.log.WithError(err).Debug("Redis cache read failed, degrading to miss")
		}
		return nil, false
	}

	var analysis domain.ClaimAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		c.bump(func(s *Stats) { s.RedisErrors++ })
		c.log.WithError(err).Warn("Discarding undecodable redis cache entry")
		c.redis.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return &analysis, true
}

func (c *AnalysisCache) putToRedis(ctx context.Context, key string, analysis *domain.ClaimAnalysis) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(analysis)
	if err != nil {
		c.log.WithError(err).Warn("Could not encode analysis for redis cache")
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+key, data, c.redisTTL).Err(); err != nil {
		c.bump(func(s *Stats) { s.RedisErrors++ })
		c.log.WithError(err).Debug("Redis cache write failed, continuing without")
	}
}
