// Package cache provides a two-tier read-through cache for detail payloads:
// an in-process LRU in front of an optional shared Redis tier. Every cache
// error degrades to a miss; the scraper must keep working with no cache at
// all.
package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/logging"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_cache_hits_total",
		Help: "Cache hits by tier",
	}, []string{"tier"})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_cache_misses_total",
		Help: "Cache misses across all tiers",
	})
)

// Config holds cache configuration.
type Config struct {
	// TTL bounds how long a payload stays valid in either tier.
	TTL time.Duration

	// MemorySize is the LRU capacity in entries.
	MemorySize int

	// KeyPrefix namespaces Redis keys so scrapers can share an instance.
	KeyPrefix string

	// RedisAddr enables the Redis tier when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns a memory-only cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:        6 * time.Hour,
		MemorySize: 2048,
		KeyPrefix:  "jobnet:detail",
	}
}

type entry struct {
	payload   map[string]any
	expiresAt time.Time
}

// Manager is the two-tier cache.
type Manager struct {
	mem    *lru.Cache[string, entry]
	rdb    *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates a cache manager. The Redis tier is attached only when an
// address is configured; an unreachable Redis is reported by the first
// operation, not by construction.
func New(cfg Config) (*Manager, error) {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = def.MemorySize
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}

	mem, err := lru.New[string, entry](cfg.MemorySize)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		mem:    mem,
		cfg:    cfg,
		logger: logging.NewLogger("cache"),
	}
	if cfg.RedisAddr != "" {
		m.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return m, nil
}

// Get looks a payload up, memory first, then Redis. Redis hits are promoted
// into the memory tier.
func (m *Manager) Get(ctx context.Context, key string) (map[string]any, bool) {
	if e, ok := m.mem.Get(key); ok {
		if time.Now().Before(e.expiresAt) {
			cacheHits.WithLabelValues("memory").Inc()
			return e.payload, true
		}
		m.mem.Remove(key)
	}

	if m.rdb != nil {
		raw, err := m.rdb.Get(ctx, m.redisKey(key)).Bytes()
		if err == nil {
			var payload map[string]any
			if err := json.Unmarshal(raw, &payload); err == nil {
				m.mem.Add(key, entry{payload: payload, expiresAt: time.Now().Add(m.cfg.TTL)})
				cacheHits.WithLabelValues("redis").Inc()
				return payload, true
			}
			m.logger.Warn().Str("key", key).Err(err).Msg("corrupt cache entry, treating as miss")
		} else if err != redis.Nil {
			m.logger.Warn().Str("key", key).Err(err).Msg("redis get failed, treating as miss")
		}
	}

	cacheMisses.Inc()
	return nil, false
}

// Set stores a payload in both tiers. Redis write failures are logged and
// swallowed.
func (m *Manager) Set(ctx context.Context, key string, payload map[string]any) {
	m.mem.Add(key, entry{payload: payload, expiresAt: time.Now().Add(m.cfg.TTL)})

	if m.rdb == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn().Str("key", key).Err(err).Msg("payload not cacheable")
		return
	}
	if err := m.rdb.Set(ctx, m.redisKey(key), raw, m.cfg.TTL).Err(); err != nil {
		m.logger.Warn().Str("key", key).Err(err).Msg("redis set failed")
	}
}

// Purge drops every memory-tier entry. Redis entries expire via TTL.
func (m *Manager) Purge() {
	m.mem.Purge()
}

// Len returns the number of memory-tier entries.
func (m *Manager) Len() int {
	return m.mem.Len()
}

// Close releases the Redis connection, if any.
func (m *Manager) Close() error {
	if m.rdb != nil {
		return m.rdb.Close()
	}
	return nil
}

func (m *Manager) redisKey(key string) string {
	return m.cfg.KeyPrefix + ":" + key
}
