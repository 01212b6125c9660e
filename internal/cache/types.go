package cache

import (
	"encoding/json"
	"time"
)

// Config contains Redis cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// CachedTransform is a cached pure transform result. The substitution list
// is kept as raw JSON so the cache stays decoupled from the engine types.
type CachedTransform struct {
	Output           string          `json:"output"`
	Substitutions    json.RawMessage `json:"substitutions,omitempty"`
	Direction        string          `json:"direction"`
	RulesFingerprint string          `json:"rules_fingerprint"`
	CachedAt         time.Time       `json:"cached_at"`
	TTL              int64           `json:"ttl_seconds"`
}

// Stats reports cache performance counters
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage"`
}
