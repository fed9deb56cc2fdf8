package consistency

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// CacheAdapter provides read access to a cache for consistency checking
type CacheAdapter interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	IsExpired(ctx context.Context, key string) (bool, error)
}

// SourceFetch retrieves the authoritative value for a key from the system
// of record
type SourceFetch func(ctx context.Context, key string) (value string, found bool, err error)

// Transform rewrites a key or value before comparison
type Transform func(string) string

// CacheRule binds a cache to its source of truth with optional transforms
type CacheRule struct {
	Name           string
	CacheName      string
	SourceName     string
	KeyTransform   Transform
	ValueTransform Transform
}

// CacheValidator compares cached values against their source of truth.
// Mismatches are warnings: a stale cache degrades quality but does not
// invalidate the data itself.
type CacheValidator struct {
	logger      *zap.Logger
	expWarnRate float64
	mu          sync.RWMutex
	rules       map[string]*CacheRule
	caches      map[string]CacheAdapter
	sources     map[string]SourceFetch
}

// NewCacheValidator creates a cache consistency validator
func NewCacheValidator(expirationWarnRate float64, logger *zap.Logger) *CacheValidator {
	if expirationWarnRate <= 0 || expirationWarnRate > 1 {
		expirationWarnRate = 0.8
	}
	return &CacheValidator{
		logger:      logger,
		expWarnRate: expirationWarnRate,
		rules:       make(map[string]*CacheRule),
		caches:      make(map[string]CacheAdapter),
		sources:     make(map[string]SourceFetch),
	}
}

// RegisterCache registers a cache adapter under a name
func (v *CacheValidator) RegisterCache(name string, adapter CacheAdapter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.caches[name] = adapter
}

// RegisterSource registers a source-of-truth fetcher under a name
func (v *CacheValidator) RegisterSource(name string, fetch SourceFetch) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sources[name] = fetch
}

// RegisterRule registers a cache-to-source consistency rule
func (v *CacheValidator) RegisterRule(rule *CacheRule) error {
	if rule == nil || rule.Name == "" {
		return fmt.Errorf("rule must have a name")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[rule.Name] = rule
	v.logger.Info("Registered cache rule",
		zap.String("rule", rule.Name),
		zap.String("cache", rule.CacheName),
		zap.String("source", rule.SourceName))
	return nil
}

// ValidateCacheConsistency fetches each key from both the cache and the
// source under the named rule and reports every mismatch as a warning
func (v *CacheValidator) ValidateCacheConsistency(ctx context.Context, ruleName string, keys []string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	rule, exists := v.rules[ruleName]
	var cache CacheAdapter
	var source SourceFetch
	if exists {
		cache = v.caches[rule.CacheName]
		source = v.sources[rule.SourceName]
	}
	v.mu.RUnlock()

	if !exists {
		result.AddError(fmt.Sprintf("cache rule not found: %s", ruleName))
		return result
	}
	if cache == nil {
		result.AddError(fmt.Sprintf("no cache adapter registered for: %s", rule.CacheName))
		return result
	}
	if source == nil {
		result.AddError(fmt.Sprintf("no source registered for: %s", rule.SourceName))
		return result
	}

	mismatches := 0
	for _, key := range keys {
		cacheKey := key
		if rule.KeyTransform != nil {
			cacheKey = rule.KeyTransform(key)
		}

		cached, cacheFound, cacheErr := cache.Get(ctx, cacheKey)
		if cacheErr != nil {
			result.AddWarning(fmt.Sprintf("key '%s': cache fetch failed: %v", key, cacheErr))
			continue
		}

		sourceValue, sourceFound, sourceErr := source(ctx, key)
		if sourceErr != nil {
			result.AddWarning(fmt.Sprintf("key '%s': source fetch failed: %v", key, sourceErr))
			continue
		}

		if !cacheFound {
			if sourceFound {
				result.AddWarning(fmt.Sprintf("key '%s': present in source but missing from cache", key))
			}
			continue
		}
		if !sourceFound {
			result.AddWarning(fmt.Sprintf("key '%s': present in cache but missing from source", key))
			mismatches++
			continue
		}

		if rule.ValueTransform != nil {
			cached = rule.ValueTransform(cached)
			sourceValue = rule.ValueTransform(sourceValue)
		}

		if cached != sourceValue {
			result.AddWarning(fmt.Sprintf(
				"key '%s': cache value %q does not match source value %q", key, cached, sourceValue))
			mismatches++
		}
	}

	result.SetMetadata("rule_name", ruleName)
	result.SetMetadata("keys_checked", len(keys))
	result.SetMetadata("mismatch_count", mismatches)

	return result
}

// CheckExpirationRate samples the given keys and warns when the expired
// fraction exceeds the configured rate
func (v *CacheValidator) CheckExpirationRate(ctx context.Context, cacheName string, keys []string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	cache := v.caches[cacheName]
	v.mu.RUnlock()

	if cache == nil {
		result.AddError(fmt.Sprintf("no cache adapter registered for: %s", cacheName))
		return result
	}
	if len(keys) == 0 {
		return result
	}

	expired := 0
	for _, key := range keys {
		isExpired, err := cache.IsExpired(ctx, key)
		if err != nil {
			result.AddWarning(fmt.Sprintf("key '%s': expiration check failed: %v", key, err))
			continue
		}
		if isExpired {
			expired++
		}
	}

	rate := float64(expired) / float64(len(keys))
	result.SetMetadata("expiration_rate", rate)
	if rate > v.expWarnRate {
		result.AddWarning(fmt.Sprintf(
			"cache '%s': %.0f%% of sampled keys are expired", cacheName, rate*100))
	}

	return result
}

// MemoryCache is an in-memory CacheAdapter used in tests and single-node
// deployments
type MemoryCache struct {
	mu      sync.RWMutex
	values  map[string]string
	expired map[string]bool
}

// NewMemoryCache creates an empty in-memory cache adapter
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values:  make(map[string]string),
		expired: make(map[string]bool),
	}
}

// Set stores a value
func (c *MemoryCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	delete(c.expired, key)
}

// Expire marks a key as expired
func (c *MemoryCache) Expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired[key] = true
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.expired[key] {
		return "", false, nil
	}
	value, found := c.values[key]
	return value, found, nil
}

func (c *MemoryCache) IsExpired(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expired[key], nil
}
