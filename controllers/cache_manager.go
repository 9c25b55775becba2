package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/models"
)

const (
	RuleCachePrefix     = "rule:detail:"
	RuleListCachePrefix = "rules:v:"
	CacheVersionKey     = "rules:version"

	DefaultCacheTTL = 10 * time.Minute
)

// CacheManager handles all Redis caching operations. Every method is
// nil-safe: without a Redis client the portal just serves from Postgres.
type CacheManager struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCacheManager(redis *redis.Client) *CacheManager {
	return &CacheManager{
		redis: redis,
		ttl:   DefaultCacheTTL,
	}
}

// GetRuleList retrieves a cached rule list page.
func (cm *CacheManager) GetRuleList(ctx context.Context, page, pageSize int, sortBy string) (map[string]interface{}, bool) {
	if cm == nil || cm.redis == nil {
		return nil, false
	}
	version, err := cm.getCacheVersion(ctx)
	if err != nil || version == 0 {
		return nil, false
	}

	cacheKey := cm.listCacheKey(version, page, pageSize, sortBy)
	cachedData, err := cm.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		return nil, false
	}

	var response map[string]interface{}
	if err := json.Unmarshal([]byte(cachedData), &response); err != nil {
		zap.L().Warn("Failed to unmarshal cached rule list", zap.Error(err))
		return nil, false
	}

	return response, true
}

// SetRuleListAsync caches a rule list page asynchronously.
func (cm *CacheManager) SetRuleListAsync(page, pageSize int, sortBy string, response map[string]interface{}) {
	if cm == nil || cm.redis == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		version, err := cm.getCacheVersion(bgCtx)
		if err != nil || version == 0 {
			return
		}

		cacheKey := cm.listCacheKey(version, page, pageSize, sortBy)
		jsonBytes, err := json.Marshal(response)
		if err != nil {
			zap.L().Warn("Failed to marshal rule list for cache", zap.Error(err))
			return
		}

		if err := cm.redis.Set(bgCtx, cacheKey, jsonBytes, cm.ttl).Err(); err != nil {
			zap.L().Warn("Failed to cache rule list", zap.Error(err))
		}
	}()
}

// GetRule retrieves a cached rule by ID.
func (cm *CacheManager) GetRule(ctx context.Context, ruleID string) (*models.Rule, bool) {
	if cm == nil || cm.redis == nil {
		return nil, false
	}
	cachedData, err := cm.redis.Get(ctx, RuleCachePrefix+ruleID).Result()
	if err != nil {
		return nil, false
	}

	var rule models.Rule
	if err := json.Unmarshal([]byte(cachedData), &rule); err != nil {
		zap.L().Warn("Failed to unmarshal cached rule", zap.Error(err), zap.String("rule_id", ruleID))
		return nil, false
	}
	return &rule, true
}

// SetRuleAsync caches a single rule asynchronously.
func (cm *CacheManager) SetRuleAsync(ruleID string, rule *models.Rule) {
	if cm == nil || cm.redis == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ruleJSON, err := json.Marshal(rule)
		if err != nil {
			zap.L().Warn("Failed to marshal rule for cache", zap.Error(err), zap.String("rule_id", ruleID))
			return
		}

		if err := cm.redis.Set(bgCtx, RuleCachePrefix+ruleID, ruleJSON, cm.ttl).Err(); err != nil {
			zap.L().Warn("Failed to cache rule", zap.Error(err), zap.String("rule_id", ruleID))
		}
	}()
}

// Invalidate invalidates all list caches by bumping the version.
func (cm *CacheManager) Invalidate(ctx context.Context) error {
	if cm == nil || cm.redis == nil {
		return nil
	}
	newVersion, err := cm.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	zap.L().Info("Rule cache invalidated", zap.Int64("new_version", newVersion))
	return nil
}

// InvalidateRule invalidates both the list caches and one rule's entry.
func (cm *CacheManager) InvalidateRule(ctx context.Context, ruleID string) {
	if cm == nil || cm.redis == nil {
		return
	}
	if err := cm.Invalidate(ctx); err != nil {
		zap.L().Error("Failed to invalidate rule cache", zap.Error(err), zap.String("rule_id", ruleID))
	}
	cm.DeleteRuleAsync(ruleID)
}

// DeleteRuleAsync drops one rule's detail cache entry without touching
// the list version. Callers that already bumped the version use this
// for each rewritten rule.
func (cm *CacheManager) DeleteRuleAsync(ruleID string) {
	if cm == nil || cm.redis == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := cm.redis.Del(bgCtx, RuleCachePrefix+ruleID).Err(); err != nil {
			zap.L().Warn("Failed to delete rule cache", zap.Error(err), zap.String("rule_id", ruleID))
		}
	}()
}

// getCacheVersion retrieves the current cache version with retry logic.
func (cm *CacheManager) getCacheVersion(ctx context.Context) (int64, error) {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		ver, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
		if err == nil && ver > 0 {
			return ver, nil
		}

		if err == redis.Nil {
			// Initialize version key if it doesn't exist
			if err := cm.redis.Set(ctx, CacheVersionKey, 1, 0).Err(); err == nil {
				return 1, nil
			}
		}

		if i < maxRetries-1 {
			time.Sleep(time.Millisecond * 50)
		}
	}

	return 0, fmt.Errorf("failed to get cache version after %d retries", maxRetries)
}

func (cm *CacheManager) listCacheKey(version int64, page, pageSize int, sortBy string) string {
	return fmt.Sprintf("%s%d:p:%d:l:%d:s:%s", RuleListCachePrefix, version, page, pageSize, sortBy)
}
