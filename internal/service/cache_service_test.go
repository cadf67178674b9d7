package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, 0, zap.NewNop(), false)

	svc.Set(context.Background(), "k", 1, 0)
	var out int
	assert.False(t, svc.Get(context.Background(), "k", &out))
	assert.Empty(t, repo.store)
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := &stubCacheRepo{}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)

	var out []string
	assert.False(t, svc.Get(context.Background(), "analytics:stats:7d", &out))

	svc.Set(context.Background(), "analytics:stats:7d", []string{"a"}, 0)
	assert.True(t, svc.Get(context.Background(), "analytics:stats:7d", &out))
	assert.Equal(t, []string{"a"}, out)

	svc.Invalidate(context.Background(), analyticsCachePattern)
	assert.Equal(t, []string{"analytics:*"}, repo.deleted)
	assert.False(t, svc.Get(context.Background(), "analytics:stats:7d", &out))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(2), snap.CacheMisses)
}

func TestCacheServiceReadErrorIsMiss(t *testing.T) {
	svc := NewCacheService(&stubCacheRepo{getErr: errors.New("conn refused")}, nil, 0, nil, true)

	var out int
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestMakeAnalyticsCacheKey(t *testing.T) {
	assert.Equal(t, "analytics:stats:7d:a|b", makeAnalyticsCacheKey("stats", "7d", "", "a:b"))
}
