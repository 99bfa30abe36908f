package provider

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tash-comp/rain-app/internal/cache"
	"github.com/tash-comp/rain-app/internal/client"
	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/observability"
)

// keyPrecision is the number of decimals kept in cache keys (about 1 km at the equator).
const keyPrecision = 2

// Service serves rain snapshots using cache-aside over an upstream client. Concurrent misses
// for the same key share one upstream call.
type Service struct {
	upstream client.WeatherClient
	cache    cache.Cache
	backend  string
	ttl      time.Duration
	logger   *zap.Logger
	group    singleflight.Group
}

// NewService builds a Service. backend labels cache metrics; ttl <= 0 disables caching.
func NewService(upstream client.WeatherClient, c cache.Cache, backend string, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		upstream: upstream,
		cache:    c,
		backend:  backend,
		ttl:      ttl,
		logger:   logger.With(zap.String("component", "provider")),
	}
}

// CacheKey rounds a coordinate so that nearby requests share an entry.
func CacheKey(coord models.Coordinate) string {
	return fmt.Sprintf("%.*f,%.*f", keyPrecision, roundTo(coord.Latitude), keyPrecision, roundTo(coord.Longitude))
}

func roundTo(v float64) float64 {
	scale := math.Pow10(keyPrecision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// Snapshot returns the rain snapshot for coord. Cache errors are counted and logged but never
// fail the request.
func (s *Service) Snapshot(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	key := CacheKey(coord)
	if s.cacheEnabled() {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues(s.backend).Inc()
			s.logger.Debug("cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	// The shared call must outlive any single caller; waiters still honor their own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.fetchAndStore(shared, key, coord)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherSnapshot{}, res.Err
		}
		return res.Val.(models.WeatherSnapshot), nil
	case <-ctx.Done():
		return models.WeatherSnapshot{}, ctx.Err()
	}
}

func (s *Service) fetchAndStore(ctx context.Context, key string, coord models.Coordinate) (models.WeatherSnapshot, error) {
	snap, err := s.upstream.Fetch(ctx, coord)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch rain for %s: %w", key, err)
	}
	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, snap, s.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return snap, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}
