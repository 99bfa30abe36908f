package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tash-comp/rain-app/internal/cache"
	"github.com/tash-comp/rain-app/internal/models"
)

type countingUpstream struct {
	calls   atomic.Int32
	snap    models.WeatherSnapshot
	err     error
	release chan struct{} // if non-nil, Fetch blocks until closed
}

func (u *countingUpstream) Fetch(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	u.calls.Add(1)
	if u.release != nil {
		<-u.release
	}
	return u.snap, u.err
}

type brokenCache struct {
	gets atomic.Int32
}

func (c *brokenCache) Get(ctx context.Context, key string) (models.WeatherSnapshot, bool, error) {
	c.gets.Add(1)
	return models.WeatherSnapshot{}, false, errors.New("connection refused")
}

func (c *brokenCache) Set(ctx context.Context, key string, value models.WeatherSnapshot, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		in   models.Coordinate
		want string
	}{
		{models.Coordinate{Latitude: 40.7128, Longitude: -74.006}, "40.71,-74.01"},
		{models.Coordinate{Latitude: 40.7149, Longitude: -74.0051}, "40.71,-74.01"},
		{models.Coordinate{Latitude: -0.001, Longitude: 0.004}, "0.00,0.00"},
		{models.Coordinate{Latitude: 90, Longitude: -180}, "90.00,-180.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CacheKey(tt.in))
	}
}

// TestService_CacheAside verifies that the second request for a nearby coordinate is a hit.
func TestService_CacheAside(t *testing.T) {
	up := &countingUpstream{snap: models.WeatherSnapshot{Raining: true, WeatherCode: "Slight rain", PrecipitationMM: 0.7}}
	s := NewService(up, cache.NewInMemoryCache(), "in_memory", time.Minute, nil)

	first, err := s.Snapshot(context.Background(), nyc)
	require.NoError(t, err)
	second, err := s.Snapshot(context.Background(), models.Coordinate{Latitude: 40.7131, Longitude: -74.0062})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestService_ZeroTTLDisablesCache(t *testing.T) {
	up := &countingUpstream{}
	s := NewService(up, cache.NewInMemoryCache(), "in_memory", 0, nil)
	for i := 0; i < 3; i++ {
		_, err := s.Snapshot(context.Background(), nyc)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestService_UpstreamError(t *testing.T) {
	up := &countingUpstream{err: ErrUpstream}
	s := NewService(up, cache.NewInMemoryCache(), "in_memory", time.Minute, nil)

	_, err := s.Snapshot(context.Background(), nyc)
	assert.True(t, errors.Is(err, ErrUpstream))

	// failures are not cached
	up.err = nil
	_, err = s.Snapshot(context.Background(), nyc)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestService_CacheFailureFallsThrough(t *testing.T) {
	up := &countingUpstream{snap: models.WeatherSnapshot{WeatherCode: "No precipitation"}}
	s := NewService(up, &brokenCache{}, "redis", time.Minute, nil)

	got, err := s.Snapshot(context.Background(), nyc)
	require.NoError(t, err)
	assert.Equal(t, "No precipitation", got.WeatherCode)
}

// TestService_CoalescesConcurrentMisses verifies that concurrent misses for one key share a
// single upstream call.
func TestService_CoalescesConcurrentMisses(t *testing.T) {
	up := &countingUpstream{release: make(chan struct{}), snap: models.WeatherSnapshot{Raining: true, WeatherCode: "Slight rain", PrecipitationMM: 1}}
	c := &brokenCache{}
	s := NewService(up, c, "memcached", time.Minute, nil)

	const n = 10
	var wg sync.WaitGroup
	results := make([]models.WeatherSnapshot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Snapshot(context.Background(), nyc)
		}(i)
	}

	require.Eventually(t, func() bool { return c.gets.Load() == n && up.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(up.release)
	wg.Wait()

	assert.Equal(t, int32(1), up.calls.Load())
	for _, r := range results {
		assert.True(t, r.Raining)
	}
}

// TestService_WaiterHonorsOwnContext verifies that a canceled waiter returns without cancelling
// the shared upstream call.
func TestService_WaiterHonorsOwnContext(t *testing.T) {
	up := &countingUpstream{release: make(chan struct{})}
	mem := cache.NewInMemoryCache()
	s := NewService(up, mem, "in_memory", time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.Snapshot(ctx, nyc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(up.release)
	require.Eventually(t, func() bool { return mem.Len() == 1 }, time.Second, 5*time.Millisecond)
}
