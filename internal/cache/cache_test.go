package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tash-comp/rain-app/internal/models"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.WeatherSnapshot{Raining: true, WeatherCode: "Slight rain", PrecipitationMM: 0.6}
	if err := c.Set(ctx, "40.71,-74.01", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "40.71,-74.01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != val {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()
	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that expired entries miss and are removed on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", models.WeatherSnapshot{}, time.Minute)
	now = now.Add(61 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be deleted", c.Len())
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "k", models.WeatherSnapshot{PrecipitationMM: float64(j)}, time.Minute)
				_, _, _ = c.Get(ctx, "k")
			}
		}()
	}
	wg.Wait()
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{90 * time.Second, 90},
		{60 * 24 * time.Hour, maxRelativeExp},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%s) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestNewMemcachedCache_NoAddrs(t *testing.T) {
	if _, err := NewMemcachedCache(" , ", time.Second, 2); err == nil {
		t.Error("NewMemcachedCache() with no addresses should fail")
	}
	if got := parseAddrs("a:1, b:2 ,,"); len(got) != 2 || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
