package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// setupRedisCacheTest creates a miniredis instance and returns the cache and cleanup function
func setupRedisCacheTest(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cfg := RedisConfig{
		URL: "redis://" + mr.Addr(),
		TTL: TTLPolicy{Base: 15 * time.Minute, Degraded: time.Minute},
	}

	c, err := NewRedisCache(cfg, nil)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis cache: %v", err)
	}

	cleanup := func() {
		c.Close()
		mr.Close()
	}

	return c, mr, cleanup
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{URL: "invalid://url"}, nil)
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewRedisCache_ConnectionFailure(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{URL: "redis://localhost:1"}, nil)
	if err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestRedisCache_PutGetRoundTrip(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	key := UserPermissionsKey(42, 7)
	set := rbac.NewPermissionSet(
		rbac.Permission{Resource: rbac.ResourcePayments, Action: rbac.ActionRead},
		rbac.Permission{Resource: rbac.ResourceUsers, Action: rbac.ActionWrite},
	)

	if err := c.PutSet(ctx, key, set); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	got, ok, err := c.GetSet(ctx, key)
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if got.Len() != 2 || !got.Has(rbac.Permission{Resource: rbac.ResourcePayments, Action: rbac.ActionRead}) {
		t.Errorf("Unexpected cached set: %v", got.Keys())
	}
}

func TestRedisCache_EmptySetIsCacheable(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	key := UserPermissionsKey(1, 1)

	if err := c.PutSet(ctx, key, rbac.NewPermissionSet()); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	got, ok, err := c.GetSet(ctx, key)
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if !ok {
		t.Fatal("Empty set must be a hit, not a miss")
	}
	if got.Len() != 0 {
		t.Errorf("Expected empty set, got %v", got.Keys())
	}
}

func TestRedisCache_MissReturnsNotFound(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	_, ok, err := c.GetSet(context.Background(), UserPermissionsKey(99, 99))
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if ok {
		t.Fatal("Expected cache miss")
	}
}

func TestRedisCache_CorruptEntryDeletedAndMiss(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	key := UserPermissionsKey(5, 5)
	mr.Set(key, "{not json")

	_, ok, err := c.GetSet(context.Background(), key)
	if err != nil {
		t.Fatalf("Corrupt entry must be a miss, got error: %v", err)
	}
	if ok {
		t.Fatal("Corrupt entry must not be a hit")
	}
	if mr.Exists(key) {
		t.Error("Corrupt entry should have been deleted")
	}
}

func TestRedisCache_TTLApplied(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	key := UserPermissionsKey(2, 3)
	if err := c.PutSet(ctx, key, rbac.NewPermissionSet()); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	if ttl := mr.TTL(key); ttl != 15*time.Minute {
		t.Errorf("Expected 15m TTL, got %v", ttl)
	}

	// Degraded mode tightens the TTL on subsequent writes
	c.SetDegraded(true)
	key2 := UserPermissionsKey(2, 4)
	if err := c.PutSet(ctx, key2, rbac.NewPermissionSet()); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}
	if ttl := mr.TTL(key2); ttl != time.Minute {
		t.Errorf("Expected 1m degraded TTL, got %v", ttl)
	}

	c.SetDegraded(false)
	if c.Degraded() {
		t.Error("Expected degraded mode off")
	}
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	key := RolePermissionsKey(9)
	if err := c.PutSet(ctx, key, rbac.NewPermissionSet()); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	mr.FastForward(16 * time.Minute)

	_, ok, err := c.GetSet(ctx, key)
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if ok {
		t.Fatal("Entry should have expired")
	}
}

func TestRedisCache_Evict(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	key := UserPermissionsKey(10, 20)
	if err := c.PutSet(ctx, key, rbac.NewPermissionSet()); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	if err := c.Evict(ctx, key); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}

	_, ok, _ := c.GetSet(ctx, key)
	if ok {
		t.Fatal("Key should have been evicted")
	}

	// Evicting absent keys is not an error
	if err := c.Evict(ctx, key); err != nil {
		t.Errorf("Evicting absent key failed: %v", err)
	}
	if err := c.Evict(ctx); err != nil {
		t.Errorf("Evicting nothing failed: %v", err)
	}
}

func TestRedisCache_EvictPatterns(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	set := rbac.NewPermissionSet()

	// Three users in org 7, one in org 8
	for _, userID := range []int64{1, 2, 3} {
		if err := c.PutSet(ctx, UserPermissionsKey(userID, 7), set); err != nil {
			t.Fatalf("PutSet failed: %v", err)
		}
	}
	if err := c.PutSet(ctx, UserPermissionsKey(1, 8), set); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}

	if err := c.EvictPatterns(ctx, UserPermissionsOrgPattern(7)); err != nil {
		t.Fatalf("EvictPatterns failed: %v", err)
	}

	for _, userID := range []int64{1, 2, 3} {
		if _, ok, _ := c.GetSet(ctx, UserPermissionsKey(userID, 7)); ok {
			t.Errorf("User %d in org 7 should have been swept", userID)
		}
	}
	if _, ok, _ := c.GetSet(ctx, UserPermissionsKey(1, 8)); !ok {
		t.Error("Org 8 entry must survive the org 7 sweep")
	}
}

func TestRedisCache_UnavailableBackend(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	mr.Close()

	_, _, err := c.GetSet(context.Background(), UserPermissionsKey(1, 1))
	if err == nil {
		t.Fatal("Expected error from closed backend")
	}
}

func TestRedisCache_SetTTLPolicy(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	set := rbac.NewPermissionSet(rbac.Permission{Resource: rbac.ResourcePayments, Action: rbac.ActionRead})

	c.SetTTLPolicy(TTLPolicy{Base: 5 * time.Minute, Degraded: 30 * time.Second})
	if err := c.PutSet(ctx, UserPermissionsKey(42, 7), set); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}
	if ttl := mr.TTL(UserPermissionsKey(42, 7)); ttl != 5*time.Minute {
		t.Errorf("Expected 5m TTL after policy swap, got %s", ttl)
	}

	// A zero policy is ignored
	c.SetTTLPolicy(TTLPolicy{})
	if err := c.PutSet(ctx, UserPermissionsKey(43, 7), set); err != nil {
		t.Fatalf("PutSet failed: %v", err)
	}
	if ttl := mr.TTL(UserPermissionsKey(43, 7)); ttl != 5*time.Minute {
		t.Errorf("Expected policy to survive zero-value swap, got %s", ttl)
	}
}
