package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Get("key1")           // key2 becomes least recently used
	c.Set("key4", "value4") // evicts key2

	if _, found := c.Get("key2"); found {
		t.Error("key2 should have been evicted")
	}
	for _, key := range []string{"key1", "key3", "key4"} {
		if _, found := c.Get(key); !found {
			t.Errorf("%s should still exist", key)
		}
	}
	if c.Size() != 3 {
		t.Errorf("expected size 3, got %d", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[int](10, 20*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, found := c.Get("a"); !found || v != 1 {
		t.Fatalf("expected fresh hit, got %v %v", v, found)
	}

	time.Sleep(40 * time.Millisecond)

	if _, found := c.Get("a"); found {
		t.Error("expired entry should miss")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("expected 1 expired entry cleaned, got %d", removed)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	c.Set("u1:2025-04", 1)
	c.Set("u1:2025-05", 2)
	c.Set("u12:2025-04", 3)

	if removed := c.DeletePrefix("u1:"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, found := c.Get("u12:2025-04"); !found {
		t.Error("other prefixes must survive")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](1, time.Minute))
	m.Stop()
	m.Stop()
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	c := NewLRUCache[int](10, time.Millisecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry was never cleaned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
