package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok := m.Get(ctx, "missing"); ok {
		t.Fatal("empty cache returned a value")
	}

	m.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := m.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v; want %q, true", got, ok, "v")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set(ctx, "k", []byte("v"), 30*time.Second)

	now = now.Add(29 * time.Second)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestMemorySweepOnSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set(ctx, "old", []byte("v"), time.Second)
	now = now.Add(time.Minute)
	m.Set(ctx, "new", []byte("v"), time.Minute)

	m.mu.Lock()
	_, oldPresent := m.entries["old"]
	m.mu.Unlock()
	if oldPresent {
		t.Fatal("expired entry survived the sweep")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%4)
			for j := 0; j < 100; j++ {
				m.Set(ctx, key, []byte("v"), time.Minute)
				m.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
