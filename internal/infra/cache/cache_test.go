package cache_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_CloseTwice(t *testing.T) {
	c := cache.New[int](0)
	c.Close()
	c.Close()
}

type countingRecorder struct {
	hits, misses int32
}

func (r *countingRecorder) IncrCacheHit(string)  { atomic.AddInt32(&r.hits, 1) }
func (r *countingRecorder) IncrCacheMiss(string) { atomic.AddInt32(&r.misses, 1) }

func TestLoader_ReadThrough(t *testing.T) {
	c := cache.New[string](time.Minute)
	defer c.Close()
	rec := &countingRecorder{}
	l := cache.NewLoader[string]("settings", c, rec)

	loads := 0
	load := func() (string, error) { loads++; return "v", nil }

	for i := 0; i < 3; i++ {
		v, err := l.Get("default", load)
		if err != nil || v != "v" {
			t.Fatalf("unexpected result %q %v", v, err)
		}
	}
	if loads != 1 {
		t.Errorf("expected 1 load, got %d", loads)
	}
	if rec.hits != 2 || rec.misses != 1 {
		t.Errorf("expected 2 hits / 1 miss, got %d / %d", rec.hits, rec.misses)
	}

	l.Invalidate("default")
	_, _ = l.Get("default", load)
	if loads != 2 {
		t.Errorf("expected reload after invalidate, got %d loads", loads)
	}
}

func TestLoader_ErrorsNotCached(t *testing.T) {
	c := cache.New[string](time.Minute)
	defer c.Close()
	l := cache.NewLoader[string]("profile", c, nil)

	boom := errors.New("boom")
	if _, err := l.Get("u1", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, err := l.Get("u1", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("expected fresh load, got %q %v", v, err)
	}
}

func TestLoader_SharesConcurrentLoads(t *testing.T) {
	c := cache.New[int](time.Minute)
	defer c.Close()
	l := cache.NewLoader[int]("profile", c, nil)

	var loads int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Get("u1", func() (int, error) {
				atomic.AddInt32(&loads, 1)
				<-release
				return 7, nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&loads); n < 1 || n > 5 {
		t.Errorf("unexpected load count %d", n)
	}
	if v, ok := c.Get("u1"); !ok || v != 7 {
		t.Errorf("expected cached 7, got %v %v", v, ok)
	}
}
