package ttlcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestSetGet(t *testing.T) {
	c := New[string](Options[string]{})

	if ok := c.Set("k", "v"); !ok {
		t.Fatal("Set returned false")
	}
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = (%q, %v), want (v, true)", got, ok)
	}
	if _, ok := c.Get("absent"); ok {
		t.Error("Get on absent key returned ok")
	}
}

func TestSetRejectsEmptyKey(t *testing.T) {
	c := New[string](Options[string]{})

	if ok := c.Set("", "v"); ok {
		t.Error("Set with empty key returned true")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after rejected Set, want 0", c.Len())
	}
	if got := c.Stats().Sets; got != 0 {
		t.Errorf("sets = %d after rejected Set, want 0", got)
	}
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{DefaultTTL: time.Minute, Clock: clock.Now})

	c.Set("k", "v")

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry still live past its TTL")
	}
	if c.Has("k") {
		t.Error("Has reports expired entry as live")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats after expiry = hits %d misses %d, want 1 and 1", s.Hits, s.Misses)
	}
}

func TestPerEntryTTLOverridesDefault(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{DefaultTTL: time.Minute, Clock: clock.Now})

	c.Set("short", "v", 10*time.Second)
	c.Set("long", "v")

	clock.Advance(30 * time.Second)
	if c.Has("short") {
		t.Error("entry with 10s TTL still live after 30s")
	}
	if !c.Has("long") {
		t.Error("entry with default TTL expired early")
	}
}

func TestEvictionRemovesOldestInsertion(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{MaxEntries: 3, Clock: clock.Now})

	for _, key := range []string{"a", "b", "c"} {
		c.Set(key, key)
		clock.Advance(time.Second)
	}

	// Reading "a" must not protect it: eviction is by insertion age,
	// not access recency.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("setup: a missing")
	}

	c.Set("d", "d")

	if c.Has("a") {
		t.Error("oldest entry a survived eviction")
	}
	for _, key := range []string{"b", "c", "d"} {
		if !c.Has(key) {
			t.Errorf("entry %s missing after eviction", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestOverwriteAtCapacityDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{MaxEntries: 2, Clock: clock.Now})

	c.Set("a", "1")
	clock.Advance(time.Second)
	c.Set("b", "1")
	clock.Advance(time.Second)
	c.Set("a", "2")

	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("evictions = %d, want 0", got)
	}
	if got, _ := c.Get("a"); got != "2" {
		t.Errorf("a = %q after overwrite, want 2", got)
	}
	if !c.Has("b") {
		t.Error("b evicted by an overwrite")
	}
}

func TestOverwriteRefreshesInsertionAge(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{MaxEntries: 2, Clock: clock.Now})

	c.Set("a", "1")
	clock.Advance(time.Second)
	c.Set("b", "1")
	clock.Advance(time.Second)
	c.Set("a", "2") // a is now the newest insertion
	clock.Advance(time.Second)
	c.Set("c", "1") // must evict b

	if c.Has("b") {
		t.Error("b survived eviction despite being oldest insertion")
	}
	if !c.Has("a") {
		t.Error("a evicted despite refreshed insertion age")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[string](Options[string]{})
	c.Set("a", "1")
	c.Set("b", "1")

	if !c.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if n := c.Clear(); n != 1 {
		t.Errorf("Clear removed %d entries, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
}

func TestClearByPrefix(t *testing.T) {
	c := New[string](Options[string]{})
	c.Set("match:coll1:q1", "1")
	c.Set("match:coll1:q2", "1")
	c.Set("match:coll2:q1", "1")
	c.Set("embed:q1", "1")

	if n := c.ClearByPrefix("match:coll1:"); n != 2 {
		t.Errorf("ClearByPrefix removed %d entries, want 2", n)
	}
	if !c.Has("match:coll2:q1") || !c.Has("embed:q1") {
		t.Error("ClearByPrefix removed entries outside the prefix")
	}
}

func TestCleanup(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{DefaultTTL: time.Minute, Clock: clock.Now})

	c.Set("a", "1", 10*time.Second)
	c.Set("b", "1", 10*time.Second)
	c.Set("c", "1") // default TTL, survives

	clock.Advance(30 * time.Second)
	if n := c.Cleanup(); n != 2 {
		t.Errorf("Cleanup removed %d entries, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len after Cleanup = %d, want 1", c.Len())
	}
	if got := c.Stats().Cleanups; got != 1 {
		t.Errorf("cleanups = %d, want 1", got)
	}
}

func TestStatsHitRate(t *testing.T) {
	c := New[string](Options[string]{})
	c.Set("k", "v")

	c.Get("k")
	c.Get("k")
	c.Get("k")
	c.Get("absent")

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 || s.Sets != 1 {
		t.Errorf("stats = %+v, want hits 3 misses 1 sets 1", s)
	}
	if s.HitRate != 0.75 {
		t.Errorf("hit rate = %v, want 0.75", s.HitRate)
	}
}

func TestStatsZeroLookups(t *testing.T) {
	c := New[string](Options[string]{})
	if rate := c.Stats().HitRate; rate != 0 {
		t.Errorf("hit rate with no lookups = %v, want 0", rate)
	}
}

func TestCloneIsolatesCallers(t *testing.T) {
	cloneSlice := func(v []int) ([]int, error) {
		out := make([]int, len(v))
		copy(out, v)
		return out, nil
	}
	c := New[[]int](Options[[]int]{Clone: cloneSlice})

	original := []int{1, 2, 3}
	c.Set("k", original)
	original[0] = 99 // must not affect the stored copy

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get failed")
	}
	if got[0] != 1 {
		t.Errorf("stored value mutated through caller slice: %v", got)
	}

	got[1] = 99 // must not affect the stored copy either
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Errorf("stored value mutated through returned slice: %v", again)
	}
}

func TestCloneFailureMakesSetNoOp(t *testing.T) {
	fail := errors.New("not copyable")
	c := New[[]int](Options[[]int]{Clone: func(v []int) ([]int, error) {
		return nil, fail
	}})

	if ok := c.Set("k", []int{1}); ok {
		t.Error("Set with failing Clone returned true")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after failed Set, want 0", c.Len())
	}
}

func TestSizeTracking(t *testing.T) {
	c := New[string](Options[string]{SizeOf: func(v string) int64 {
		return int64(len(v))
	}})

	c.Set("a", "12345")
	c.Set("b", "123")
	if got := c.Stats().SizeBytes; got != 8 {
		t.Errorf("SizeBytes = %d, want 8", got)
	}

	c.Set("a", "1") // overwrite replaces the old size
	if got := c.Stats().SizeBytes; got != 4 {
		t.Errorf("SizeBytes after overwrite = %d, want 4", got)
	}

	c.Delete("b")
	if got := c.Stats().SizeBytes; got != 1 {
		t.Errorf("SizeBytes after delete = %d, want 1", got)
	}
}

func TestStartJanitor(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options[string]{DefaultTTL: time.Minute, Clock: clock.Now})

	c.Set("k", "v")
	clock.Advance(2 * time.Minute)

	stop := c.StartJanitor(time.Millisecond)
	defer stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().Entries == 0 {
			stop()
			stop() // stopping twice is safe
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("janitor did not sweep expired entry within a second")
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](Options[int]{MaxEntries: 64})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%100)
				c.Set(key, worker)
				c.Get(key)
				if j%50 == 0 {
					c.Cleanup()
				}
			}
		}(i)
	}
	wg.Wait()

	if n := c.Len(); n > 64 {
		t.Errorf("Len = %d, exceeds MaxEntries 64", n)
	}
}
