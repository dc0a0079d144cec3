package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10)
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found a missing key")
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 || s.HitRate() != 0.5 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, string](3)
	var evicted []int
	c.OnEvict(func(k int, _ string) { evicted = append(evicted, k) })

	for i := range 3 {
		c.Set(i, strconv.Itoa(i))
	}
	c.Get(0) // 1 is now the oldest
	c.Set(3, "3")
	c.Set(4, "4")

	if len(evicted) != 2 || evicted[0] != 1 || evicted[1] != 2 {
		t.Fatalf("evicted = %v, want [1 2]", evicted)
	}
	if _, ok := c.Get(0); !ok {
		t.Error("recently used key was evicted")
	}
	if s := c.Stats(); s.Len != 3 || s.Evictions != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](0)
	calls := 0
	create := func() (int, error) {
		calls++
		return 7, nil
	}
	for range 3 {
		if v, err := c.GetOrCreate("k", create); err != nil || v != 7 {
			t.Fatalf("GetOrCreate = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("failed create was stored: len = %d", c.Len())
	}
}

func TestTakeSkipsCallback(t *testing.T) {
	c := New[string, int](0)
	called := false
	c.OnEvict(func(string, int) { called = true })
	c.Set("a", 1)
	if v, ok := c.Take("a"); !ok || v != 1 {
		t.Errorf("Take = %d, %v", v, ok)
	}
	if called || c.Len() != 0 {
		t.Errorf("called = %v, len = %d", called, c.Len())
	}
}

func TestDeleteAndClearNotify(t *testing.T) {
	c := New[string, int](0)
	var got []string
	c.OnEvict(func(k string, _ int) { got = append(got, k) })
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	if !c.Delete("b") || c.Delete("b") {
		t.Error("Delete reported the wrong presence")
	}
	c.Clear()
	if len(got) != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Errorf("evicted = %v, want [b a c]", got)
	}
	if c.Len() != 0 {
		t.Errorf("len after Clear = %d", c.Len())
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	c := New[int, int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				_, _ = c.GetOrCreate(i%32, func() (int, error) { return g, nil })
			}
		}()
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("len = %d exceeds the limit", c.Len())
	}
}
