package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemo_SingleFlight(t *testing.T) {
	m := newMemo[string](8)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Do("repo", func() (string, error) {
				calls.Add(1)
				<-release
				return "value", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("computations = %d, want 1", got)
	}
	for i, v := range results {
		if v != "value" {
			t.Errorf("result %d = %q", i, v)
		}
	}
}

func TestMemo_ErrorsNotStored(t *testing.T) {
	m := newMemo[int](8)
	boom := errors.New("boom")

	if _, err := m.Do("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, err := m.Do("k", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("got %d, %v; want 7, nil", v, err)
	}
	v, _ = m.Do("k", func() (int, error) { return 9, nil })
	if v != 7 {
		t.Errorf("stored value = %d, want 7", v)
	}
}

func TestMemo_Bounded(t *testing.T) {
	m := newMemo[int](2)
	for i, key := range []string{"a", "b", "c"} {
		_, _ = m.Do(key, func() (int, error) { return i, nil })
	}
	if m.Len() != 2 {
		t.Errorf("len = %d, want 2", m.Len())
	}

	recomputed := false
	_, _ = m.Do("a", func() (int, error) { recomputed = true; return 0, nil })
	if !recomputed {
		t.Error("expected least recently used entry to be evicted")
	}
}

func TestNewCache_ClampsSize(t *testing.T) {
	c := NewCache(0)
	if _, err := c.tags.Do("x", func() ([]string, error) { return []string{"1"}, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.tags.Len() != 1 {
		t.Errorf("len = %d, want 1", c.tags.Len())
	}
}
