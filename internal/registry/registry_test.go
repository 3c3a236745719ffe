package registry

import (
	"sync"
	"testing"
)

func TestTryRegisterRejectsDuplicate(t *testing.T) {
	r := New[string]()
	if !r.TryRegister("tok", "first") {
		t.Fatal("first register failed")
	}
	if r.TryRegister("tok", "second") {
		t.Fatal("duplicate register succeeded")
	}
	if v, ok := r.Lookup("tok"); !ok || v != "first" {
		t.Fatalf("lookup = %q, %v", v, ok)
	}

	r.Remove("tok")
	if _, ok := r.Lookup("tok"); ok {
		t.Fatal("entry still present after remove")
	}
	if !r.TryRegister("tok", "third") {
		t.Fatal("re-register after remove failed")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New[int]()
	r.Remove("missing")
	r.TryRegister("a", 1)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove("a")
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	r := New[int]()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.TryRegister("same", i) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d", wins)
	}
}

func TestEachSnapshot(t *testing.T) {
	r := New[int]()
	r.TryRegister("a", 1)
	r.TryRegister("b", 2)
	sum := 0
	r.Each(func(tok string, v int) {
		r.Remove(tok)
		sum += v
	})
	if sum != 3 || r.Len() != 0 {
		t.Fatalf("sum = %d len = %d", sum, r.Len())
	}
}
