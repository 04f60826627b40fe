package state

import (
	"strconv"
	"sync"
	"testing"
)

func TestSeenSet_AddReportsNew(t *testing.T) {
	s := NewSeenSet(3)

	if s.Add("") {
		t.Fatalf("empty id should be ignored")
	}
	if !s.Add("a") {
		t.Fatalf("expected first add to be new")
	}
	if s.Add("a") {
		t.Fatalf("expected duplicate add to report false")
	}
	if !s.Has("a") || s.Len() != 1 {
		t.Fatalf("unexpected state: has=%v len=%d", s.Has("a"), s.Len())
	}
}

func TestSeenSet_EvictsOldest(t *testing.T) {
	s := NewSeenSet(2)
	s.Add("a")
	s.Add("b")
	s.Add("c")

	if s.Has("a") {
		t.Fatalf("expected oldest to be evicted")
	}
	if !s.Has("b") || !s.Has("c") {
		t.Fatalf("expected newest to remain")
	}
	if !s.Add("a") {
		t.Fatalf("evicted id should be accepted again")
	}
}

func TestSeenSet_DefaultMax(t *testing.T) {
	s := NewSeenSet(0)
	for i := 0; i < 1001; i++ {
		s.Add("id-" + strconv.Itoa(i))
	}
	if s.Len() != 1000 {
		t.Fatalf("expected default max=1000, got %d", s.Len())
	}
	if s.Has("id-0") {
		t.Fatalf("expected first id to be evicted")
	}
}

func TestSeenSet_ConcurrentAddIsExclusive(t *testing.T) {
	s := NewSeenSet(10)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("same") {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}
