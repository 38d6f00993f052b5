package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendBoundsLength(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 12; i++ {
		s.Append("u1", RoleUser, fmt.Sprintf("msg-%d", i))
	}

	got := s.History("u1")
	if len(got) != 5 {
		t.Fatalf("history length = %d, want 5", len(got))
	}
	for i, turn := range got {
		want := fmt.Sprintf("msg-%d", 7+i)
		if turn.Content != want {
			t.Fatalf("turn[%d].Content = %q, want %q", i, turn.Content, want)
		}
	}
}

func TestAppendTrimsOldestFirst(t *testing.T) {
	s := NewStore(4)
	for i := 0; i < 4; i++ {
		s.Append("u1", RoleUser, fmt.Sprintf("old-%d", i))
	}
	s.Append("u1", RoleUser, "hi")
	s.Append("u1", RoleAssistant, "hello")

	got := s.History("u1")
	if len(got) != 4 {
		t.Fatalf("history length = %d, want 4", len(got))
	}
	if got[0].Content != "old-2" || got[1].Content != "old-3" {
		t.Fatalf("expected two oldest turns evicted, got %+v", got)
	}
	if got[2].Content != "hi" || got[3].Content != "hello" {
		t.Fatalf("expected new pair at the tail, got %+v", got)
	}
}

func TestHistoryReturnsIndependentSnapshot(t *testing.T) {
	s := NewStore(10)
	s.Append("u1", RoleUser, "hi")

	snap := s.History("u1")
	snap[0].Content = "mutated"

	got := s.History("u1")
	if got[0].Content != "hi" {
		t.Fatalf("stored turn mutated through snapshot: %q", got[0].Content)
	}
}

func TestHistoryUnknownUserIsEmpty(t *testing.T) {
	s := NewStore(10)
	if got := s.History("nobody"); len(got) != 0 {
		t.Fatalf("History() for unknown user = %v, want empty", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewStore(10)
	s.Clear("u1") // never seen

	s.Append("u1", RoleUser, "x")
	s.Clear("u1")
	if got := s.History("u1"); len(got) != 0 {
		t.Fatalf("history after clear = %v, want empty", got)
	}

	s.Clear("u1")
	if got := s.History("u1"); len(got) != 0 {
		t.Fatalf("history after double clear = %v, want empty", got)
	}
}

func TestLockSameInstanceUnderConcurrentFirstUse(t *testing.T) {
	s := NewStore(10)

	const callers = 64
	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		mu    sync.Mutex
		locks = make(map[*sync.Mutex]struct{})
	)
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			l := s.Lock("fresh-user")
			mu.Lock()
			locks[l] = struct{}{}
			mu.Unlock()
		}()
	}
	start.Done()
	done.Wait()

	if len(locks) != 1 {
		t.Fatalf("distinct lock instances = %d, want 1", len(locks))
	}
}

func TestConcurrentAppendsDistinctUsers(t *testing.T) {
	s := NewStore(50)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		userID := fmt.Sprintf("u%d", u)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				s.Append(userID, RoleUser, fmt.Sprintf("m%d", i))
			}
		}()
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		userID := fmt.Sprintf("u%d", u)
		if n := s.Len(userID); n != 40 {
			t.Fatalf("Len(%s) = %d, want 40", userID, n)
		}
	}
}
