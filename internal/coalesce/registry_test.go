package coalesce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExactlyOneWinnerUnderConcurrency(t *testing.T) {
	registry := NewRegistry(time.Minute)
	key := Key("d1", "h1")

	const callers = 64
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if registry.MarkIfFree(key) {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestClearFreesTheKey(t *testing.T) {
	registry := NewRegistry(time.Minute)
	key := Key("d1", "h1")

	if !registry.MarkIfFree(key) {
		t.Fatalf("first claim should win")
	}
	if registry.MarkIfFree(key) {
		t.Fatalf("second claim while marked should lose")
	}

	registry.Clear(key)
	if !registry.MarkIfFree(key) {
		t.Fatalf("claim after clear should win")
	}
}

func TestCeilingExpiresStaleMarks(t *testing.T) {
	registry := NewRegistry(20 * time.Millisecond)
	key := Key("d1", "h1")

	if !registry.MarkIfFree(key) {
		t.Fatalf("first claim should win")
	}
	time.Sleep(40 * time.Millisecond)

	// Worker never called Clear; the ceiling must free the pair anyway.
	if !registry.MarkIfFree(key) {
		t.Fatalf("mark should expire after the ceiling")
	}
}

func TestInProgressReturnsRecordedJob(t *testing.T) {
	registry := NewRegistry(time.Minute)
	key := Key("d1", "h1")

	if _, inProgress := registry.InProgress(key); inProgress {
		t.Fatalf("unmarked key should not be in progress")
	}

	registry.MarkIfFree(key)
	registry.SetJob(key, "job-42")

	jobID, inProgress := registry.InProgress(key)
	if !inProgress {
		t.Fatalf("marked key should be in progress")
	}
	if jobID != "job-42" {
		t.Fatalf("expected recorded job id, got %q", jobID)
	}
}

func TestStaleTimerDoesNotClearNewerMark(t *testing.T) {
	registry := NewRegistry(200 * time.Millisecond)
	key := Key("d1", "h1")

	registry.MarkIfFree(key)
	registry.Clear(key)

	time.Sleep(120 * time.Millisecond)
	if !registry.MarkIfFree(key) {
		t.Fatalf("re-claim after clear should win")
	}

	// The first mark's ceiling timer fires around t=200ms; the second
	// mark is live until t=320ms and must survive it.
	time.Sleep(120 * time.Millisecond)
	if _, inProgress := registry.InProgress(key); !inProgress {
		t.Fatalf("stale ceiling timer cleared a newer mark")
	}
}
