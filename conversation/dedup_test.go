package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func TestDeduper_ConcurrentDeliveriesPassOnce(t *testing.T) {
	d := NewDeduper()

	var mu sync.Mutex
	processed := 0

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.CheckAndMark("wamid.123") {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if processed != 1 {
		t.Fatalf("expected exactly 1 processing, got %d", processed)
	}
}

func TestDeduper_FIFOEviction(t *testing.T) {
	d := NewDeduper()

	for i := 0; i < DedupCapacity; i++ {
		d.MarkProcessed(fmt.Sprintf("id-%d", i))
	}
	if !d.IsDuplicate("id-0") {
		t.Fatal("id-0 should still be within the window")
	}

	// One more insert evicts the oldest id, and only the oldest.
	d.MarkProcessed("id-overflow")
	if d.IsDuplicate("id-0") {
		t.Fatal("id-0 should have been evicted")
	}
	if !d.IsDuplicate("id-1") {
		t.Fatal("id-1 should still be within the window")
	}
	if !d.IsDuplicate("id-overflow") {
		t.Fatal("id-overflow should be within the window")
	}
}

func TestDeduper_ReMarkingDoesNotRefreshPosition(t *testing.T) {
	d := NewDeduper()

	d.MarkProcessed("first")
	// Strict FIFO: re-seeing an id must not move it to the back.
	d.MarkProcessed("first")
	for i := 0; i < DedupCapacity-1; i++ {
		d.MarkProcessed(fmt.Sprintf("id-%d", i))
	}
	if !d.IsDuplicate("first") {
		t.Fatal("first should still be within the window")
	}

	d.MarkProcessed("one-more")
	if d.IsDuplicate("first") {
		t.Fatal("first should be the id evicted")
	}
}
