package queue

import (
	"sync"
	"testing"
)

// testItem is a simple struct for testing the generic queue
type testItem struct {
	ID       int
	Producer int
}

func TestMPSC_New(t *testing.T) {
	q := NewMPSC[testItem]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestMPSC_PopEmpty(t *testing.T) {
	q := NewMPSC[testItem]()

	result, ok := q.Pop()
	if ok {
		t.Error("expected Pop on empty queue to fail")
	}
	if result != (testItem{}) {
		t.Errorf("expected zero value, got %+v", result)
	}
}

func TestMPSC_FIFO(t *testing.T) {
	q := NewMPSC[testItem]()
	for i := 1; i <= 5; i++ {
		q.Push(testItem{ID: i})
	}

	if q.Len() != 5 {
		t.Errorf("expected length 5, got %d", q.Len())
	}

	for i := 1; i <= 5; i++ {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("expected item %d, queue reported empty", i)
		}
		if item.ID != i {
			t.Errorf("expected ID %d, got %d", i, item.ID)
		}
	}

	if !q.Empty() {
		t.Error("expected empty queue after popping everything")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestMPSC_InterleavedPushPop(t *testing.T) {
	q := NewMPSC[int]()

	q.Push(1)
	q.Push(2)
	if v, _ := q.Pop(); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	q.Push(3)
	if v, _ := q.Pop(); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
	if v, _ := q.Pop(); v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestMPSC_Drain(t *testing.T) {
	q := NewMPSC[testItem]()
	q.Push(testItem{ID: 1})
	q.Push(testItem{ID: 2})
	q.Push(testItem{ID: 3})

	result := q.Drain()

	if len(result) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result))
	}
	if result[0].ID != 1 || result[1].ID != 2 || result[2].ID != 3 {
		t.Errorf("unexpected items: %+v", result)
	}
	if !q.Empty() {
		t.Error("expected empty queue after Drain")
	}
	if again := q.Drain(); len(again) != 0 {
		t.Errorf("expected second Drain to return nothing, got %d items", len(again))
	}
}

func TestMPSC_PopReleasesValue(t *testing.T) {
	q := NewMPSC[*testItem]()
	q.Push(&testItem{ID: 1})

	if _, ok := q.Pop(); !ok {
		t.Fatal("expected an item")
	}
	if q.tail.value != nil {
		t.Error("expected popped node to drop its reference")
	}
}

func TestMPSC_ConcurrentProducersKeepOrder(t *testing.T) {
	const producers = 8
	const perProducer = 2000

	q := NewMPSC[testItem]()
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(testItem{ID: i, Producer: p})
			}
		}(p)
	}

	// Consume while producers are still running.
	next := make([]int, producers)
	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	consume := func() {
		for {
			item, ok := q.Pop()
			if !ok {
				return
			}
			if item.ID != next[item.Producer] {
				t.Errorf("producer %d: expected ID %d, got %d", item.Producer, next[item.Producer], item.ID)
			}
			next[item.Producer] = item.ID + 1
			received++
		}
	}

	for {
		select {
		case <-done:
			consume()
			if received != producers*perProducer {
				t.Errorf("expected %d items, got %d", producers*perProducer, received)
			}
			if q.Len() != 0 {
				t.Errorf("expected length 0, got %d", q.Len())
			}
			return
		default:
			consume()
		}
	}
}

// Test with different types to ensure generics work correctly

func TestMPSC_StringType(t *testing.T) {
	q := NewMPSC[string]()
	q.Push("hello")
	q.Push("world")

	first, _ := q.Pop()
	if first != "hello" {
		t.Errorf("expected 'hello', got '%s'", first)
	}
}

func TestMPSC_SliceType(t *testing.T) {
	q := NewMPSC[[]string]()
	q.Push([]string{"a", "b"})
	q.Push([]string{"c", "d"})

	first, _ := q.Pop()
	if len(first) != 2 || first[0] != "a" {
		t.Errorf("expected [a, b], got %v", first)
	}
}
