package store

import (
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_AppendKeepsOrder(t *testing.T) {
	store := NewMemoryStore()

	store.Append(OutcomeRecord{Seq: 2, StatusCode: 200})
	store.Append(OutcomeRecord{Seq: 0, StatusCode: 404})
	store.Append(OutcomeRecord{Seq: 1, StatusCode: 200})

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() = %v items, want 3", len(all))
	}

	wantSeq := []int{2, 0, 1}
	for i, rec := range all {
		if rec.Seq != wantSeq[i] {
			t.Errorf("GetAll()[%d].Seq = %d, want %d", i, rec.Seq, wantSeq[i])
		}
	}
}

func TestMemoryStore_AppendDoesNotOverwrite(t *testing.T) {
	store := NewMemoryStore()

	store.Append(OutcomeRecord{RunID: "r1", Seq: 0, StatusCode: 200})
	store.Append(OutcomeRecord{RunID: "r1", Seq: 0, StatusCode: 500})

	if got := len(store.GetAll()); got != 2 {
		t.Errorf("GetAll() = %v items, want 2", got)
	}
}

func TestMemoryStore_GetAllIsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	store.Append(OutcomeRecord{Seq: 0, StatusCode: 200})

	snapshot := store.GetAll()
	snapshot[0].StatusCode = 999

	if got := store.GetAll()[0].StatusCode; got != 200 {
		t.Errorf("store modified through snapshot, StatusCode = %d", got)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Append(OutcomeRecord{Seq: 7, StatusCode: 200})
	}()

	select {
	case rec := <-ch:
		if rec.Seq != 7 {
			t.Errorf("received Seq = %v, want %v", rec.Seq, 7)
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive record")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	go func() {
		store.Append(OutcomeRecord{Seq: 1})
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 records", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// never read from this one
	_ = store.Subscribe()

	ch2 := store.Subscribe()

	done := make(chan bool)

	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Append(OutcomeRecord{Seq: i})
		}
		done <- true
	}()

	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Append() blocked on slow subscriber")
	}

	if got := len(store.GetAll()); got != 2*subscriberBuffer {
		t.Errorf("GetAll() = %d items, want %d", got, 2*subscriberBuffer)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numAppends := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numAppends; j++ {
				store.Append(OutcomeRecord{Seq: id*numAppends + j})
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numAppends; j++ {
				_ = store.GetAll()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	if got := len(store.GetAll()); got != numGoroutines*numAppends {
		t.Errorf("GetAll() = %d items, want %d", got, numGoroutines*numAppends)
	}
}
