package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 1)
	unsub := bus.Subscribe(SessionCreated, func(e Event) {
		received <- e
	})
	defer unsub()

	bus.Publish(Event{Type: SessionCreated, Data: "test-session"})

	select {
	case e := <-received:
		if e.Type != SessionCreated {
			t.Errorf("Expected SessionCreated, got %v", e.Type)
		}
		if e.Data != "test-session" {
			t.Errorf("Expected 'test-session', got %v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: SessionCreated, Data: nil})
	bus.Publish(Event{Type: SessionBusy, Data: nil})
	bus.Publish(Event{Type: SessionKilled, Data: nil})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := make(chan Event, 1)
	unsub := bus.Subscribe(SessionCreated, func(e Event) { first <- e })

	bus.Publish(Event{Type: SessionCreated, Data: nil})
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for first event")
	}

	unsub()
	// Give the cancelled subscription goroutine a chance to tear down.
	time.Sleep(50 * time.Millisecond)

	second := make(chan Event, 1)
	bus.Subscribe(SessionCreated, func(e Event) { second <- e })
	bus.Publish(Event{Type: SessionCreated, Data: nil})

	select {
	case e := <-first:
		t.Errorf("unsubscribed handler received event %v", e.Type)
	case <-second:
		// The fresh subscription got it; the unsubscribed one did not.
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for second event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		unsub := bus.Subscribe(SessionCreated, func(e Event) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
		defer unsub()
	}

	bus.Publish(Event{Type: SessionCreated, Data: nil})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 subscribers to receive event, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Should not panic or block with no subscribers.
	bus.Publish(Event{Type: SessionCreated, Data: nil})
}

func TestBus_EventTypeFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var sessionCount, busyCount int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub1 := bus.Subscribe(SessionCreated, func(e Event) {
		atomic.AddInt32(&sessionCount, 1)
		wg.Done()
	})
	defer unsub1()
	unsub2 := bus.Subscribe(SessionBusy, func(e Event) {
		atomic.AddInt32(&busyCount, 1)
		wg.Done()
	})
	defer unsub2()

	bus.Publish(Event{Type: SessionCreated, Data: nil})
	bus.Publish(Event{Type: SessionCreated, Data: nil})
	bus.Publish(Event{Type: SessionBusy, Data: nil})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&sessionCount) != 2 {
			t.Errorf("Expected 2 session events, got %d", sessionCount)
		}
		if atomic.LoadInt32(&busyCount) != 1 {
			t.Errorf("Expected 1 busy event, got %d", busyCount)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestGlobalBus_Reset(t *testing.T) {
	received := make(chan Event, 1)
	Subscribe(SessionCreated, func(e Event) { received <- e })

	Publish(Event{Type: SessionCreated, Data: nil})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event before reset")
	}

	Reset()

	// The old subscription's bus is closed; publishing on the new global
	// bus must not reach it.
	Publish(Event{Type: SessionCreated, Data: nil})
	select {
	case e := <-received:
		t.Errorf("subscription from before Reset received event %v", e.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(SessionCreated, func(e Event) {
				atomic.AddInt32(&count, 1)
			})
			defer unsub()

			for j := 0; j < 10; j++ {
				bus.Publish(Event{Type: SessionCreated, Data: nil})
			}
		}()
	}

	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if atomic.LoadInt32(&count) == 0 {
		t.Log("Warning: no events received, but no panic occurred")
	}
}
