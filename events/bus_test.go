package events

import (
	"testing"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(SyncCompleted{Synced: 2, Failed: 1})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			done, ok := e.(SyncCompleted)
			if !ok {
				t.Fatalf("got %T, want SyncCompleted", e)
			}
			if done.Synced != 2 || done.Failed != 1 {
				t.Fatalf("event = %+v", done)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBusNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	bus.Subscribe() // never drained

	// Publishing past the buffer must drop, not deadlock.
	for i := 0; i < 100; i++ {
		bus.Publish(ConnectivityChanged{Online: i%2 == 0})
	}
}
