package events

import (
	"sync"
)

// Event is a state-change notification for UI collaborators (status bar,
// conflict badge). Payloads are small value types; subscribers must not
// mutate them.
type Event interface {
	eventName() string
}

type ConnectivityChanged struct {
	Online bool
}

func (ConnectivityChanged) eventName() string { return "connectivity_changed" }

type SyncCompleted struct {
	Synced int
	Failed int
}

func (SyncCompleted) eventName() string { return "sync_completed" }

type ConflictsDetected struct {
	Count int
}

func (ConflictsDetected) eventName() string { return "conflicts_detected" }

type ReservationsExpired struct {
	Count int
}

func (ReservationsExpired) eventName() string { return "reservations_expired" }

// Bus is an in-process fan-out with buffered subscriber channels. Publish
// never blocks: a subscriber that stops draining loses events rather than
// stalling the sync loop.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
