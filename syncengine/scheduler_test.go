package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
)

// flakyPusher flips between reachable and unreachable. The scheduler polls it
// from its own goroutine, so every access is mutex-guarded.
type flakyPusher struct {
	mu     sync.Mutex
	online bool
	pushed int
}

func (f *flakyPusher) setOnline(v bool) {
	f.mu.Lock()
	f.online = v
	f.mu.Unlock()
}

func (f *flakyPusher) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushed
}

func (f *flakyPusher) Push(ctx context.Context, entry *models.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return &utils.NetworkError{Err: context.DeadlineExceeded}
	}
	f.pushed++
	return nil
}

func (f *flakyPusher) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return &utils.NetworkError{Err: context.DeadlineExceeded}
	}
	return nil
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// waitForConnectivity reads events until the wanted transition arrives,
// skipping unrelated events (SyncCompleted from the recovery drain).
func waitForConnectivity(t *testing.T, ch <-chan events.Event, wantOnline bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if cc, ok := e.(events.ConnectivityChanged); ok {
				if cc.Online != wantOnline {
					t.Fatalf("connectivity event online=%v, want %v", cc.Online, wantOnline)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no connectivity transition to online=%v observed", wantOnline)
		}
	}
}

func TestSchedulerPublishesTransitionsAndDrainsOnRecovery(t *testing.T) {
	ctx := setupStore(t)
	enqueue(t, ctx, "p1", map[string]int{})

	// A stale synced entry that the drain pass should prune.
	staleId := enqueueSynced(t, ctx, time.Now().Add(-2*time.Hour))

	stub := &flakyPusher{}
	bus := events.NewBus()
	engine := &Engine{
		Logger:      config.GetLogger(),
		Client:      stub,
		Bus:         bus,
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  5 * time.Minute,
		Now:         time.Now,
	}
	sched := &Scheduler{
		Engine: engine,
		Bus:    bus,
		Logger: config.GetLogger(),
		// The drain interval is effectively never: any drain we observe must
		// come from the recovery path, not from the periodic tick.
		ProbeInterval: 10 * time.Millisecond,
		DrainInterval: time.Hour,
		PruneGrace:    time.Hour,
	}

	ch := bus.Subscribe()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sched.Run(runCtx)
		close(done)
	}()

	// Starting offline is not a transition: several probes pass quietly.
	time.Sleep(60 * time.Millisecond)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event while still offline: %#v", e)
	default:
	}
	if stub.pushCount() != 0 {
		t.Fatal("nothing must be pushed while offline")
	}

	// Connectivity returns: exactly one online event, and the outbox drains
	// immediately instead of waiting out the one-hour drain tick.
	stub.setOnline(true)
	waitForConnectivity(t, ch, true)
	waitUntil(t, 3*time.Second, func() bool { return stub.pushCount() == 1 },
		"recovery did not drain the pending entry")
	waitUntil(t, 3*time.Second, func() bool {
		status, err := models.GetSyncStatus(ctx)
		return err == nil && status.PendingCount == 0
	}, "pending entry was not marked synced after recovery")

	// The same drain pass prunes entries synced before the grace window.
	waitUntil(t, 3*time.Second, func() bool {
		_, err := models.GetOutboxEntry(ctx, staleId)
		return err == utils.ErrorRecordNotFound
	}, "stale synced entry was not pruned")

	// Dropping offline publishes the opposite transition, once.
	stub.setOnline(false)
	waitForConnectivity(t, ch, false)

	cancel()
	<-done
}

// enqueueSynced plants an already-synced entry with the given sync time.
func enqueueSynced(t *testing.T, ctx context.Context, syncedAt time.Time) int {
	t.Helper()
	opId := enqueue(t, ctx, "p-old", map[string]int{})
	var entry models.OutboxEntry
	if err := config.GetDB().Where("operation_id = ?", opId).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if err := models.MarkOutboxSynced(ctx, entry.ID, syncedAt); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	return entry.ID
}
