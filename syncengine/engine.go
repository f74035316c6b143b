package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/remote"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts        = 5
	defaultBaseBackoffSeconds = 1
	defaultMaxBackoffSeconds  = 300
	defaultItemPauseMillis    = 100
)

// Engine drains the outbox sequentially in creation order. One in-flight
// request at a time: ordering across entries is part of the contract, a
// stock update must not overtake the sale that caused it.
type Engine struct {
	Logger *logrus.Logger
	Client remote.Pusher
	Bus    *events.Bus

	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	ItemPause   time.Duration

	// Now is swappable in tests.
	Now func() time.Time
}

func NewEngine(client remote.Pusher, bus *events.Bus) *Engine {
	return &Engine{
		Logger:      config.GetLogger(),
		Client:      client,
		Bus:         bus,
		MaxAttempts: intFromEnv("SYNC_MAX_ATTEMPTS", defaultMaxAttempts),
		BaseBackoff: time.Duration(intFromEnv("SYNC_BASE_BACKOFF_SECONDS", defaultBaseBackoffSeconds)) * time.Second,
		MaxBackoff:  time.Duration(intFromEnv("SYNC_MAX_BACKOFF_SECONDS", defaultMaxBackoffSeconds)) * time.Second,
		ItemPause:   time.Duration(intFromEnv("SYNC_ITEM_PAUSE_MILLIS", defaultItemPauseMillis)) * time.Millisecond,
		Now:         time.Now,
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Backoff returns the delay before attempt n (1-based): base*2^(n-1), capped.
func (e *Engine) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.MaxBackoff {
			return e.MaxBackoff
		}
	}
	if d > e.MaxBackoff {
		return e.MaxBackoff
	}
	return d
}

// DrainOnce pushes every due entry, oldest first. Connectivity loss aborts the
// pass and leaves the remaining entries untouched for the next one.
func (e *Engine) DrainOnce(ctx context.Context) (synced int, failed int, err error) {
	entries, err := models.DueOutboxEntries(ctx, e.Now())
	if err != nil {
		return 0, 0, err
	}
	return e.drain(ctx, entries)
}

// ForceSync ignores backoff timers and attempts everything still pending.
func (e *Engine) ForceSync(ctx context.Context) (synced int, failed int, err error) {
	entries, err := models.PendingOutboxEntries(ctx)
	if err != nil {
		return 0, 0, err
	}
	return e.drain(ctx, entries)
}

func (e *Engine) drain(ctx context.Context, entries []models.OutboxEntry) (synced int, failed int, err error) {
	for i := range entries {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		entry := entries[i]
		ok, pushErr := e.pushOne(ctx, &entry)
		if ok {
			synced++
		} else {
			var netErr *utils.NetworkError
			if errors.As(pushErr, &netErr) {
				// Offline: stop the pass. The entry was left pending
				// untouched, so it does not count as failed.
				break
			}
			failed++
		}
		if i < len(entries)-1 && e.ItemPause > 0 {
			select {
			case <-time.After(e.ItemPause):
			case <-ctx.Done():
				return synced, failed, ctx.Err()
			}
		}
	}
	if e.Bus != nil && (synced > 0 || failed > 0) {
		e.Bus.Publish(events.SyncCompleted{Synced: synced, Failed: failed})
	}
	return synced, failed, nil
}

// pushOne attempts a single entry and records the outcome. Returns true when
// the entry reached the server.
func (e *Engine) pushOne(ctx context.Context, entry *models.OutboxEntry) (bool, error) {
	pushErr := e.Client.Push(ctx, entry)
	if pushErr == nil {
		if err := models.MarkOutboxSynced(ctx, entry.ID, e.Now()); err != nil {
			config.LogError(e.Logger, "syncengine", "pushOne", "mark synced", entry.OperationId, err)
			return false, err
		}
		if err := models.TouchSyncCheckpoint(ctx, entry.Collection, e.Now()); err != nil {
			config.LogError(e.Logger, "syncengine", "pushOne", "touch checkpoint", entry.OperationId, err)
		}
		e.Logger.WithFields(logrus.Fields{
			"operationId": entry.OperationId,
			"collection":  entry.Collection,
			"attempt":     entry.RetryCount + 1,
		}).Info("outbox entry synced")
		return true, nil
	}

	var netErr *utils.NetworkError
	if errors.As(pushErr, &netErr) {
		// Offline is not a failed attempt. The entry stays pending untouched
		// and the scheduler retries the whole pass once connectivity returns.
		e.Logger.WithFields(logrus.Fields{
			"operationId": entry.OperationId,
		}).Warn("offline, drain pass suspended")
		return false, pushErr
	}

	var conflictErr *utils.ConflictError
	if errors.As(pushErr, &conflictErr) {
		if err := e.recordConflict(ctx, entry, conflictErr); err != nil {
			config.LogError(e.Logger, "syncengine", "pushOne", "record conflict", entry.OperationId, err)
			return false, err
		}
		return false, pushErr
	}

	attempts := entry.RetryCount + 1
	if attempts >= e.MaxAttempts {
		if err := models.MarkOutboxFailed(ctx, entry.ID, attempts, pushErr.Error()); err != nil {
			return false, err
		}
		exhausted := &utils.ExhaustedRetriesError{OperationId: entry.OperationId, Attempts: attempts}
		config.LogError(e.Logger, "syncengine", "pushOne", "retries exhausted", entry.OperationId, exhausted)
		return false, pushErr
	}

	nextAt := e.Now().Add(e.Backoff(attempts))
	if err := models.MarkOutboxRetry(ctx, entry.ID, attempts, pushErr.Error(), nextAt); err != nil {
		return false, err
	}
	e.Logger.WithFields(logrus.Fields{
		"operationId": entry.OperationId,
		"attempt":     attempts,
		"nextAt":      nextAt,
	}).Warn("outbox push failed, scheduled retry")
	return false, pushErr
}

// recordConflict files a Conflict row from the server's 409 snapshot and takes
// the entry out of the retry rotation. The local record is left untouched
// until someone resolves the conflict.
func (e *Engine) recordConflict(ctx context.Context, entry *models.OutboxEntry, conflictErr *utils.ConflictError) error {
	severity := models.ConflictSeverityLow
	kind := models.ConflictKindVersion
	description := "server rejected the change: state diverged"

	if entry.Collection == models.CollectionProducts {
		if diff, ok := stockDiff(entry.Payload, conflictErr.ServerSnapshot); ok {
			severity = models.SeverityForStockDiff(diff)
			kind = models.ConflictKindStock
			description = fmt.Sprintf("stock diverged by %s units", diff.Abs().String())
		}
	}

	if _, err := models.CreateConflict(ctx, &models.NewConflict{
		Kind:           kind,
		Collection:     entry.Collection,
		EntityId:       entry.EntityId,
		LocalSnapshot:  entry.Payload,
		ServerSnapshot: conflictErr.ServerSnapshot,
		Severity:       severity,
		Description:    description,
	}); err != nil {
		return err
	}
	if err := models.MarkOutboxConflict(ctx, entry.ID, description); err != nil {
		return err
	}
	if e.Bus != nil {
		e.Bus.Publish(events.ConflictsDetected{Count: 1})
	}
	e.Logger.WithFields(logrus.Fields{
		"operationId": entry.OperationId,
		"entityId":    entry.EntityId,
		"severity":    severity,
	}).Warn("sync conflict recorded")
	return nil
}

// stockDiff extracts |local.stock - server.stock| from the two snapshots.
func stockDiff(local []byte, server []byte) (decimal.Decimal, bool) {
	type stockOnly struct {
		Stock decimal.Decimal `json:"stock"`
	}
	var l, s stockOnly
	if err := json.Unmarshal(local, &l); err != nil {
		return decimal.Zero, false
	}
	if err := json.Unmarshal(server, &s); err != nil {
		return decimal.Zero, false
	}
	return l.Stock.Sub(s.Stock), true
}
