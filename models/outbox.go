package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxEntry is one pending mutation awaiting transmission to the server.
// The autoincrement ID fixes creation order; OperationId is the idempotency
// key and is reused verbatim on every retry of the same logical mutation.
type OutboxEntry struct {
	ID            int               `gorm:"primary_key" json:"id"`
	OperationId   string            `gorm:"size:64;not null;uniqueIndex" json:"operation_id"`
	OrgId         string            `gorm:"size:64;not null;index" json:"org_id"`
	Collection    Collection        `gorm:"size:30;not null;index" json:"collection"`
	Operation     Operation         `gorm:"size:10;not null" json:"operation"`
	EntityId      string            `gorm:"size:64;index" json:"entity_id"`
	Payload       []byte            `gorm:"type:blob" json:"payload"`
	Status        OutboxEntryStatus `gorm:"size:20;not null;default:'pending';index:idx_outbox_drain,priority:1" json:"status"`
	RetryCount    int               `gorm:"not null;default:0" json:"retry_count"`
	NextAttemptAt *time.Time        `gorm:"index:idx_outbox_drain,priority:2" json:"next_attempt_at"`
	LastSyncError *string           `gorm:"type:text" json:"last_sync_error"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	SyncedAt      *time.Time        `json:"synced_at"`
}

// EnqueueOutbox appends a pending entry inside the caller's transaction.
// This is the transactional-outbox half of every local mutation: the entity
// write and its outbox row commit or roll back together.
func EnqueueOutbox(ctx context.Context, tx *gorm.DB, collection Collection, op Operation, entityId string, payload interface{}) (string, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return "", err
	}
	if !collection.Valid() {
		return "", utils.NewValidationError("collection", "unknown collection")
	}
	if !collection.AllowsOperation(op) {
		return "", utils.NewValidationError("operation", "operation not allowed for collection")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	entry := OutboxEntry{
		OperationId:   uuid.NewString(),
		OrgId:         orgId,
		Collection:    collection,
		Operation:     op,
		EntityId:      entityId,
		Payload:       body,
		Status:        OutboxStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return "", utils.WrapStorageError("outbox enqueue", err)
	}
	return entry.OperationId, nil
}

// DueOutboxEntries returns pending entries whose backoff timer (if any) has
// elapsed, in creation order. The drain loop consumes them one at a time.
func DueOutboxEntries(ctx context.Context, now time.Time) ([]OutboxEntry, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var entries []OutboxEntry
	if err := db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgId, OutboxStatusPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, utils.WrapStorageError("outbox query", err)
	}
	return entries, nil
}

// PendingOutboxEntries ignores backoff timers; force-sync uses it to attempt
// everything pending immediately.
func PendingOutboxEntries(ctx context.Context) ([]OutboxEntry, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var entries []OutboxEntry
	if err := db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgId, OutboxStatusPending).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, utils.WrapStorageError("outbox query", err)
	}
	return entries, nil
}

func MarkOutboxSynced(ctx context.Context, id int, now time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          OutboxStatusSynced,
			"synced_at":       &now,
			"next_attempt_at": nil,
			"last_sync_error": nil,
		}).Error
}

// MarkOutboxConflict takes the entry out of the automatic retry rotation.
// It stays queryable until the conflict is resolved or cleared.
func MarkOutboxConflict(ctx context.Context, id int, errMsg string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          OutboxStatusConflict,
			"last_sync_error": &errMsg,
			"next_attempt_at": nil,
		}).Error
}

// MarkOutboxRetry schedules the next attempt after a retryable failure.
func MarkOutboxRetry(ctx context.Context, id int, attempts int, errMsg string, nextAttemptAt time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":     attempts,
			"last_sync_error": &errMsg,
			"next_attempt_at": &nextAttemptAt,
		}).Error
}

// MarkOutboxFailed is terminal: the retry budget is spent. Only a manual
// force-sync or explicit clearing touches the entry afterwards.
func MarkOutboxFailed(ctx context.Context, id int, attempts int, errMsg string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          OutboxStatusFailed,
			"retry_count":     attempts,
			"last_sync_error": &errMsg,
			"next_attempt_at": nil,
		}).Error
}

// RequeueOutboxEntry puts a failed entry back into rotation (manual retry).
// The OperationId is untouched so the server still dedupes it.
func RequeueOutboxEntry(ctx context.Context, id int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ? AND status = ?", id, OutboxStatusFailed).
		Updates(map[string]interface{}{
			"status":          OutboxStatusPending,
			"retry_count":     0,
			"next_attempt_at": nil,
			"last_sync_error": nil,
		}).Error
}

// PruneSyncedOutbox deletes synced entries older than the grace window.
// Conflict and failed rows are retained until explicitly cleared.
func PruneSyncedOutbox(ctx context.Context, grace time.Duration) (int64, error) {
	db := config.GetDB()
	cutoff := time.Now().Add(-grace)
	res := db.WithContext(ctx).
		Where("status = ? AND synced_at IS NOT NULL AND synced_at <= ?", OutboxStatusSynced, cutoff).
		Delete(&OutboxEntry{})
	if res.Error != nil {
		return 0, utils.WrapStorageError("outbox prune", res.Error)
	}
	return res.RowsAffected, nil
}

func GetOutboxEntry(ctx context.Context, id int) (*OutboxEntry, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var entry OutboxEntry
	if err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgId).
		First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.WrapStorageError("outbox get", err)
	}
	return &entry, nil
}
