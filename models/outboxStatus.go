package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
)

// SyncStatus is the UI-facing view of the outbox. Pending, conflicted and
// failed counts stay visible until the user or an automatic resolution
// clears them; nothing is silently dropped.
type SyncStatus struct {
	PendingCount  int64      `json:"pending_count"`
	ConflictCount int64      `json:"conflict_count"`
	FailedCount   int64      `json:"failed_count"`
	LastSyncAt    *time.Time `json:"last_sync_timestamp"`
}

func GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()

	status := &SyncStatus{}
	counts := []struct {
		status OutboxEntryStatus
		dest   *int64
	}{
		{OutboxStatusPending, &status.PendingCount},
		{OutboxStatusConflict, &status.ConflictCount},
		{OutboxStatusFailed, &status.FailedCount},
	}
	for _, c := range counts {
		if err := db.WithContext(ctx).Model(&OutboxEntry{}).
			Where("org_id = ? AND status = ?", orgId, c.status).
			Count(c.dest).Error; err != nil {
			return nil, utils.WrapStorageError("sync status", err)
		}
	}

	last, err := LastSyncAt(ctx)
	if err != nil {
		return nil, err
	}
	status.LastSyncAt = last
	return status, nil
}
