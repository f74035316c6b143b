package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncCheckpoint records the last successful sync per collection, stable
// across restarts. One row per (org, collection).
type SyncCheckpoint struct {
	ID         int        `gorm:"primary_key" json:"id"`
	OrgId      string     `gorm:"size:64;not null;index:uniq_checkpoint,unique" json:"org_id"`
	Collection Collection `gorm:"size:30;not null;index:uniq_checkpoint,unique" json:"collection"`
	LastSyncAt time.Time  `gorm:"not null" json:"last_sync_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TouchSyncCheckpoint upserts the collection's last-sync time.
func TouchSyncCheckpoint(ctx context.Context, collection Collection, at time.Time) error {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return err
	}
	db := config.GetDB()
	cp := SyncCheckpoint{OrgId: orgId, Collection: collection, LastSyncAt: at}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "collection"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sync_at"}),
		}).
		Create(&cp).Error
}

// LastSyncAt returns the most recent checkpoint across all collections, or
// nil when nothing has ever synced.
func LastSyncAt(ctx context.Context) (*time.Time, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var cp SyncCheckpoint
	if err := db.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("last_sync_at DESC").
		First(&cp).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	t := cp.LastSyncAt
	return &t, nil
}
