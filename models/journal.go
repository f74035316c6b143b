package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/shopspring/decimal"
)

// JournalEntry mirrors the server's double-entry rows for locally recorded
// sales, so books stay readable while disconnected.
type JournalEntry struct {
	ID          string          `gorm:"primary_key;size:64" json:"id"`
	OrgId       string          `gorm:"size:64;not null;index" json:"org_id"`
	DisplayId   string          `gorm:"size:20;index" json:"display_id"`
	AccountName string          `gorm:"size:100;not null" json:"account_name"`
	AccountType string          `gorm:"size:30" json:"account_type"`
	Debit       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit"`
	Reference   string          `gorm:"size:100;index" json:"reference"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetJournalEntries(ctx context.Context) ([]JournalEntry, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var entries []JournalEntry
	if err := db.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, utils.WrapStorageError("journal list", err)
	}
	return entries, nil
}
