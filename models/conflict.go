package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Conflict is a persisted local/remote divergence awaiting resolution. Once
// resolved, the snapshots and severity are frozen; only resolution metadata
// is ever added.
type Conflict struct {
	ID               string           `gorm:"primary_key;size:64" json:"id"`
	OrgId            string           `gorm:"size:64;not null;index" json:"org_id"`
	Kind             ConflictKind     `gorm:"size:30;not null" json:"kind"`
	Collection       Collection       `gorm:"size:30;not null;index" json:"collection"`
	EntityId         string           `gorm:"size:64;not null;index" json:"entity_id"`
	LocalSnapshot    []byte           `gorm:"type:blob" json:"local_snapshot"`
	ServerSnapshot   []byte           `gorm:"type:blob" json:"server_snapshot"`
	Severity         ConflictSeverity `gorm:"size:10;not null;index" json:"severity"`
	Status           ConflictStatus   `gorm:"size:10;not null;default:'pending';index" json:"status"`
	Description      string           `gorm:"size:255" json:"description"`
	Resolution       ResolutionAction `gorm:"size:12" json:"resolution"`
	ResolvedSnapshot []byte           `gorm:"type:blob" json:"resolved_snapshot"`
	ResolvedAt       *time.Time       `json:"resolved_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// SeverityForStockDiff classifies a quantity divergence by magnitude.
func SeverityForStockDiff(diff decimal.Decimal) ConflictSeverity {
	abs := diff.Abs()
	switch {
	case abs.GreaterThan(decimal.NewFromInt(100)):
		return ConflictSeverityCritical
	case abs.GreaterThan(decimal.NewFromInt(50)):
		return ConflictSeverityHigh
	case abs.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return ConflictSeverityMedium
	default:
		return ConflictSeverityLow
	}
}

type NewConflict struct {
	Kind           ConflictKind
	Collection     Collection
	EntityId       string
	LocalSnapshot  []byte
	ServerSnapshot []byte
	Severity       ConflictSeverity
	Description    string
}

func CreateConflict(ctx context.Context, input *NewConflict) (*Conflict, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	conflict := Conflict{
		ID:             uuid.NewString(),
		OrgId:          orgId,
		Kind:           input.Kind,
		Collection:     input.Collection,
		EntityId:       input.EntityId,
		LocalSnapshot:  input.LocalSnapshot,
		ServerSnapshot: input.ServerSnapshot,
		Severity:       input.Severity,
		Status:         ConflictStatusPending,
		Description:    input.Description,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&conflict).Error; err != nil {
		return nil, utils.WrapStorageError("conflict create", err)
	}
	return &conflict, nil
}

type ConflictFilter struct {
	Status   ConflictStatus
	Severity ConflictSeverity
}

func GetConflicts(ctx context.Context, filter ConflictFilter) ([]*Conflict, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Where("org_id = ?", orgId)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	var conflicts []*Conflict
	if err := q.Order("created_at DESC").Find(&conflicts).Error; err != nil {
		return nil, utils.WrapStorageError("conflict list", err)
	}
	return conflicts, nil
}

func GetConflict(ctx context.Context, id string) (*Conflict, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var conflict Conflict
	if err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgId).
		First(&conflict).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.WrapStorageError("conflict get", err)
	}
	return &conflict, nil
}

// MarkConflictResolved records the resolution metadata. The WHERE on pending
// status is what keeps resolved rows immutable: a second resolution attempt
// matches no row and is reported as not found.
func MarkConflictResolved(ctx context.Context, id string, action ResolutionAction, resolvedSnapshot []byte, now time.Time) error {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return err
	}
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Conflict{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgId, ConflictStatusPending).
		Updates(map[string]interface{}{
			"status":            ConflictStatusResolved,
			"resolution":        action,
			"resolved_snapshot": resolvedSnapshot,
			"resolved_at":       &now,
		})
	if res.Error != nil {
		return utils.WrapStorageError("conflict resolve", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
