package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/shopspring/decimal"
)

// StockMove is the append-only audit trail of physical quantity changes.
type StockMove struct {
	ID          string          `gorm:"primary_key;size:64" json:"id"`
	OrgId       string          `gorm:"size:64;not null;index" json:"org_id"`
	DisplayId   string          `gorm:"size:20;index" json:"display_id"`
	ProductId   string          `gorm:"size:64;not null;index" json:"product_id"`
	MoveType    MoveType        `gorm:"size:5;not null" json:"move_type"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Reference   string          `gorm:"size:100;index" json:"reference"`
	Description string          `gorm:"size:200" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetStockMoves(ctx context.Context, productId string) ([]StockMove, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Where("org_id = ?", orgId)
	if productId != "" {
		q = q.Where("product_id = ?", productId)
	}
	var moves []StockMove
	if err := q.Order("created_at DESC").Find(&moves).Error; err != nil {
		return nil, utils.WrapStorageError("stock move list", err)
	}
	return moves, nil
}
