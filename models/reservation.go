package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reservation is a time-bounded hold against product quantity. It reduces
// available-to-sell stock without touching durable stock until confirmed.
type Reservation struct {
	ID        string            `gorm:"primary_key;size:64" json:"id"`
	OrgId     string            `gorm:"size:64;not null;index" json:"org_id"`
	DisplayId string            `gorm:"size:20;index" json:"display_id"`
	ProductId string            `gorm:"size:64;not null;index" json:"product_id"`
	Quantity  decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Status    ReservationStatus `gorm:"size:12;not null;default:'active';index" json:"status"`
	Reference string            `gorm:"size:100" json:"reference"`
	ExpiresAt time.Time         `gorm:"not null;index" json:"expires_at"`
	Version   *int              `json:"version"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveReservedQtyTx sums active, unexpired holds for a product inside the
// caller's transaction. The expiry comparison is always against `now`: a
// reservation past its ExpiresAt stops counting the moment it expires, even
// if the periodic sweep has not relabeled it yet.
func ActiveReservedQtyTx(tx *gorm.DB, orgId string, productId string, now time.Time) (decimal.Decimal, error) {
	var holds []Reservation
	err := tx.
		Where("org_id = ? AND product_id = ? AND status = ? AND expires_at > ?",
			orgId, productId, ReservationStatusActive, now).
		Find(&holds).Error
	if err != nil {
		return decimal.Zero, utils.WrapStorageError("reserved qty", err)
	}
	sum := decimal.Zero
	for _, h := range holds {
		sum = sum.Add(h.Quantity)
	}
	return sum, nil
}

// AvailableStock = durable stock − Σ(active, unexpired reservations),
// floored at zero on the read path.
func AvailableStock(ctx context.Context, productId string) (decimal.Decimal, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	db := config.GetDB()

	product, err := getProductScoped(ctx, orgId, productId)
	if err != nil {
		return decimal.Zero, err
	}
	reserved, err := ActiveReservedQtyTx(db.WithContext(ctx), orgId, productId, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	available := product.Stock.Sub(reserved)
	if available.IsNegative() {
		return decimal.Zero, nil
	}
	return available, nil
}

func GetReservation(ctx context.Context, id string) (*Reservation, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var r Reservation
	if err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgId).
		First(&r).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.WrapStorageError("reservation get", err)
	}
	return &r, nil
}

type ReservationFilter struct {
	ProductId string
	Status    ReservationStatus
}

func GetReservations(ctx context.Context, filter ReservationFilter) ([]*Reservation, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Where("org_id = ?", orgId)
	if filter.ProductId != "" {
		q = q.Where("product_id = ?", filter.ProductId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var reservations []*Reservation
	if err := q.Order("created_at DESC").Find(&reservations).Error; err != nil {
		return nil, utils.WrapStorageError("reservation list", err)
	}
	return reservations, nil
}

// ExpireReservations relabels active holds past their ExpiresAt. Cleanup
// only: availableStock filters expired holds at query time regardless.
func ExpireReservations(ctx context.Context, now time.Time) (int64, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Reservation{}).
		Where("status = ? AND expires_at <= ?", ReservationStatusActive, now).
		Update("status", ReservationStatusExpired)
	if res.Error != nil {
		return 0, utils.WrapStorageError("reservation expiry sweep", res.Error)
	}
	return res.RowsAffected, nil
}
