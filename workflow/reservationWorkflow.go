package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultReservationTTLMinutes = 15

type NewReservation struct {
	ProductId   string          `json:"product_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	Reference   string          `json:"reference"`
	HoldMinutes int             `json:"hold_minutes"`
	// TTL overrides HoldMinutes when set (tests); both zero → 15 minutes.
	TTL time.Duration `json:"-"`
}

// ReserveStock places a time-bounded hold against available (not durable)
// stock. The availability check and the insert run in one transaction under
// the product's record lock, so two concurrent holds cannot both observe the
// same availability.
func ReserveStock(ctx context.Context, input *NewReservation) (*models.Reservation, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Quantity.GreaterThan(decimal.Zero) {
		return nil, utils.NewValidationError("quantity", "quantity must be positive")
	}
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, utils.NewValidationError("org_id", "org id is required")
	}

	ttl := input.TTL
	if ttl <= 0 && input.HoldMinutes > 0 {
		ttl = time.Duration(input.HoldMinutes) * time.Minute
	}
	if ttl <= 0 {
		ttl = defaultReservationTTLMinutes * time.Minute
	}
	now := time.Now()

	reservation := &models.Reservation{
		ID:        uuid.NewString(),
		OrgId:     orgId,
		DisplayId: models.NewDisplayId("RSV"),
		ProductId: input.ProductId,
		Quantity:  input.Quantity,
		Status:    models.ReservationStatusActive,
		Reference: input.Reference,
		ExpiresAt: now.Add(ttl),
	}

	err := models.WithRecordLock(models.CollectionProducts, input.ProductId, func() error {
		db := config.GetDB()
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var product models.Product
			if err := tx.Where("id = ? AND org_id = ?", input.ProductId, orgId).
				First(&product).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return utils.ErrorRecordNotFound
				}
				return utils.WrapStorageError("product load", err)
			}

			reserved, err := models.ActiveReservedQtyTx(tx, orgId, input.ProductId, now)
			if err != nil {
				return err
			}
			available := product.Stock.Sub(reserved)
			if available.IsNegative() {
				available = decimal.Zero
			}
			if input.Quantity.GreaterThan(available) {
				return utils.NewValidationError("quantity", "insufficient available stock")
			}

			if err := tx.Create(reservation).Error; err != nil {
				return utils.WrapStorageError("reservation create", err)
			}
			_, err = models.EnqueueOutbox(ctx, tx, models.CollectionReservations, models.OperationCreate, reservation.ID, reservation)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// ConfirmSale converts an active hold into a durable sale: the reservation is
// fulfilled, durable stock drops by the actual quantity and an outbound stock
// move is written. actualQty nil means "sold exactly what was held".
func ConfirmSale(ctx context.Context, reservationId string, actualQty *decimal.Decimal) error {
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return utils.NewValidationError("org_id", "org id is required")
	}

	reservation, err := models.GetReservation(ctx, reservationId)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationStatusActive {
		return utils.NewValidationError("status", "reservation is not active")
	}

	qty := reservation.Quantity
	if actualQty != nil {
		if !actualQty.GreaterThan(decimal.Zero) {
			return utils.NewValidationError("quantity", "quantity must be positive")
		}
		qty = *actualQty
	}

	return models.WithRecordLock(models.CollectionProducts, reservation.ProductId, func() error {
		db := config.GetDB()
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Reservation{}).
				Where("id = ? AND org_id = ? AND status = ?", reservationId, orgId, models.ReservationStatusActive).
				Update("status", models.ReservationStatusFulfilled)
			if res.Error != nil {
				return utils.WrapStorageError("reservation fulfil", res.Error)
			}
			if res.RowsAffected == 0 {
				return utils.NewValidationError("status", "reservation is not active")
			}

			var product models.Product
			if err := tx.Where("id = ? AND org_id = ?", reservation.ProductId, orgId).
				First(&product).Error; err != nil {
				return utils.WrapStorageError("product load", err)
			}
			if err := models.DecrementProductStockTx(tx, &product, qty); err != nil {
				return err
			}

			move := models.StockMove{
				ID:          uuid.NewString(),
				OrgId:       orgId,
				DisplayId:   models.NewDisplayId("STK"),
				ProductId:   product.ID,
				MoveType:    models.MoveTypeOut,
				Quantity:    qty,
				Reference:   reservation.DisplayId,
				Description: "reservation fulfilled",
			}
			if err := tx.Create(&move).Error; err != nil {
				return utils.WrapStorageError("stock move create", err)
			}

			updated := *reservation
			updated.Status = models.ReservationStatusFulfilled
			_, err := models.EnqueueOutbox(ctx, tx, models.CollectionReservations, models.OperationUpdate, reservation.ID, &updated)
			return err
		})
	})
}

// ReleaseReservation cancels an active hold. Durable stock never moved, so
// nothing else changes; availability recovers immediately.
func ReleaseReservation(ctx context.Context, reservationId string) error {
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return utils.NewValidationError("org_id", "org id is required")
	}

	reservation, err := models.GetReservation(ctx, reservationId)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationStatusActive {
		return utils.NewValidationError("status", "reservation is not active")
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Reservation{}).
			Where("id = ? AND org_id = ? AND status = ?", reservationId, orgId, models.ReservationStatusActive).
			Update("status", models.ReservationStatusCancelled)
		if res.Error != nil {
			return utils.WrapStorageError("reservation release", res.Error)
		}
		if res.RowsAffected == 0 {
			return utils.NewValidationError("status", "reservation is not active")
		}

		updated := *reservation
		updated.Status = models.ReservationStatusCancelled
		_, err := models.EnqueueOutbox(ctx, tx, models.CollectionReservations, models.OperationUpdate, reservation.ID, &updated)
		return err
	})
}

// ReservationSweeper periodically relabels expired holds. Pure hygiene:
// availability math excludes expired holds at query time whether or not the
// sweep has run.
type ReservationSweeper struct {
	Logger   *logrus.Logger
	Bus      *events.Bus
	Interval time.Duration
}

func NewReservationSweeper(bus *events.Bus) *ReservationSweeper {
	return &ReservationSweeper{
		Logger:   config.GetLogger(),
		Bus:      bus,
		Interval: 30 * time.Second,
	}
}

func (s *ReservationSweeper) Run(ctx context.Context) {
	s.Logger.Info("reservation sweeper started")
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *ReservationSweeper) sweepOnce(ctx context.Context) {
	n, err := models.ExpireReservations(ctx, time.Now())
	if err != nil {
		config.LogError(s.Logger, "workflow", "sweepOnce", "reservation expiry", nil, err)
		return
	}
	if n > 0 {
		s.Logger.WithFields(logrus.Fields{"expired": n}).Info("expired reservations relabeled")
		if s.Bus != nil {
			s.Bus.Publish(events.ReservationsExpired{Count: int(n)})
		}
	}
}
