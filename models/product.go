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

type Product struct {
	ID             string          `gorm:"primary_key;size:64" json:"id"`
	OrgId          string          `gorm:"size:64;not null;index" json:"org_id"`
	DisplayId      string          `gorm:"size:20;index" json:"display_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Sku            string          `gorm:"size:100;index" json:"sku"`
	Price          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Stock          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	IsTaxInclusive *bool           `gorm:"not null;default:false" json:"is_tax_inclusive"`
	// Version is assigned by the server; nil until the first successful sync.
	Version   *int      `json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name           string          `json:"name" validate:"required"`
	Sku            string          `json:"sku"`
	Price          decimal.Decimal `json:"price"`
	Stock          decimal.Decimal `json:"stock"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	IsTaxInclusive *bool           `json:"is_tax_inclusive"`
}

// CreateProduct stores the product and its outbox entry in one transaction.
func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Stock.IsNegative() {
		return nil, utils.NewValidationError("stock", "stock cannot be negative")
	}

	product := Product{
		ID:             uuid.NewString(),
		OrgId:          orgId,
		DisplayId:      NewDisplayId("PRD"),
		Name:           input.Name,
		Sku:            input.Sku,
		Price:          input.Price,
		Stock:          input.Stock,
		TaxRate:        input.TaxRate,
		IsTaxInclusive: input.IsTaxInclusive,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return utils.WrapStorageError("product create", err)
		}
		_, err := EnqueueOutbox(ctx, tx, CollectionProducts, OperationCreate, product.ID, &product)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct writes the new field values plus the matching outbox entry.
func UpdateProduct(ctx context.Context, id string, input *NewProduct) (*Product, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var updated *Product
	err = WithRecordLock(CollectionProducts, id, func() error {
		product, err := getProductScoped(ctx, orgId, id)
		if err != nil {
			return err
		}
		product.Name = input.Name
		product.Sku = input.Sku
		product.Price = input.Price
		product.Stock = input.Stock
		product.TaxRate = input.TaxRate
		if input.IsTaxInclusive != nil {
			product.IsTaxInclusive = input.IsTaxInclusive
		}

		db := config.GetDB()
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(product).Error; err != nil {
				return utils.WrapStorageError("product update", err)
			}
			_, err := EnqueueOutbox(ctx, tx, CollectionProducts, OperationUpdate, product.ID, product)
			return err
		})
		if err != nil {
			return err
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyProductSnapshot is the conflict-resolution write path: it overwrites
// the local record with the chosen snapshot WITHOUT enqueueing an outbox
// entry, otherwise resolution would resync and loop with the server.
func ApplyProductSnapshot(ctx context.Context, snapshot *Product) error {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil || snapshot.ID == "" {
		return utils.NewValidationError("snapshot", "snapshot with id is required")
	}
	snapshot.OrgId = orgId

	return WithRecordLock(CollectionProducts, snapshot.ID, func() error {
		db := config.GetDB()
		if err := db.WithContext(ctx).Save(snapshot).Error; err != nil {
			return utils.WrapStorageError("product snapshot apply", err)
		}
		return nil
	})
}

// DecrementProductStockTx lowers durable stock inside the caller's
// transaction, floored at zero: local stock must never go negative even if
// computed demand exceeds it.
func DecrementProductStockTx(tx *gorm.DB, product *Product, qty decimal.Decimal) error {
	newStock := product.Stock.Sub(qty)
	if newStock.IsNegative() {
		newStock = decimal.Zero
	}
	product.Stock = newStock
	if err := tx.Model(&Product{}).
		Where("id = ?", product.ID).
		Update("stock", newStock).Error; err != nil {
		return utils.WrapStorageError("stock decrement", err)
	}
	return nil
}

func GetProduct(ctx context.Context, id string) (*Product, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return getProductScoped(ctx, orgId, id)
}

func getProductScoped(ctx context.Context, orgId string, id string) (*Product, error) {
	db := config.GetDB()
	var product Product
	if err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgId).
		First(&product).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.WrapStorageError("product get", err)
	}
	return &product, nil
}

func GetProducts(ctx context.Context) ([]*Product, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var products []*Product
	if err := db.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("name ASC").
		Find(&products).Error; err != nil {
		return nil, utils.WrapStorageError("product list", err)
	}
	return products, nil
}
