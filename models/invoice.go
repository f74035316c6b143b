package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID             string          `gorm:"primary_key;size:64" json:"id"`
	OrgId          string          `gorm:"size:64;not null;index" json:"org_id"`
	DisplayId      string          `gorm:"size:20;index" json:"display_id"`
	CustomerName   string          `gorm:"size:100;not null" json:"customer_name"`
	CustomerMobile string          `gorm:"size:20" json:"customer_mobile"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	Discount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Status         InvoiceStatus   `gorm:"size:10;not null;default:'paid'" json:"status"`
	PaymentMethod  string          `gorm:"size:20" json:"payment_method"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	Version        *int            `json:"version"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceLine struct {
	ID         string          `gorm:"primary_key;size:64" json:"id"`
	InvoiceId  string          `gorm:"size:64;not null;index" json:"invoice_id"`
	ProductId  string          `gorm:"size:64;not null;index" json:"product_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	BaseAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_amount"`
	TaxAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	Cgst       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst"`
	Sgst       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst"`
	Igst       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst"`
	TaxRate    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	Total      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var invoice Invoice
	if err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgId).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.WrapStorageError("invoice get", err)
	}
	return &invoice, nil
}

func GetInvoiceLines(ctx context.Context, invoiceId string) ([]InvoiceLine, error) {
	db := config.GetDB()
	var lines []InvoiceLine
	if err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceId).
		Order("created_at ASC").
		Find(&lines).Error; err != nil {
		return nil, utils.WrapStorageError("invoice lines", err)
	}
	return lines, nil
}

func GetInvoices(ctx context.Context) ([]*Invoice, error) {
	orgId, err := orgIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var invoices []*Invoice
	if err := db.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("created_at DESC").
		Find(&invoices).Error; err != nil {
		return nil, utils.WrapStorageError("invoice list", err)
	}
	return invoices, nil
}
