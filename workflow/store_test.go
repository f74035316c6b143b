package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const testOrgId = "org-test"

func setupStore(t *testing.T) context.Context {
	t.Helper()
	t.Setenv("DB_MAX_OPEN_CONNS", "1")
	t.Setenv("DB_LOG_LEVEL", "silent")
	if err := config.OpenLocalStore(":memory:"); err != nil {
		t.Fatalf("open store: %v", err)
	}
	models.MigrateTable()
	return utils.SetOrgIdInContext(context.Background(), testOrgId)
}

func seedProduct(t *testing.T, name string, price int64, stock int64, taxRate int64, inclusive bool) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:             uuid.NewString(),
		OrgId:          testOrgId,
		Name:           name,
		Price:          decimal.NewFromInt(price),
		Stock:          decimal.NewFromInt(stock),
		TaxRate:        decimal.NewFromInt(taxRate),
		IsTaxInclusive: &inclusive,
	}
	if err := config.GetDB().Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
