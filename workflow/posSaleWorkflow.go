package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const walkInCustomerName = "Walk-in Customer"

type SaleLineInput struct {
	ProductId string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	// UnitPrice overrides the catalog price when set (counter discounts).
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type NewPosSale struct {
	CustomerName   string          `json:"customer_name"`
	CustomerMobile string          `json:"customer_mobile"`
	PaymentMethod  string          `json:"payment_method"`
	Discount       decimal.Decimal `json:"discount"`
	DiscountType   string          `json:"discount_type"`
	Lines          []SaleLineInput `json:"lines" validate:"required,min=1,dive"`
}

// posSaleBundle is the outbox payload for a whole offline sale. The server
// replays it atomically under the bundle's idempotency key.
type posSaleBundle struct {
	Invoice    *models.Invoice      `json:"invoice"`
	Lines      []models.InvoiceLine `json:"lines"`
	StockMoves []models.StockMove   `json:"stock_moves"`
}

// ProcessSale records an offline counter sale: invoice plus lines, durable
// stock decrements with their audit moves, the double-entry journal rows and
// one bundled outbox entry, all in a single transaction. Either the whole
// sale lands or none of it does.
func ProcessSale(ctx context.Context, input *NewPosSale) (*models.Invoice, error) {
	logger := config.GetLogger()
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	for _, line := range input.Lines {
		if !line.Quantity.GreaterThan(decimal.Zero) {
			return nil, utils.NewValidationError("quantity", "quantity must be positive")
		}
	}

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, utils.NewValidationError("org_id", "org id is required")
	}

	customerName := input.CustomerName
	if customerName == "" {
		customerName = walkInCustomerName
	}
	customerMobile := input.CustomerMobile
	if customerMobile != "" {
		normalized, err := utils.NormalizePhoneNumber(customerMobile, utils.DefaultPhoneRegion())
		if err != nil {
			return nil, err
		}
		customerMobile = normalized
	}
	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	invoice := &models.Invoice{
		ID:             uuid.NewString(),
		OrgId:          orgId,
		DisplayId:      models.NewDisplayId("POS"),
		CustomerName:   customerName,
		CustomerMobile: customerMobile,
		Status:         models.InvoiceStatusPaid,
		PaymentMethod:  paymentMethod,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subtotal := decimal.Zero
		taxTotal := decimal.Zero
		grossTotal := decimal.Zero

		var lines []models.InvoiceLine
		var moves []models.StockMove

		for _, in := range input.Lines {
			var product models.Product
			if err := tx.Where("id = ? AND org_id = ?", in.ProductId, orgId).
				First(&product).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return utils.ErrorRecordNotFound
				}
				return utils.WrapStorageError("product load", err)
			}

			unitPrice := product.Price
			if in.UnitPrice != nil {
				unitPrice = *in.UnitPrice
			}
			amount := unitPrice.Mul(in.Quantity)
			inclusive := utils.DereferencePtr(product.IsTaxInclusive)
			breakup := utils.CalculateGST(amount, product.TaxRate, inclusive)

			line := models.InvoiceLine{
				ID:         uuid.NewString(),
				InvoiceId:  invoice.ID,
				ProductId:  product.ID,
				Quantity:   in.Quantity,
				UnitPrice:  unitPrice,
				BaseAmount: breakup.BaseAmount,
				TaxAmount:  breakup.TotalTax,
				Cgst:       breakup.Cgst,
				Sgst:       breakup.Sgst,
				Igst:       breakup.Igst,
				TaxRate:    product.TaxRate,
				Total:      breakup.TotalAmount,
			}
			lines = append(lines, line)
			if err := tx.Create(&line).Error; err != nil {
				return utils.WrapStorageError("invoice line create", err)
			}

			if err := models.DecrementProductStockTx(tx, &product, in.Quantity); err != nil {
				return err
			}

			move := models.StockMove{
				ID:          uuid.NewString(),
				OrgId:       orgId,
				DisplayId:   models.NewDisplayId("STK"),
				ProductId:   product.ID,
				MoveType:    models.MoveTypeOut,
				Quantity:    in.Quantity,
				Reference:   invoice.DisplayId,
				Description: "POS sale " + invoice.DisplayId,
			}
			moves = append(moves, move)
			if err := tx.Create(&move).Error; err != nil {
				return utils.WrapStorageError("stock move create", err)
			}

			subtotal = subtotal.Add(breakup.BaseAmount)
			taxTotal = taxTotal.Add(breakup.TotalTax)
			grossTotal = grossTotal.Add(breakup.TotalAmount)
		}

		discount := utils.CalculateDiscountAmount(subtotal, input.Discount, input.DiscountType)
		total := grossTotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		invoice.Subtotal = subtotal
		invoice.TaxAmount = taxTotal
		invoice.Discount = discount
		invoice.Total = total
		invoice.PaidAmount = total
		if err := tx.Create(invoice).Error; err != nil {
			return utils.WrapStorageError("invoice create", err)
		}

		if err := writeSaleJournal(tx, orgId, invoice, taxTotal); err != nil {
			return err
		}

		bundle := posSaleBundle{Invoice: invoice, Lines: lines, StockMoves: moves}
		_, err := models.EnqueueOutbox(ctx, tx, models.CollectionPosSales, models.OperationCreate, invoice.ID, &bundle)
		return err
	})
	if err != nil {
		config.LogError(logger, "workflow", "ProcessSale", "pos sale", invoice.DisplayId, err)
		return nil, err
	}
	return invoice, nil
}

// writeSaleJournal books the sale double-entry: cash debit against sales and
// GST output credits.
func writeSaleJournal(tx *gorm.DB, orgId string, invoice *models.Invoice, taxTotal decimal.Decimal) error {
	salesCredit := invoice.Total.Sub(taxTotal)
	if salesCredit.IsNegative() {
		salesCredit = decimal.Zero
	}
	entries := []models.JournalEntry{
		{
			ID:          uuid.NewString(),
			OrgId:       orgId,
			DisplayId:   models.NewDisplayId("JRN"),
			AccountName: "Cash",
			AccountType: "asset",
			Debit:       invoice.Total,
			Reference:   invoice.DisplayId,
		},
		{
			ID:          uuid.NewString(),
			OrgId:       orgId,
			DisplayId:   models.NewDisplayId("JRN"),
			AccountName: "Sales",
			AccountType: "income",
			Credit:      salesCredit,
			Reference:   invoice.DisplayId,
		},
	}
	if taxTotal.GreaterThan(decimal.Zero) {
		entries = append(entries, models.JournalEntry{
			ID:          uuid.NewString(),
			OrgId:       orgId,
			DisplayId:   models.NewDisplayId("JRN"),
			AccountName: "GST Output",
			AccountType: "liability",
			Credit:      taxTotal,
			Reference:   invoice.DisplayId,
		})
	}
	for i := range entries {
		if err := tx.Create(&entries[i]).Error; err != nil {
			return utils.WrapStorageError("journal create", err)
		}
	}
	return nil
}
