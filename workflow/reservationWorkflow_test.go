package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"github.com/shopspring/decimal"
)

func TestReserveStockHoldsAvailability(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	reservation, err := ReserveStock(ctx, &NewReservation{
		ProductId: product.ID,
		Quantity:  decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Status != models.ReservationStatusActive {
		t.Fatalf("status = %s, want active", reservation.Status)
	}

	// Durable stock is untouched; availability drops.
	got, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !got.Stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock = %s, want 10", got.Stock)
	}
	available, err := models.AvailableStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("available = %s, want 7", available)
	}
}

func TestReserveStockRejectsOverHold(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	if _, err := ReserveStock(ctx, &NewReservation{ProductId: product.ID, Quantity: decimal.NewFromInt(7)}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	_, err := ReserveStock(ctx, &NewReservation{ProductId: product.ID, Quantity: decimal.NewFromInt(4)})
	if err == nil {
		t.Fatal("second hold exceeding availability must be rejected")
	}
}

func TestConfirmSaleMovesDurableStock(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	reservation, err := ReserveStock(ctx, &NewReservation{ProductId: product.ID, Quantity: decimal.NewFromInt(3)})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ConfirmSale(ctx, reservation.ID, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got, err := models.GetReservation(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if got.Status != models.ReservationStatusFulfilled {
		t.Fatalf("status = %s, want fulfilled", got.Status)
	}

	p, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !p.Stock.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("stock = %s, want 7", p.Stock)
	}

	moves, err := models.GetStockMoves(ctx, product.ID)
	if err != nil {
		t.Fatalf("moves: %v", err)
	}
	if len(moves) != 1 || moves[0].MoveType != models.MoveTypeOut {
		t.Fatalf("expected one outbound move, got %+v", moves)
	}

	// A fulfilled hold no longer reduces availability.
	available, err := models.AvailableStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("available = %s, want 7", available)
	}

	// Confirming twice is not allowed.
	if err := ConfirmSale(ctx, reservation.ID, nil); err == nil {
		t.Fatal("double confirm must fail")
	}
}

func TestConfirmSaleWithActualQuantity(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	reservation, err := ReserveStock(ctx, &NewReservation{ProductId: product.ID, Quantity: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	actual := decimal.NewFromInt(2)
	if err := ConfirmSale(ctx, reservation.ID, &actual); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	p, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !p.Stock.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("stock = %s, want 8 (sold 2 of the 5 held)", p.Stock)
	}
}

func TestReleaseReservationRestoresAvailability(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	reservation, err := ReserveStock(ctx, &NewReservation{ProductId: product.ID, Quantity: decimal.NewFromInt(4)})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ReleaseReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, err := models.GetReservation(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if got.Status != models.ReservationStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	available, err := models.AvailableStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("available = %s, want full 10", available)
	}

	if err := ReleaseReservation(ctx, reservation.ID); err == nil {
		t.Fatal("releasing a cancelled hold must fail")
	}
}

func TestExpiredHoldStopsCountingBeforeSweep(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 10, 0, false)

	_, err := ReserveStock(ctx, &NewReservation{
		ProductId: product.ID,
		Quantity:  decimal.NewFromInt(6),
		TTL:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	available, err := models.AvailableStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("available = %s, want 10 once the hold lapsed", available)
	}
}
